package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationNames(t *testing.T) []string {
	t.Helper()
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEveryUpMigrationHasADown(t *testing.T) {
	names := migrationNames(t)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", name)
		}
	}

	for base := range ups {
		assert.True(t, downs[base], "migration %q has no down counterpart", base)
	}
	for base := range downs {
		assert.True(t, ups[base], "migration %q has no up counterpart", base)
	}
}

// TestMigrationTablesHaveConsumers verifies that every table created by a
// migration is referenced somewhere in non-test Go source. A migrated
// table nothing reads or writes is schema debt.
func TestMigrationTablesHaveConsumers(t *testing.T) {
	createRe := regexp.MustCompile(`(?i)CREATE TABLE (?:IF NOT EXISTS )?(\w+)`)

	tables := map[string]bool{}
	err := fs.WalkDir(migrations, "migrations", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return walkErr
		}
		content, readErr := fs.ReadFile(migrations, path)
		if readErr != nil {
			return readErr
		}
		for _, match := range createRe.FindAllStringSubmatch(string(content), -1) {
			tables[match[1]] = false
		}
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, tables)

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)

	err = filepath.Walk(filepath.Join(root, "pkg"), func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".go") || strings.HasSuffix(info.Name(), "_test.go") {
			return nil
		}
		content, readErr := os.ReadFile(path) //nolint:gosec // test reads source files
		if readErr != nil {
			return readErr
		}
		for table := range tables {
			if strings.Contains(string(content), table) {
				tables[table] = true
			}
		}
		return nil
	})
	require.NoError(t, err)

	for table, used := range tables {
		assert.True(t, used, "table %q is migrated but never referenced by any query", table)
	}
}
