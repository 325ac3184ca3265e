// Package report produces the aggregated session export and keeps it
// cached against a mutable session store. The cache is an optimization
// only: every validity decision is re-checked per request against the
// store's content fingerprint and max session ID, and a cache backend
// failure degrades to a rebuild, never to a request error.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lexigame/session-service/pkg/session"
)

// Header is the fixed first line of the export, one column per derived
// field, in the order rows are written.
const Header = "Session ID, User ID, User Name, Module ID, Deleted Module ID, Module Name, " +
	"Session Date, Player Score, Total Attempted Questions, Percentage Correct, " +
	"Start Time, End Time, Time Spent, Platform, Mode\n"

const clockFormat = "15:04"

// platformLabels maps stored platform tags to display strings. The map is
// closed: a tag outside it fails the whole build rather than silently
// falling back to a default label.
var platformLabels = map[string]string{
	session.PlatformPC:     "PC",
	session.PlatformMobile: "Mobile",
	session.PlatformVR:     "Virtual Reality",
}

// PlatformLabel returns the display string for a stored platform tag.
func PlatformLabel(tag string) (string, error) {
	label, ok := platformLabels[tag]
	if !ok {
		return "", fmt.Errorf("unrecognized platform tag %q", tag)
	}
	return label, nil
}

// BuildCSV renders one export line per input row, in input order, under
// the fixed header. Derivations per row:
//
//   - time spent: end − start when the session was ended, otherwise
//     last logged answer − start when any answer was logged, otherwise
//     blank.
//   - percentage correct: score ÷ attempted rounded to three decimals,
//     blank when attempted is zero or the score is unset.
//
// The build is all-or-nothing: any derivation error aborts with no
// partial output, so a truncated table can never reach the cache.
func BuildCSV(rows []session.ExportRow) (string, error) {
	var b strings.Builder
	b.WriteString(Header)

	for _, row := range rows {
		line, err := formatRow(row)
		if err != nil {
			return "", fmt.Errorf("session %d: %w", row.ID, err)
		}
		b.WriteString(line)
	}
	return b.String(), nil
}

func formatRow(row session.ExportRow) (string, error) {
	platform, err := PlatformLabel(row.Platform)
	if err != nil {
		return "", err
	}

	timeSpent, err := timeSpent(row)
	if err != nil {
		return "", err
	}

	cells := []string{
		strconv.FormatInt(row.ID, 10),
		strconv.FormatInt(row.UserID, 10),
		row.UserName,
		strconv.FormatInt(row.ModuleID, 10),
		optInt64(row.DeletedModuleID),
		row.ModuleName,
		row.SessionDate,
		optInt(row.PlayerScore),
		strconv.Itoa(row.Attempted),
		percentCorrect(row),
		row.StartTime,
		optStr(row.EndTime),
		timeSpent,
		platform,
		optStr(row.Mode),
	}
	return strings.Join(cells, ", ") + "\n", nil
}

// timeSpent derives the HH:MM duration of a session. Sessions that were
// never ended fall back to the time of the last logged answer.
func timeSpent(row session.ExportRow) (string, error) {
	end := row.EndTime
	if end == nil {
		end = row.LastAnswerAt
	}
	if end == nil {
		return "", nil
	}
	spent, err := clockDiff(row.StartTime, *end)
	if err != nil {
		return "", fmt.Errorf("deriving time spent: %w", err)
	}
	return spent, nil
}

// clockDiff formats the difference between two HH:MM clock readings as
// HH:MM. An end before the start is taken to have crossed midnight.
func clockDiff(start, end string) (string, error) {
	from, err := time.Parse(clockFormat, start)
	if err != nil {
		return "", fmt.Errorf("parsing start time %q: %w", start, err)
	}
	to, err := time.Parse(clockFormat, end)
	if err != nil {
		return "", fmt.Errorf("parsing end time %q: %w", end, err)
	}

	d := to.Sub(from)
	if d < 0 {
		d += 24 * time.Hour
	}
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60), nil
}

// percentCorrect derives score ÷ attempted rounded to three decimal
// places. Blank when no answers were attempted or no score was recorded;
// never divides by zero.
func percentCorrect(row session.ExportRow) string {
	if row.Attempted == 0 || row.PlayerScore == nil {
		return ""
	}
	p := float64(*row.PlayerScore) / float64(row.Attempted)
	return strconv.FormatFloat(round3(p), 'f', -1, 64)
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

func optStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func optInt64(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}
