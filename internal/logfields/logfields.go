package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyChannel    = "channel"
	KeyPackage    = "package"
	KeyStep       = "step"
	KeyVerdict    = "verdict"
	KeyEvent      = "event"
	KeyDurationMS = "duration_ms"
	KeyScheduleID = "schedule_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func Channel(ch string) slog.Attr     { return slog.String(KeyChannel, ch) }
func Package(p string) slog.Attr      { return slog.String(KeyPackage, p) }
func Step(s string) slog.Attr         { return slog.String(KeyStep, s) }
func Verdict(v string) slog.Attr      { return slog.String(KeyVerdict, v) }
func Event(e string) slog.Attr        { return slog.String(KeyEvent, e) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func ScheduleID(id string) slog.Attr  { return slog.String(KeyScheduleID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
