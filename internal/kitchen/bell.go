package kitchen

import "log/slog"

// LogBell is the headless stand-in for the display's notification
// sound; the terminal UI plays the actual audio.
type LogBell struct {
	Log *slog.Logger
}

func (b *LogBell) Ring() {
	b.Log.Info("new order bell")
}
