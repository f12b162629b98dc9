package migration

import "context"

// Level is the severity of an operator notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// Notice is a one-way message for the operator running a migration.
// Sticky notices should stay visible until dismissed.
type Notice struct {
	Level   Level
	Message string
	Sticky  bool
}

// Notifier delivers operator notices. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notice Notice)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, notice Notice) {
	f(ctx, notice)
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Notice) {}
