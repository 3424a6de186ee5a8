package domain

import "context"

// Handler executes one probe. Returning a StepResult (or a map shaped like
// one) gives full control over the recorded outcome; any other value is
// recorded as a successful raw output.
type Handler interface {
	Execute(ctx context.Context, ec *ExecutionContext) (any, error)
}

type HandlerFunc func(ctx context.Context, ec *ExecutionContext) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, ec *ExecutionContext) (any, error) {
	return f(ctx, ec)
}

type ReportRenderer interface {
	Render(run *RunResult, ec *ExecutionContext) (string, error)
}

type ResultRepo interface {
	Save(run *RunResult) (string, error)
}

type HistoryStore interface {
	Append(ctx context.Context, e HistoryEntry) error
	List(ctx context.Context, client string, limit int) ([]HistoryEntry, error)
}

type Notifier interface {
	Publish(ctx context.Context, run *RunResult) error
}
