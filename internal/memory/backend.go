package memory

import "context"

// Backend persists records outside the process. Calls are bounded by the
// index's IOTimeout and retried once.
type Backend interface {
	Put(ctx context.Context, records ...Record) error
	Delete(ctx context.Context, ids ...string) error
	LoadAll(ctx context.Context) ([]Record, error)
	Close() error
}
