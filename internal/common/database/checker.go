package database

import "context"

// Checker is implemented by every backend client and drives the readiness probe.
type Checker interface {
	Name() string
	Ping(ctx context.Context) error
}
