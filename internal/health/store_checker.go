package health

import (
	"context"
)

// Pinger is the part of the SQLite store the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
	DBPath() string
}

// StoreChecker reports whether the project database answers.
type StoreChecker struct {
	store Pinger
}

// NewStoreChecker checks store.
func NewStoreChecker(store Pinger) *StoreChecker {
	return &StoreChecker{store: store}
}

// Name implements Checker.
func (c *StoreChecker) Name() string {
	return "sqlite-store"
}

// Check implements Checker.
func (c *StoreChecker) Check(ctx context.Context) *Result {
	if err := c.store.Ping(ctx); err != nil {
		return Unhealthy("database is not reachable").
			WithDetail("path", c.store.DBPath()).
			WithDetail("error", err.Error())
	}
	return Healthy("database is reachable").WithDetail("path", c.store.DBPath())
}
