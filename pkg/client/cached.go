package client

import (
	"context"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
)

// Store keeps decoded payloads per year
type Store interface {
	Get(year string) (*core.Payload, bool, error)
	Put(year string, payload *core.Payload) error
}

// Cached serves payloads from a store and falls through to the next fetcher
// on a miss. Store failures are logged and never fail the fetch.
type Cached struct {
	next  core.Fetcher
	store Store
	log   logger.Logger
}

func NewCached(next core.Fetcher, store Store, log logger.Logger) *Cached {
	if log == nil {
		log = logger.Nop()
	}
	return &Cached{next: next, store: store, log: log}
}

// Fetch implements core.Fetcher
func (c *Cached) Fetch(ctx context.Context, year string) (*core.Payload, error) {
	payload, ok, err := c.store.Get(year)
	if err != nil {
		c.log.WithField("year", year).WithError(err).Warn("payload cache read failed")
	}
	if ok {
		c.log.WithField("year", year).Debug("payload served from cache")
		return payload, nil
	}

	payload, err = c.next.Fetch(ctx, year)
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(year, payload); err != nil {
		c.log.WithField("year", year).WithError(err).Warn("payload cache write failed")
	}

	return payload, nil
}
