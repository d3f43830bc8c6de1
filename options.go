package rsdash

import (
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
	"github.com/raykavin/rsdash/pkg/storage"
)

// Option is a functional option for configuring a Dashboard instance
type Option func(*Dashboard)

// WithLogger replaces DefaultLog
func WithLogger(log logger.Logger) Option {
	return func(dash *Dashboard) {
		dash.log = log
	}
}

// WithFetcher replaces the HTTP backend client
func WithFetcher(fetcher core.Fetcher) Option {
	return func(dash *Dashboard) {
		dash.fetcher = fetcher
	}
}

// WithCache sets the payload cache, by default one is opened from the configuration
func WithCache(cache *storage.PayloadCache) Option {
	return func(dash *Dashboard) {
		dash.cache = cache
	}
}

// WithHistory sets the refresh history, by default it uses the configured SQLite file
func WithHistory(history *storage.History) Option {
	return func(dash *Dashboard) {
		dash.history = history
	}
}

// WithNotifier registers a notifier informed of every refresh outcome. It
// runs in the background so slow deliveries never hold a refresh up.
func WithNotifier(notifier core.Notifier) Option {
	return func(dash *Dashboard) {
		dash.notifiers = append(dash.notifiers, notifier)
	}
}
