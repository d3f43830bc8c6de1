// Package refresh keeps two time series charts and three map regions in sync
// with a single selected year.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
)

// Targets are the externally owned sinks a refresh writes to
type Targets struct {
	NDVI core.Chart
	LST  core.Chart
	Maps [3]core.Region
}

func (t Targets) validate() error {
	if t.NDVI == nil || t.LST == nil {
		return errors.New("both charts are required")
	}
	for i, region := range t.Maps {
		if region == nil {
			return fmt.Errorf("map region %d is required", i+1)
		}
	}
	return nil
}

// Controller fetches update payloads and applies them to the targets
type Controller struct {
	fetcher     core.Fetcher
	targets     Targets
	device      core.Device
	years       core.YearSource
	defaultYear string
	policy      Policy
	log         logger.Logger
	notifiers   []core.Notifier
	background  []core.Notifier
	pending     sync.WaitGroup
	onError     ErrorHandler
	recorder    core.Recorder
	now         func() time.Time

	generation atomic.Uint64

	// cancelMu guards the cancel function of the newest in-flight refresh
	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	cancelGen uint64

	// applyMu serializes side effects and guards the applied state
	applyMu     sync.Mutex
	appliedYear string
	appliedGen  uint64
}

// New creates a controller writing to targets with payloads from fetcher
func New(fetcher core.Fetcher, targets Targets, options ...Option) (*Controller, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := targets.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		fetcher:     fetcher,
		targets:     targets,
		device:      core.StaticDevice(false),
		defaultYear: core.DefaultYear,
		policy:      LatestInvocation,
		log:         logger.Nop(),
		now:         time.Now,
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

// Policy returns the overlap policy in use
func (c *Controller) Policy() Policy {
	return c.policy
}

// Current returns the year and generation of the last applied refresh.
// The generation is zero until a refresh has been applied.
func (c *Controller) Current() (year string, generation uint64) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	return c.appliedYear, c.appliedGen
}

// ChangeYear reads the year selector, falls back to the default year when
// it is empty, and refreshes with the result.
func (c *Controller) ChangeYear(ctx context.Context) error {
	var year string
	if c.years != nil {
		year = strings.TrimSpace(c.years.Value())
	}
	if year == "" {
		year = c.defaultYear
	}
	return c.Refresh(ctx, year)
}

// RefreshAsync runs Refresh in its own goroutine. The channel receives the
// outcome and is closed afterwards.
func (c *Controller) RefreshAsync(ctx context.Context, year string) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.Refresh(ctx, year)
	}()
	return done
}

// Refresh fetches the payload for year and applies it to the maps and the
// charts. It returns core.ErrSuperseded when a newer refresh started
// meanwhile under the LatestInvocation policy; nothing is applied then.
func (c *Controller) Refresh(ctx context.Context, year string) (err error) {
	if year == "" {
		c.finish(ctx, year, 0, c.now(), ErrEmptyYear)
		return ErrEmptyYear
	}

	gen := c.generation.Add(1)
	started := c.now()

	defer func() {
		c.finish(ctx, year, gen, started, err)
	}()

	fetchCtx := ctx
	if c.policy == LatestInvocation {
		var release func()
		fetchCtx, release = c.track(ctx, gen)
		defer release()
	}

	log := c.log.WithFields(map[string]any{"year": year, "generation": gen})
	log.Debug("requesting chart update")

	payload, err := c.fetcher.Fetch(fetchCtx, year)
	if err != nil {
		if c.stale(gen) {
			return core.ErrSuperseded
		}
		return fmt.Errorf("fetch year %s: %w", year, err)
	}
	if payload == nil {
		return &core.MalformedPayloadError{Reason: "empty payload"}
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if c.stale(gen) {
		return core.ErrSuperseded
	}

	if err := c.apply(log, payload); err != nil {
		return err
	}

	c.appliedYear, c.appliedGen = year, gen
	return nil
}

// track cancels the previous in-flight refresh and registers a cancellable
// context for gen
func (c *Controller) track(ctx context.Context, gen uint64) (context.Context, func()) {
	fetchCtx, cancel := context.WithCancel(ctx)

	c.cancelMu.Lock()
	if gen < c.cancelGen {
		// a newer refresh registered first, this one has already lost
		cancel()
	} else {
		if c.cancel != nil {
			c.cancel()
		}
		c.cancel, c.cancelGen = cancel, gen
	}
	c.cancelMu.Unlock()

	return fetchCtx, func() {
		c.cancelMu.Lock()
		if c.cancelGen == gen {
			c.cancel = nil
		}
		c.cancelMu.Unlock()
		cancel()
	}
}

// stale reports whether gen lost against a newer refresh
func (c *Controller) stale(gen uint64) bool {
	return c.policy == LatestInvocation && c.generation.Load() != gen
}

// apply writes the payload to the regions and then to both charts. The
// sequence stops at the first failing sink.
func (c *Controller) apply(log logger.Logger, payload *core.Payload) error {
	for i, markup := range payload.Maps() {
		if err := c.targets.Maps[i].SetContent(markup); err != nil {
			return &ApplyError{Step: fmt.Sprintf("map region %d", i+1), Err: err}
		}
	}

	touch := c.device.TouchEnabled()

	charts := []struct {
		name   string
		chart  core.Chart
		preset Preset
		series core.Series
	}{
		{"ndvi chart", c.targets.NDVI, NDVIPreset, payload.NDVI()},
		{"lst chart", c.targets.LST, LSTPreset, payload.LST()},
	}

	for _, item := range charts {
		if !item.series.Aligned() {
			log.WithFields(map[string]any{
				"chart":      item.name,
				"categories": len(item.series.Categories),
				"values":     item.series.Length(),
			}).Warn("series categories and values differ in length")
		}

		if err := item.chart.Update(BuildConfig(item.preset, item.series, touch)); err != nil {
			return &ApplyError{Step: item.name, Err: err}
		}
	}

	return nil
}

// finish reports the outcome of a refresh to the log, the error handler,
// the notifiers and the recorder
func (c *Controller) finish(ctx context.Context, year string, gen uint64, started time.Time, err error) {
	record := core.RefreshRecord{
		Year:       year,
		Generation: gen,
		Status:     core.RefreshApplied,
		StartedAt:  started,
		FinishedAt: c.now(),
	}

	log := c.log.WithFields(map[string]any{
		"year":       year,
		"generation": gen,
		"elapsed":    record.FinishedAt.Sub(started).String(),
	})

	switch {
	case err == nil:
		log.Info("charts updated")
		c.notify(func(notifier core.Notifier) { notifier.OnRefresh(year) })
	case errors.Is(err, core.ErrSuperseded):
		record.Status = core.RefreshSuperseded
		log.Debug("refresh discarded, a newer one is in progress")
	default:
		record.Status = core.RefreshFailed
		record.Error = err.Error()
		log.WithError(err).Error("chart update failed")
		if c.onError != nil {
			c.onError(year, err)
		}
		c.notify(func(notifier core.Notifier) { notifier.OnError(err) })
	}

	if c.recorder != nil {
		if recErr := c.recorder.Record(context.WithoutCancel(ctx), record); recErr != nil {
			log.WithError(recErr).Warn("failed to record refresh")
		}
	}
}

// notify calls the notifiers in order, then starts the background ones
func (c *Controller) notify(call func(core.Notifier)) {
	for _, notifier := range c.notifiers {
		call(notifier)
	}

	for _, notifier := range c.background {
		c.pending.Add(1)
		go func(notifier core.Notifier) {
			defer c.pending.Done()
			call(notifier)
		}(notifier)
	}
}

// Wait blocks until every background notification has been delivered
func (c *Controller) Wait() {
	c.pending.Wait()
}
