package core

import (
	"context"
	"time"
)

// Fetcher retrieves the update payload for a year from the backend
type Fetcher interface {
	Fetch(ctx context.Context, year string) (*Payload, error)
}

// Chart is an externally owned chart instance. Update applies a full
// configuration, replacing categories and series data.
type Chart interface {
	Update(config ChartConfig) error
}

// Region is an addressable display area whose content is replaced wholesale
type Region interface {
	SetContent(markup string) error
}

// Device reports the input capabilities of the current host surface
type Device interface {
	TouchEnabled() bool
}

// YearSource exposes the current value of the year selection control
type YearSource interface {
	Value() string
}

// Notifier receives refresh outcomes
type Notifier interface {
	Notify(string)
	OnRefresh(year string)
	OnError(err error)
}

type NotifierWithStart interface {
	Notifier
	Start()
}

// RefreshStatus is the final state of a refresh attempt
type RefreshStatus string

const (
	RefreshApplied    RefreshStatus = "applied"
	RefreshSuperseded RefreshStatus = "superseded"
	RefreshFailed     RefreshStatus = "failed"
)

// RefreshRecord describes one refresh attempt
type RefreshRecord struct {
	Year       string
	Generation uint64
	Status     RefreshStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists refresh attempts
type Recorder interface {
	Record(ctx context.Context, record RefreshRecord) error
}

// StaticDevice is a Device with a fixed touch capability
type StaticDevice bool

func (d StaticDevice) TouchEnabled() bool {
	return bool(d)
}

// StaticYear is a YearSource returning a fixed value
type StaticYear string

func (y StaticYear) Value() string {
	return string(y)
}
