package plot

import (
	"sync"
	"sync/atomic"
)

// YearSelector is the year selection control. It implements core.YearSource.
type YearSelector struct {
	mu      sync.RWMutex
	value   string
	options []string
	hub     *Hub
}

// NewYearSelector creates a selector offering options, initially empty
func NewYearSelector(hub *Hub, options ...string) *YearSelector {
	return &YearSelector{options: options, hub: hub}
}

// Value returns the selected year; it may be empty
func (s *YearSelector) Value() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Options returns the years offered for selection
func (s *YearSelector) Options() []string {
	return append([]string(nil), s.options...)
}

// Set selects year. Values outside the options are accepted and left to the
// backend to reject.
func (s *YearSelector) Set(year string) {
	s.mu.Lock()
	s.value = year
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(s.message())
	}
}

// SetIfEmpty selects year unless a year is already selected
func (s *YearSelector) SetIfEmpty(year string) {
	s.mu.Lock()
	if s.value != "" {
		s.mu.Unlock()
		return
	}
	s.value = year
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(s.message())
	}
}

func (s *YearSelector) message() Message {
	return Message{Type: MessageYear, Payload: yearPayload{Year: s.Value(), Options: s.Options()}}
}

// Device is fed by the browsers' capability reports. The most recent report
// wins; it picks the hint stored in /api/state and the standalone chart
// pages, while every websocket client gets the hint of its own device.
type Device struct {
	touch   atomic.Bool
	reports atomic.Int64
}

// Report records the touch capability of a client
func (d *Device) Report(touch bool) {
	d.touch.Store(touch)
	d.reports.Add(1)
}

// TouchEnabled implements core.Device
func (d *Device) TouchEnabled() bool {
	return d.touch.Load()
}

// Reports returns how many capability reports were received
func (d *Device) Reports() int64 {
	return d.reports.Load()
}
