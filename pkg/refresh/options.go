package refresh

import (
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
)

// Policy decides which refresh wins when several overlap
type Policy int

const (
	// LatestInvocation applies only the most recently started refresh.
	// Older in-flight refreshes are cancelled and their results discarded.
	LatestInvocation Policy = iota
	// LastCompleted applies every refresh in completion order, so a slow
	// older request may overwrite a newer one.
	LastCompleted
)

func (p Policy) String() string {
	switch p {
	case LatestInvocation:
		return "latest-invocation"
	case LastCompleted:
		return "last-completed"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a policy name back to its value
func ParsePolicy(name string) (Policy, bool) {
	switch name {
	case "", "latest-invocation", "latest":
		return LatestInvocation, true
	case "last-completed", "completed":
		return LastCompleted, true
	default:
		return LatestInvocation, false
	}
}

// ErrorHandler is called with every failed refresh
type ErrorHandler func(year string, err error)

// Option defines a function type for configuring a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(log logger.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithDevice sets the probe consulted for the subtitle hint on every update
func WithDevice(device core.Device) Option {
	return func(c *Controller) {
		c.device = device
	}
}

// WithYearSource sets the year selection control read by ChangeYear
func WithYearSource(source core.YearSource) Option {
	return func(c *Controller) {
		c.years = source
	}
}

// WithDefaultYear replaces the year used when the selector is empty
func WithDefaultYear(year string) Option {
	return func(c *Controller) {
		c.defaultYear = core.NormalizeYear(year)
	}
}

// WithPolicy sets the overlap policy
func WithPolicy(policy Policy) Option {
	return func(c *Controller) {
		c.policy = policy
	}
}

// WithNotifier adds notifiers informed of every applied or failed refresh
func WithNotifier(notifiers ...core.Notifier) Option {
	return func(c *Controller) {
		c.notifiers = append(c.notifiers, notifiers...)
	}
}

// WithBackgroundNotifier adds notifiers called on their own goroutine, for
// deliveries that leave the process (mail, chat). Controller.Wait blocks until
// they are done.
func WithBackgroundNotifier(notifiers ...core.Notifier) Option {
	return func(c *Controller) {
		c.background = append(c.background, notifiers...)
	}
}

// WithErrorHandler sets the callback receiving failed refreshes
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *Controller) {
		c.onError = handler
	}
}

// WithRecorder persists every refresh attempt
func WithRecorder(recorder core.Recorder) Option {
	return func(c *Controller) {
		c.recorder = recorder
	}
}
