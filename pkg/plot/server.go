// Package plot hosts the dashboard: the chart instances, map regions, year
// selector and device probe written by the refresh controller, plus the HTTP
// and websocket surface showing them in browsers.
package plot

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
	"github.com/raykavin/rsdash/pkg/refresh"
)

// Static assets embedded in the binary
var (
	//go:embed assets
	staticFiles embed.FS
)

// Element ids used by the index page
var (
	ChartIDs  = [2]string{"chart1", "chart2"}
	RegionIDs = [3]string{"map-container1", "map-container2", "map-container3"}
)

// Controller is the part of the refresh controller the server drives
type Controller interface {
	ChangeYear(ctx context.Context) error
	Current() (year string, generation uint64)
}

// Server serves the dashboard and owns the refresh targets
type Server struct {
	port          int
	debug         bool
	years         []string
	log           logger.Logger
	hub           *Hub
	charts        [2]*EChart
	panels        [3]*Panel
	selector      *YearSelector
	device        *Device
	scriptContent string
	indexHTML     *template.Template

	mu         sync.RWMutex
	controller Controller
	baseCtx    context.Context
	lastUpdate time.Time
	lastError  error
}

// Option defines a function type for configuring a Server
type Option func(*Server)

// WithPort sets the HTTP server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDebug enables debug mode (disables minification)
func WithDebug() Option {
	return func(s *Server) {
		s.debug = true
	}
}

// WithYears sets the years offered by the selector
func WithYears(years ...string) Option {
	return func(s *Server) {
		s.years = years
	}
}

// NewServer creates the dashboard server with its sinks
func NewServer(log logger.Logger, options ...Option) (*Server, error) {
	s := &Server{
		port:    8080,
		years:   core.KnownYears,
		log:     log,
		device:  &Device{},
		baseCtx: context.Background(),
	}

	for _, option := range options {
		option(s)
	}

	s.hub = NewHub(log, withMessageHandler(s.handleClientMessage), withWelcome(s.snapshot))
	s.selector = NewYearSelector(s.hub, s.years...)
	for i, id := range ChartIDs {
		s.charts[i] = NewEChart(id, s.hub)
	}
	for i, id := range RegionIDs {
		s.panels[i] = NewPanel(id, s.hub)
	}

	var err error
	s.indexHTML, err = template.ParseFS(staticFiles, "assets/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse index template: %w", err)
	}

	script, err := staticFiles.ReadFile("assets/dashboard.js")
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard.js: %w", err)
	}

	transpiled := api.Transform(string(script), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            api.ES2015,
		MinifySyntax:      !s.debug,
		MinifyIdentifiers: !s.debug,
		MinifyWhitespace:  !s.debug,
	})

	if len(transpiled.Errors) > 0 {
		return nil, fmt.Errorf("dashboard script failed with: %v", transpiled.Errors)
	}

	s.scriptContent = string(transpiled.Code)

	return s, nil
}

// Targets returns the sinks a refresh controller writes to
func (s *Server) Targets() refresh.Targets {
	return refresh.Targets{
		NDVI: s.charts[0],
		LST:  s.charts[1],
		Maps: [3]core.Region{s.panels[0], s.panels[1], s.panels[2]},
	}
}

// Selector returns the year selection control
func (s *Server) Selector() *YearSelector {
	return s.selector
}

// Device returns the probe fed by connected browsers
func (s *Server) Device() *Device {
	return s.device
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Attach sets the controller triggered by year selections
func (s *Server) Attach(controller Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = controller
}

func (s *Server) attached() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller
}

// Handler returns the dashboard routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /assets/dashboard.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, s.scriptContent)
	})
	mux.Handle("GET /assets/", http.FileServer(http.FS(staticFiles)))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/year", s.handleYear)
	mux.HandleFunc("GET /charts/{id}", s.handleChart)
	mux.Handle("GET /ws", s.hub)
	mux.HandleFunc("GET /{$}", s.handleIndex)

	return mux
}

// Start serves the dashboard until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("dashboard shutdown failed")
		}
	}()

	s.log.Infof("Dashboard available at http://localhost:%d", s.port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// State returns a snapshot of everything currently displayed
func (s *Server) State() State {
	state := State{
		Selected: s.selector.Value(),
		Charts:   make(map[string]core.ChartConfig, len(s.charts)),
		Regions:  make(map[string]string, len(s.panels)),
	}

	state.Year, state.Generation = s.Current()

	for _, chart := range s.charts {
		if config, ok := chart.Config(); ok {
			state.Charts[chart.ID] = config
		}
	}
	for _, panel := range s.panels {
		state.Regions[panel.ID] = panel.Content()
	}

	s.mu.RLock()
	state.UpdatedAt = s.lastUpdate
	s.mu.RUnlock()

	return state
}

// snapshot is sent to every new websocket client
func (s *Server) snapshot() []Message {
	messages := []Message{s.selector.message()}
	for _, panel := range s.panels {
		messages = append(messages, Message{Type: MessageRegion, Payload: regionPayload{ID: panel.ID, Content: panel.Content()}})
	}
	for _, chart := range s.charts {
		if config, ok := chart.Config(); ok {
			messages = append(messages, Message{Type: MessageChart, Payload: chartPayload{ID: chart.ID, Config: config}})
		}
	}
	return messages
}

// SelectYear moves the year selector to year and refreshes the dashboard
// with it. Browsers, the year API and chat commands all change the year
// through here.
func (s *Server) SelectYear(ctx context.Context, year string) error {
	controller := s.attached()
	if controller == nil {
		return errors.New("no controller attached")
	}
	s.selector.Set(year)
	return controller.ChangeYear(ctx)
}

// Current returns the year and generation applied by the attached controller
func (s *Server) Current() (year string, generation uint64) {
	if controller := s.attached(); controller != nil {
		return controller.Current()
	}
	return "", 0
}

func (s *Server) handleClientMessage(id int64, msg clientMessage) {
	switch msg.Type {
	case MessageDevice:
		s.device.Report(msg.Touch)
	case MessageYear:
		s.mu.RLock()
		ctx := s.baseCtx
		s.mu.RUnlock()

		go func() {
			// outcomes reach the browsers through the notifier hooks
			_ = s.SelectYear(ctx, msg.Year)
		}()
	default:
		s.log.WithFields(map[string]any{"client": id, "type": msg.Type}).Debug("unknown client message")
	}
}

// Notify implements core.Notifier
func (s *Server) Notify(text string) {
	s.log.Info(text)
}

// OnRefresh implements core.Notifier. A refresh started from an empty
// selector applied the default year, which the selector takes over.
func (s *Server) OnRefresh(year string) {
	s.mu.Lock()
	s.lastUpdate, s.lastError = time.Now(), nil
	s.mu.Unlock()

	s.selector.SetIfEmpty(year)
}

// OnError implements core.Notifier
func (s *Server) OnError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()

	s.hub.Broadcast(Message{Type: MessageError, Payload: errorPayload{Message: err.Error()}})
}
