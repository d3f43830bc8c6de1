// Package rsdash assembles the remote sensing dashboard: the backend client,
// payload cache, refresh history, refresh controller, dashboard server and
// notifiers.
package rsdash

import (
	"context"
	"errors"
	"fmt"

	"github.com/raykavin/rsdash/internal/config"
	"github.com/raykavin/rsdash/pkg/client"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
	"github.com/raykavin/rsdash/pkg/notification"
	"github.com/raykavin/rsdash/pkg/plot"
	"github.com/raykavin/rsdash/pkg/refresh"
	"github.com/raykavin/rsdash/pkg/storage"
)

const memoryDatabase = ":memory:"

type Dashboard struct {
	config    *config.AppConfig
	log       logger.Logger
	fetcher   core.Fetcher
	cache     *storage.PayloadCache
	history   *storage.History
	server    *plot.Server
	telegram  *notification.Telegram
	notifiers []core.Notifier

	controller *refresh.Controller
}

// New creates a dashboard from the application configuration
func New(cfg *config.AppConfig, options ...Option) (*Dashboard, error) {
	dash := &Dashboard{
		config: cfg,
		log:    DefaultLog,
	}

	for _, option := range options {
		option(dash)
	}

	if err := initializeFetcher(dash); err != nil {
		return nil, err
	}

	if err := initializeStorage(dash); err != nil {
		return nil, err
	}

	if err := initializeServer(dash); err != nil {
		dash.Close()
		return nil, err
	}

	if err := initializeNotifications(dash); err != nil {
		dash.Close()
		return nil, err
	}

	if err := initializeController(dash); err != nil {
		dash.Close()
		return nil, err
	}

	return dash, nil
}

// initializeFetcher sets up the backend client unless a fetcher was given
func initializeFetcher(dash *Dashboard) error {
	if dash.fetcher != nil {
		return nil
	}

	backend, err := client.New(dash.config.Backend.URL,
		client.WithTimeout(dash.config.Backend.Timeout),
		client.WithRetries(dash.config.Backend.Retries),
		client.WithLogger(dash.log.WithField("component", "client")),
	)
	if err != nil {
		return err
	}

	dash.fetcher = backend
	return nil
}

// initializeStorage sets up the payload cache and the refresh history
func initializeStorage(dash *Dashboard) error {
	var err error

	if dash.config.Cache.Enabled && dash.cache == nil {
		if dash.config.Cache.Path == "" {
			dash.cache, err = storage.FromMemory(dash.config.Cache.TTL)
		} else {
			dash.cache, err = storage.FromFile(dash.config.Cache.Path, dash.config.Cache.TTL)
		}
		if err != nil {
			return fmt.Errorf("open payload cache: %w", err)
		}
	}

	if dash.cache != nil {
		dash.fetcher = client.NewCached(dash.fetcher, dash.cache, dash.log.WithField("component", "cache"))
	}

	if dash.config.History.Enabled && dash.history == nil {
		sqlConfig := storage.DefaultConfig()
		if dash.config.History.Path == memoryDatabase {
			// every connection to :memory: opens its own database
			sqlConfig.MaxOpenConns = 1
		}

		dash.history, err = storage.NewHistoryFromSQLite(dash.config.History.Path, sqlConfig)
		if err != nil {
			dash.Close()
			return fmt.Errorf("open refresh history: %w", err)
		}
	}

	return nil
}

// initializeServer sets up the dashboard server owning the refresh targets
func initializeServer(dash *Dashboard) error {
	options := []plot.Option{
		plot.WithPort(dash.config.Server.Port),
		plot.WithYears(core.KnownYears...),
	}
	if dash.config.Server.Debug {
		options = append(options, plot.WithDebug())
	}

	server, err := plot.NewServer(dash.log.WithField("component", "server"), options...)
	if err != nil {
		return err
	}

	dash.server = server
	return nil
}

// initializeNotifications sets up notification systems like Telegram and mail
func initializeNotifications(dash *Dashboard) error {
	if dash.config.Telegram.Enabled {
		settings := dash.config.Settings()

		var options []notification.Option
		if dash.history != nil {
			options = append(options, notification.WithHistory(dash.history))
		}

		telegram, err := notification.NewTelegram(&settings, options...)
		if err != nil {
			return err
		}

		dash.telegram = telegram
		WithNotifier(telegram)(dash)
	}

	if dash.config.Mail.Enabled {
		WithNotifier(notification.NewMail(notification.MailParams{
			SMTPServerAddress: dash.config.Mail.Host,
			SMTPServerPort:    dash.config.Mail.Port,
			From:              dash.config.Mail.From,
			To:                dash.config.Mail.To,
			Password:          dash.config.Mail.Password,
			NotifySuccess:     dash.config.Mail.NotifySuccess,
		}))(dash)
	}

	return nil
}

// initializeController wires the refresh controller to the server's targets
func initializeController(dash *Dashboard) error {
	options := []refresh.Option{
		refresh.WithLogger(dash.log.WithField("component", "refresh")),
		refresh.WithDevice(dash.server.Device()),
		refresh.WithYearSource(dash.server.Selector()),
		refresh.WithDefaultYear(dash.config.DefaultYear),
		refresh.WithPolicy(dash.config.Policy),
		refresh.WithNotifier(dash.server),
		refresh.WithBackgroundNotifier(dash.notifiers...),
	}
	if dash.history != nil {
		options = append(options, refresh.WithRecorder(dash.history))
	}

	controller, err := refresh.New(dash.fetcher, dash.server.Targets(), options...)
	if err != nil {
		return err
	}

	dash.controller = controller
	dash.server.Attach(controller)
	if dash.telegram != nil {
		dash.telegram.Attach(dash.server)
	}

	return nil
}

func (d *Dashboard) Controller() *refresh.Controller {
	return d.controller
}

func (d *Dashboard) Server() *plot.Server {
	return d.server
}

// Fetcher returns the fetcher used by the controller, cache included
func (d *Dashboard) Fetcher() core.Fetcher {
	return d.fetcher
}

// History returns the refresh history, nil when disabled
func (d *Dashboard) History() *storage.History {
	return d.history
}

// Run renders the default year and serves the dashboard until ctx is done
func (d *Dashboard) Run(ctx context.Context) error {
	if d.telegram != nil {
		d.telegram.Start()
	}

	go func() {
		// failures are already logged and pushed to the notifiers
		if err := d.controller.ChangeYear(ctx); err != nil && !errors.Is(err, core.ErrSuperseded) {
			d.log.WithError(err).Warn("initial refresh failed")
		}
	}()

	return d.server.Start(ctx)
}

// Close waits for pending notifications and releases the cache and the
// history database
func (d *Dashboard) Close() error {
	if d.controller != nil {
		d.controller.Wait()
	}

	var errs []error
	if d.cache != nil {
		errs = append(errs, d.cache.Close())
	}
	if d.history != nil {
		errs = append(errs, d.history.Close())
	}
	if d.server != nil {
		d.server.Hub().Close()
	}
	return errors.Join(errs...)
}
