// Package notification provides implementations for various notification services
package notification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/storage"
	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Command pattern regex for the year command
var yearRegexp = regexp.MustCompile(`^/year(?:@\w+)?(?:\s+(?P<year>\S+))?\s*$`)

// commandTimeout bounds a refresh triggered from a chat command
const commandTimeout = 2 * time.Minute

// Refresher is the part of the dashboard driven by chat commands. SelectYear
// moves the year selector as well, so browsers show the chat's selection.
type Refresher interface {
	SelectYear(ctx context.Context, year string) error
	Current() (year string, generation uint64)
}

// HistoryReader lists past refresh attempts, newest first
type HistoryReader interface {
	Records(ctx context.Context, limit int, filters ...storage.HistoryFilter) ([]core.RefreshRecord, error)
}

// Telegram implements the core.NotifierWithStart interface
type Telegram struct {
	settings    *core.Settings
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
	history     HistoryReader

	mu        sync.RWMutex
	refresher Refresher
}

// Option is a function that configures a Telegram instance
type Option func(telegram *Telegram)

// WithHistory enables the /history command
func WithHistory(history HistoryReader) Option {
	return func(telegram *Telegram) {
		telegram.history = history
	}
}

// NewTelegram creates and initializes a new Telegram service
func NewTelegram(settings *core.Settings, options ...Option) (*Telegram, error) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    createAuthMiddleware(poller, settings),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &Telegram{
		client:      client,
		settings:    settings,
		defaultMenu: menu,
	}

	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// createAuthMiddleware creates a middleware to validate authorized users
func createAuthMiddleware(poller *tb.LongPoller, settings *core.Settings) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		return authorized(settings.Telegram.Users, u)
	})
}

func authorized(users []int, u *tb.Update) bool {
	if u.Message == nil || u.Message.Sender == nil {
		log.Error("message or sender is nil ", u)
		return false
	}

	if slices.Contains(users, int(u.Message.Sender.ID)) {
		return true
	}

	log.Error("unauthorized user ", u.Message.Sender.ID)
	return false
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	row := make([]tb.Btn, 0, len(core.KnownYears)+1)
	for _, year := range core.KnownYears {
		row = append(row, menu.Text("/year "+year))
	}

	menu.Reply(
		menu.Row(row...),
		menu.Row(menu.Text("/status"), menu.Text("/history"), menu.Text("/help")),
	)
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/year", Description: "Refresh the dashboard with a year"},
		{Text: "/status", Description: "Show the displayed year"},
		{Text: "/history", Description: "Last refresh attempts"},
	})
}

// registerHandlers registers all command handlers
func registerHandlers(client *tb.Bot, bot *Telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/year", bot.YearHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/history", bot.HistoryHandle)
}

// Attach sets the dashboard driven by the /year command
func (t *Telegram) Attach(refresher Refresher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refresher = refresher
}

func (t *Telegram) attached() Refresher {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refresher
}

// Start begins the Telegram bot and notifies all authorized users
func (t *Telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Dashboard bot initialized.", t.defaultMenu)
}

// Notify sends a message to all authorized users
func (t *Telegram) Notify(text string) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text)
		if err != nil {
			log.WithError(err).Error("failed to send notification")
		}
	}
}

// sendMessageWithOptions sends a message to all authorized users with additional options
func (t *Telegram) sendMessageWithOptions(text string, options ...interface{}) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...)
		if err != nil {
			log.WithError(err).Error("failed to send notification with options")
		}
	}
}

// sendMessage sends a message to a specific user
func (t *Telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		log.WithError(err).Error("failed to send message")
	}
}

// HelpHandle displays available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		log.WithError(err).Error("failed to get commands")
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", strings.TrimPrefix(command.Text, "/"), command.Description))
	}

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// YearHandle refreshes the dashboard with the requested year. A bare /year
// uses the default year.
func (t *Telegram) YearHandle(m *tb.Message) {
	year, ok := parseYearCommand(m.Text)
	if !ok {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/year 2020`")
		return
	}

	refresher := t.attached()
	if refresher == nil {
		t.sendMessage(m.Sender, "Dashboard is not ready.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// failures are also reported through OnError by the controller
	err := refresher.SelectYear(ctx, year)
	t.sendMessage(m.Sender, yearReply(year, err), t.defaultMenu)
}

// StatusHandle displays the year currently shown
func (t *Telegram) StatusHandle(m *tb.Message) {
	refresher := t.attached()
	if refresher == nil {
		t.sendMessage(m.Sender, "Dashboard is not ready.")
		return
	}

	year, generation := refresher.Current()
	t.sendMessage(m.Sender, statusMessage(year, generation))
}

// HistoryHandle lists the last refresh attempts
func (t *Telegram) HistoryHandle(m *tb.Message) {
	if t.history == nil {
		t.sendMessage(m.Sender, "History is disabled.")
		return
	}

	records, err := t.history.Records(context.Background(), 10)
	if err != nil {
		log.WithError(err).Error("failed to load history")
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, historyMessage(records))
}

// OnRefresh notifies users about an applied refresh
func (t *Telegram) OnRefresh(year string) {
	t.Notify(fmt.Sprintf("✅ DASHBOARD UPDATED - %s", year))
}

// OnError notifies users about errors
func (t *Telegram) OnError(err error) {
	t.Notify(errorMessage(err))
}

// parseYearCommand extracts the year of a /year command
func parseYearCommand(text string) (string, bool) {
	match := yearRegexp.FindStringSubmatch(strings.TrimSpace(text))
	if len(match) == 0 {
		return "", false
	}
	return core.NormalizeYear(extractCommandParams(yearRegexp, match)["year"]), true
}

func yearReply(year string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("Dashboard updated to `%s`.", year)
	case errors.Is(err, core.ErrSuperseded):
		return fmt.Sprintf("Refresh for `%s` was replaced by a newer one.", year)
	case errors.Is(err, core.ErrInvalidYear):
		return fmt.Sprintf("Year `%s` is not available.", year)
	default:
		return fmt.Sprintf("Refresh for `%s` failed.", year)
	}
}

func statusMessage(year string, generation uint64) string {
	if generation == 0 {
		return "No data displayed yet."
	}
	return fmt.Sprintf("Year: `%s`\nRefresh: `#%d`", year, generation)
}

func historyMessage(records []core.RefreshRecord) string {
	if len(records) == 0 {
		return "No refresh registered."
	}

	var sb strings.Builder
	sb.WriteString("*HISTORY*\n")
	for _, record := range records {
		fmt.Fprintf(&sb, "`%s` %s `%s`", record.FinishedAt.Format(time.DateTime), record.Year, record.Status)
		if record.Error != "" {
			fmt.Fprintf(&sb, " - %s", record.Error)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func errorMessage(err error) string {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")

	var malformed *core.MalformedPayloadError
	if errors.As(err, &malformed) && malformed.Field != "" {
		sb.WriteString("-----\n")
		fmt.Fprintf(&sb, "Field: %s\n", malformed.Field)
	}

	sb.WriteString("-----\n")
	sb.WriteString(err.Error())
	return sb.String()
}

// Helper function to extract named groups from regex matches
func extractCommandParams(regex *regexp.Regexp, match []string) map[string]string {
	command := make(map[string]string)
	for i, name := range regex.SubexpNames() {
		if i != 0 && name != "" {
			command[name] = match[i]
		}
	}
	return command
}
