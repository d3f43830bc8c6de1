package zerolog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/goterm/term"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Column widths of the console layout
const (
	messageWidth = 80
	fileWidth    = 18
	lineWidth    = 4
)

var levelLabels = map[string]func(string, ...interface{}) string{
	zerolog.LevelTraceValue: term.Cyanf,
	zerolog.LevelDebugValue: term.Cyanf,
	zerolog.LevelInfoValue:  term.Greenf,
	zerolog.LevelWarnValue:  term.Yellowf,
	zerolog.LevelErrorValue: term.Redf,
	zerolog.LevelFatalValue: term.Redf,
	zerolog.LevelPanicValue: term.Redf,
}

var levelTags = map[string]string{
	zerolog.LevelTraceValue: "TRC",
	zerolog.LevelDebugValue: "DBG",
	zerolog.LevelInfoValue:  "INF",
	zerolog.LevelWarnValue:  "WAR",
	zerolog.LevelErrorValue: "ERR",
	zerolog.LevelFatalValue: "FTL",
	zerolog.LevelPanicValue: "PAN",
}

// New builds a logger writing to stdout. When jsonFormat is set the raw JSON
// lines are written instead of the coloured console layout.
func New(level, dateTimeLayout string, colored, jsonFormat bool) (*zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, level, dateTimeLayout, colored, jsonFormat)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(out io.Writer, level, dateTimeLayout string, colored, jsonFormat bool) (*zerolog.Logger, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logMode, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(logMode)

	if jsonFormat {
		logger := zerolog.New(out).With().Timestamp().Logger()
		return &logger, nil
	}

	logger := zerolog.New(consoleWriter(out, dateTimeLayout, colored)).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &logger, nil
}

func consoleWriter(out io.Writer, dateTimeLayout string, colored bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       !colored,
		TimeFormat:    dateTimeLayout,
		FormatLevel:   formatLevel,
		FormatMessage: formatMessage,
		FormatCaller:  formatCaller,
		FormatTimestamp: func(i interface{}) string {
			return formatTimestamp(i, dateTimeLayout)
		},
	}
}

func formatLevel(i interface{}) string {
	level, _ := i.(string)
	tag, ok := levelTags[level]
	if !ok {
		return term.Whitef("[UNK]")
	}
	return levelLabels[level]("[%s]", tag)
}

// formatMessage pads or cuts the message so fields line up
func formatMessage(i interface{}) string {
	msg, _ := i.(string)
	if msg == "" {
		return ">"
	}
	if len(msg) > messageWidth {
		msg = msg[:messageWidth]
	}
	return term.Whitef("> %-*s", messageWidth, msg)
}

func formatCaller(i interface{}) string {
	name, _ := i.(string)
	if name == "" {
		return ""
	}

	file, line, found := strings.Cut(filepath.Base(name), ":")
	if !found {
		return filepath.Base(name)
	}

	if len(file) > fileWidth {
		file = file[:fileWidth]
	}
	// keep the last digits of very long line numbers
	if len(line) > lineWidth {
		line = line[len(line)-lineWidth:]
	}

	return term.Yellowf("[%-*s:%*s]", fileWidth, file, lineWidth, line)
}

func formatTimestamp(i interface{}, timeLayout string) string {
	raw, ok := i.(string)
	if !ok {
		return term.Cyanf("[%v]", i)
	}

	if ts, err := time.ParseInLocation(time.RFC3339, raw, time.Local); err == nil {
		raw = ts.In(time.Local).Format(timeLayout)
	}
	return term.Cyanf("[%s]", raw)
}
