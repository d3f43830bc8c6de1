// Package sweep fetches the update payloads of several years in one run.
package sweep

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/StudioSol/set"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

// CSV header names
var csvHeaders = []string{"year", "series", "category", "value"}

// Sweeper fetches payloads year by year
type Sweeper struct {
	fetcher  core.Fetcher
	log      logger.Logger
	progress io.Writer
}

// Option is a function type for configuring a Sweeper
type Option func(*Sweeper)

// WithLogger sets the sweeper logger
func WithLogger(log logger.Logger) Option {
	return func(s *Sweeper) {
		s.log = log
	}
}

// WithProgress sets where the progress bar is drawn, nil hides it
func WithProgress(w io.Writer) Option {
	return func(s *Sweeper) {
		s.progress = w
	}
}

// New creates a sweeper over fetcher
func New(fetcher core.Fetcher, options ...Option) Sweeper {
	s := Sweeper{
		fetcher:  fetcher,
		log:      logger.Nop(),
		progress: os.Stderr,
	}
	for _, option := range options {
		option(&s)
	}
	return s
}

// Result is the outcome of one year
type Result struct {
	Year    string
	Payload *core.Payload
	Err     error
}

// Years normalizes years and drops duplicates, keeping the first occurrence
func Years(years ...string) []string {
	unique := set.NewLinkedHashSetString()
	for _, year := range years {
		unique.Add(core.NormalizeYear(year))
	}

	ordered := make([]string, 0, len(years))
	for year := range unique.Iter() {
		ordered = append(ordered, year)
	}
	return ordered
}

// Run fetches every year in order. A failing year is reported in its result
// and does not stop the sweep; cancelling ctx does.
func (s Sweeper) Run(ctx context.Context, years []string) ([]Result, error) {
	years = Years(years...)
	s.log.Infof("Fetching %d years", len(years))

	progressBar := s.progressBar(len(years))
	results := make([]Result, 0, len(years))

	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		payload, err := s.fetcher.Fetch(ctx, year)
		if err != nil {
			s.log.WithField("year", year).WithError(err).Warn("year failed")
		}
		results = append(results, Result{Year: year, Payload: payload, Err: err})

		if err := progressBar.Add(1); err != nil {
			s.log.Warnf("update progressbar fail: %v", err)
		}
	}

	if err := progressBar.Close(); err != nil {
		s.log.Warnf("Failed to close progress bar: %s", err.Error())
	}

	return results, nil
}

func (s Sweeper) progressBar(total int) *progressbar.ProgressBar {
	writer := s.progress
	if writer == nil {
		writer = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetDescription("fetching years"),
		progressbar.OptionShowCount(),
	)
}

// WriteCSV writes every series point of the successful results
func WriteCSV(w io.Writer, results []Result) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeaders); err != nil {
		return err
	}

	for _, result := range results {
		if result.Payload == nil {
			continue
		}

		series := []struct {
			name string
			data core.Series
		}{
			{"ndvi", result.Payload.NDVI()},
			{"lst", result.Payload.LST()},
		}

		for _, item := range series {
			for i, value := range item.data.Values {
				category := ""
				if i < len(item.data.Categories) {
					category = item.data.Categories[i]
				}
				row := []string{result.Year, item.name, category, strconv.FormatFloat(value, 'f', -1, 64)}
				if err := writer.Write(row); err != nil {
					return err
				}
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
