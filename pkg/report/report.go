// Package report prints terminal summaries of update payloads and refresh
// history.
package report

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Stats describes one series
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64
}

// Describe computes the descriptive statistics of values
func Describe(values []float64) Stats {
	low, high, ok := core.Bounds(values)
	if !ok {
		return Stats{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	stats := Stats{
		Count:  len(values),
		Min:    low,
		Max:    high,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
	if len(values) > 1 {
		stats.Mean, stats.StdDev = stat.MeanStdDev(values, nil)
	} else {
		stats.Mean = values[0]
	}
	return stats
}

// YearSummary describes the payload of one year
type YearSummary struct {
	Year    string
	NDVI    Stats
	LST     Stats
	Aligned bool
	// NDVIMean is the bootstrap interval of the mean NDVI value
	NDVIMean Interval
	raw      []float64
}

// Summarize describes the series of a payload
func Summarize(year string, payload *core.Payload) YearSummary {
	ndvi, lst := payload.NDVI(), payload.LST()
	return YearSummary{
		Year:     year,
		NDVI:     Describe(ndvi.Values),
		LST:      Describe(lst.Values),
		Aligned:  ndvi.Aligned() && lst.Aligned(),
		NDVIMean: Bootstrap(ndvi.Values, Mean, 1000, 0.95),
		raw:      ndvi.Values,
	}
}

func statsRow(year, series string, stats Stats) []string {
	return []string{
		year,
		series,
		strconv.Itoa(stats.Count),
		fmt.Sprintf("%.3f", stats.Min),
		fmt.Sprintf("%.3f", stats.Max),
		fmt.Sprintf("%.3f", stats.Mean),
		fmt.Sprintf("%.3f", stats.StdDev),
		fmt.Sprintf("%.3f", stats.Median),
	}
}

// Fprint writes the summary table of every year followed by the NDVI
// distribution and the confidence intervals of its mean
func Fprint(w io.Writer, summaries []YearSummary) error {
	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Year", "Series", "Points", "Min", "Max", "Mean", "Std Dev", "Median"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)

	for _, summary := range summaries {
		table.Append(statsRow(summary.Year, "NDVI", summary.NDVI))
		table.Append(statsRow(summary.Year, "LST", summary.LST))
	}

	misaligned := lo.CountBy(summaries, func(summary YearSummary) bool { return !summary.Aligned })
	points := lo.SumBy(summaries, func(summary YearSummary) int { return summary.NDVI.Count + summary.LST.Count })
	table.SetFooter([]string{
		"TOTAL",
		fmt.Sprintf("%d years", len(summaries)),
		strconv.Itoa(points),
		"", "", "", "",
		fmt.Sprintf("%d misaligned", misaligned),
	})
	table.Render()

	if _, err := fmt.Fprintln(w, buffer.String()); err != nil {
		return err
	}

	values := lo.FlatMap(summaries, func(summary YearSummary, _ int) []float64 { return summary.raw })
	// the histogram needs a non empty value range
	if low, high, ok := core.Bounds(values); ok && high > low {
		fmt.Fprintln(w, "------ NDVI DISTRIBUTION -------")
		hist := histogram.Hist(10, values)
		if err := histogram.Fprint(w, hist, histogram.Linear(10)); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "------ NDVI MEAN (95%) -------")
	for _, summary := range summaries {
		fmt.Fprintf(w, "%s: %.3f (%.3f ~ %.3f)\n",
			summary.Year, summary.NDVIMean.Mean, summary.NDVIMean.Lower, summary.NDVIMean.Upper)
	}

	return nil
}

// FprintHistory writes refresh attempts as a table with per status totals
func FprintHistory(w io.Writer, records []core.RefreshRecord) error {
	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Finished", "Year", "Refresh", "Status", "Elapsed", "Error"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)

	for _, record := range records {
		table.Append([]string{
			record.FinishedAt.Format(time.DateTime),
			record.Year,
			strconv.FormatUint(record.Generation, 10),
			string(record.Status),
			record.FinishedAt.Sub(record.StartedAt).Round(time.Millisecond).String(),
			record.Error,
		})
	}

	counts := lo.CountValuesBy(records, func(record core.RefreshRecord) core.RefreshStatus { return record.Status })
	table.SetFooter([]string{
		"TOTAL",
		strconv.Itoa(len(records)),
		"",
		fmt.Sprintf("%d applied", counts[core.RefreshApplied]),
		fmt.Sprintf("%d superseded", counts[core.RefreshSuperseded]),
		fmt.Sprintf("%d failed", counts[core.RefreshFailed]),
	})
	table.Render()

	_, err := fmt.Fprintln(w, buffer.String())
	return err
}
