package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raykavin/rsdash"
	"github.com/raykavin/rsdash/internal/config"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/report"
	"github.com/raykavin/rsdash/pkg/storage"
	"github.com/raykavin/rsdash/pkg/sweep"
	"github.com/spf13/cobra"
)

// Command line flags
var (
	configFile string

	// Fetch and sweep command flags
	years      []string
	outputFile string

	// History command flags
	limit  int
	year   string
	status string
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:          "rsdash",
		Short:        "Remote sensing dashboard for vegetation and land surface temperature",
		Version:      "1.0.0",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (e.g. ./rsdash.yaml)")

	// Add commands
	rootCmd.AddCommand(buildServeCmd(), buildFetchCmd(), buildSweepCmd(), buildHistoryCmd())

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and refresh it on year changes",
		RunE:  runServe,
	}
}

func buildFetchCmd() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch [year]",
		Short: "Fetch the payload of one year and print its summary",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFetch,
	}
	return fetchCmd
}

func buildSweepCmd() *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fetch several years and print their summaries",
		RunE:  runSweep,
	}

	sweepCmd.Flags().StringSliceVarP(&years, "years", "y", core.KnownYears, "Years to fetch (e.g. 2019,2020)")
	sweepCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write every series point to a CSV file (e.g. ./series.csv)")

	return sweepCmd
}

func buildHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print the latest refresh attempts",
		RunE:  runHistory,
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records, 0 prints all")
	historyCmd.Flags().StringVarP(&year, "year", "y", "", "Only records of this year")
	historyCmd.Flags().StringVarP(&status, "status", "s", "", "Only records with this status (applied, superseded, failed)")

	return historyCmd
}

// loadDashboard reads the configuration and assembles the dashboard.
// Offline commands never start the notifiers.
func loadDashboard(offline bool) (*rsdash.Dashboard, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if offline {
		cfg.Telegram.Enabled = false
		cfg.Mail.Enabled = false
	}

	return rsdash.New(cfg)
}

func runServe(cmd *cobra.Command, _ []string) error {
	dash, err := loadDashboard(false)
	if err != nil {
		return err
	}
	defer dash.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return dash.Run(ctx)
}

func runFetch(cmd *cobra.Command, args []string) error {
	dash, err := loadDashboard(true)
	if err != nil {
		return err
	}
	defer dash.Close()

	selected := core.DefaultYear
	if len(args) > 0 {
		selected = core.NormalizeYear(args[0])
	}

	payload, err := dash.Fetcher().Fetch(cmd.Context(), selected)
	if err != nil {
		return err
	}

	return report.Fprint(cmd.OutOrStdout(), []report.YearSummary{report.Summarize(selected, payload)})
}

func runSweep(cmd *cobra.Command, _ []string) error {
	dash, err := loadDashboard(true)
	if err != nil {
		return err
	}
	defer dash.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := sweep.New(dash.Fetcher(), sweep.WithLogger(rsdash.DefaultLog))
	results, err := sweeper.Run(ctx, years)
	if err != nil {
		return err
	}

	if outputFile != "" {
		if err := writeCSV(outputFile, results); err != nil {
			return err
		}
	}

	var (
		summaries []report.YearSummary
		failures  []error
	)
	for _, result := range results {
		if result.Err != nil {
			failures = append(failures, fmt.Errorf("year %s: %w", result.Year, result.Err))
			continue
		}
		summaries = append(summaries, report.Summarize(result.Year, result.Payload))
	}

	if err := report.Fprint(cmd.OutOrStdout(), summaries); err != nil {
		return err
	}

	return errors.Join(failures...)
}

func writeCSV(path string, results []sweep.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := sweep.WriteCSV(file, results); err != nil {
		file.Close()
		return err
	}

	rsdash.DefaultLog.Infof("Series written to %s", path)
	return file.Close()
}

func runHistory(cmd *cobra.Command, _ []string) error {
	dash, err := loadDashboard(true)
	if err != nil {
		return err
	}
	defer dash.Close()

	history := dash.History()
	if history == nil {
		return errors.New("refresh history is disabled")
	}

	var filters []storage.HistoryFilter
	if year != "" {
		filters = append(filters, storage.WithYear(year))
	}
	if status != "" {
		filters = append(filters, storage.WithStatus(core.RefreshStatus(status)))
	}

	records, err := history.Records(context.Background(), limit, filters...)
	if err != nil {
		return err
	}

	return report.FprintHistory(cmd.OutOrStdout(), records)
}
