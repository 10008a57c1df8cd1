package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cian_scrooper/models"
	"cian_scrooper/scheduler"
	"cian_scrooper/scraper"
	"cian_scrooper/storage"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the daily schedule and process queued commands",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		sched := scheduler.New(cfg, a.orch, a.store)
		if err := sched.Start(ctx); err != nil {
			return eris.Wrap(err, "start scheduler")
		}
		zap.L().Info("daemon running", zap.String("schedule", sched.Schedule()))

		<-ctx.Done()
		zap.L().Info("shutting down")
		sched.Stop()
		return nil
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one full pass: listings if needed, then phones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return a.orch.Run(cmd.Context())
	},
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Scrape listings for the configured region into regions.json",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.orch.ScrapeListings(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d listings to %s\n", n, a.artifacts.Path(storage.RegionsFile))
		return nil
	},
}

var phonesCmd = &cobra.Command{
	Use:   "phones",
	Short: "Resolve phones for the listings in regions.json",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		clearData, _ := cmd.Flags().GetBool("clear")
		maxPhones, _ := cmd.Flags().GetInt("max")
		browserOnly, _ := cmd.Flags().GetBool("browser-only")

		stats, err := a.orch.ResolvePhones(cmd.Context(), scraper.PhoneOptions{
			Clear:       clearData,
			MaxPhones:   maxPhones,
			BrowserOnly: browserOnly,
		})
		if err != nil {
			return err
		}
		formatPhoneStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and edit the stored search settings",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		settings, err := store.AllSettings()
		if err != nil {
			return err
		}
		formatSettings(cmd.OutOrStdout(), settings)
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		v, err := store.GetSetting(args[0], "")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateSetting(args[0], args[1]); err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.SetSetting(args[0], args[1])
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or clear the run lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a pass holds the run lock",
	RunE: func(cmd *cobra.Command, _ []string) error {
		runLock, _, err := openLock()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		age, exists := runLock.Age()
		switch {
		case !exists:
			fmt.Fprintln(out, "free")
		case runLock.IsHeld():
			fmt.Fprintf(out, "held for %s (%s)\n", age.Round(time.Second), runLock.Path())
		default:
			fmt.Fprintf(out, "stale marker, %s old (%s)\n", age.Round(time.Second), runLock.Path())
		}
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Remove the run lock marker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		runLock, _, err := openLock()
		if err != nil {
			return err
		}
		if err := runLock.Release(); err != nil {
			return err
		}
		zap.L().Info("run lock released", zap.String("path", runLock.Path()))
		return nil
	},
}

var commandCmd = &cobra.Command{
	Use:   "command <name>",
	Short: "Queue a command for the running daemon",
	Long:  "Queues scrape_now, scrape_listings, scrape_phones, pause or resume for the daemon to pick up.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := models.CommandType(args[0])
		if !name.Valid() {
			return eris.Errorf("unknown command %q", args[0])
		}

		clearData, _ := cmd.Flags().GetBool("clear")
		maxPhones, _ := cmd.Flags().GetInt("max")
		var params *models.CommandParams
		if clearData || maxPhones > 0 {
			params = &models.CommandParams{Clear: clearData, MaxPhones: maxPhones}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.EnqueueCommand(name, params)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (#%d)\n", name, id)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.RecentRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	phonesCmd.Flags().Bool("clear", false, "discard data.json and phones.txt before starting")
	phonesCmd.Flags().Int("max", 0, "maximum listings to process (default MAX_PHONES)")
	phonesCmd.Flags().Bool("browser-only", false, "skip the call-tracking API")

	commandCmd.Flags().Bool("clear", false, "scrape_phones: discard previous phone data")
	commandCmd.Flags().Int("max", 0, "scrape_phones: maximum listings to process")

	runsCmd.Flags().Int("limit", 20, "number of runs to show")

	settingsCmd.AddCommand(settingsListCmd, settingsGetCmd, settingsSetCmd)
	lockCmd.AddCommand(lockStatusCmd, lockReleaseCmd)
	rootCmd.AddCommand(daemonCmd, scrapeCmd, listingsCmd, phonesCmd, settingsCmd, lockCmd, commandCmd, runsCmd)
}

// validateSetting rejects values the scraper could not use.
func validateSetting(key, value string) error {
	switch key {
	case storage.SettingRooms:
		if len(storage.ParseRooms(value)) == 0 {
			return eris.Errorf("rooms must be a comma separated list like 1,2,3")
		}
	case storage.SettingScheduleTime:
		if _, err := scheduler.CronSpec(value, ""); err != nil {
			return err
		}
	case storage.SettingMinPrice, storage.SettingMaxPrice, storage.SettingMinFloor, storage.SettingMaxFloor:
		if value == "" {
			return nil
		}
		if n, err := strconv.ParseInt(value, 10, 64); err != nil || n < 0 {
			return eris.Errorf("%s must be a non-negative number", key)
		}
	case storage.SettingRegion, storage.SettingRegionID, storage.SettingDealType:
	default:
		return eris.Errorf("unknown setting %q", key)
	}
	return nil
}

func formatPhoneStats(w io.Writer, s scraper.PhoneStats) {
	fmt.Fprintf(w, "Selected:  %d\n", s.Selected)
	fmt.Fprintf(w, "Processed: %d\n", s.Processed)
	fmt.Fprintf(w, "Resolved:  %d\n", s.Resolved)
	fmt.Fprintf(w, "Failed:    %d\n", s.Failed)
	fmt.Fprintf(w, "Skipped:   %d\n", s.Skipped)
	sources := make([]string, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		fmt.Fprintf(w, "  %-8s %d\n", src, s.BySource[models.PhoneSource(src)])
	}
}

func formatSettings(w io.Writer, settings map[string]string) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, settings[k])
	}
	tw.Flush() //nolint:errcheck
}

func formatRuns(w io.Writer, runs []models.ScrapeRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tREGION\tSTATUS\tSTARTED\tLISTINGS\tRESOLVED\tFAILED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Kind, r.Region, r.Status, r.StartedAt.Format("2006-01-02 15:04"),
			r.ListingsFound, r.PhonesResolved, r.PhonesFailed, r.ErrorMessage)
	}
	tw.Flush() //nolint:errcheck
}
