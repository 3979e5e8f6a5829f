package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/tickflow/pkg/telemetry"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the report last published to Redis",
	Long: `Fetch the report a running tickflow published to Redis and print it.

The Redis connection comes from the telemetry section of the config, or from
--redis.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringSlice("redis", nil, "Redis addresses; overrides telemetry.addrs")
	reportCmd.Flags().String("prefix", "", "Key prefix; overrides telemetry.prefix")
	reportCmd.Flags().Bool("json", false, "Print the report as JSON")
	reportCmd.Flags().Duration("timeout", 5*time.Second, "Redis timeout")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("redis") {
		cfg.Telemetry.Addrs, _ = flags.GetStringSlice("redis")
	}
	if flags.Changed("prefix") {
		cfg.Telemetry.Prefix, _ = flags.GetString("prefix")
	}
	if len(cfg.Telemetry.Addrs) == 0 {
		return errors.New("no redis address: set telemetry.addrs or --redis")
	}

	pub, err := telemetry.New(telemetry.Config{
		Client: telemetry.NewClient(cfg.Telemetry.Addrs, cfg.Telemetry.Password, cfg.Telemetry.DB),
		Prefix: cfg.Telemetry.Prefix,
	})
	if err != nil {
		return err
	}
	defer pub.Close()

	timeout, _ := flags.GetDuration("timeout")
	ctx, cancel := contextWithTimeout(cmd, timeout)
	defer cancel()

	r, err := pub.Fetch(ctx)
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("no report published under prefix %q", cfg.Telemetry.Prefix)
	}
	if err != nil {
		return err
	}

	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return printReport(cmd.OutOrStdout(), r)
}

func printReport(out io.Writer, r *telemetry.Report) error {
	fmt.Fprintf(out, "epoch %d, published %s\n\n", r.Epoch, r.PublishedAt.Format(time.RFC3339))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tSTATE\tJOB\tGEN\tRUNS\tAVG\tMAX")
	for _, wk := range r.Workers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			wk.Name, wk.State, wk.JobState, wk.Timing.Generation, wk.Timing.Count,
			wk.Timing.Avg, wk.Timing.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CACHE\tENTRIES\tSOURCE\tCACHED\tEVICTED\tCOEFF")
	for _, c := range r.Caches {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f%%\n",
			c.Name, c.Count, c.SourceReads, c.CacheReads, c.Evictions, c.Coeff())
	}
	return w.Flush()
}
