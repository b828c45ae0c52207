package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	errwrap "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage cached responses",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	Long:  "Remove every cached response. Other keys in the store are left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, "cache-clear", func(ctx context.Context, svc *app) (*output.Status, error) {
			removed, err := svc.client.ClearCache(ctx)
			if err != nil {
				return nil, err
			}
			return &output.Status{Online: svc.client.Online(), Removed: &removed}, nil
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, "cache-stats", func(ctx context.Context, svc *app) (*output.Status, error) {
			stats, err := svc.cache.Stats(ctx, time.Now())
			if err != nil {
				return nil, err
			}
			return &output.Status{Online: svc.client.Online(), Cache: &stats}, nil
		})
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired and unreadable cached responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, "cache-purge", func(ctx context.Context, svc *app) (*output.Status, error) {
			removed, err := svc.cache.PurgeExpired(ctx, time.Now())
			if err != nil {
				return nil, err
			}
			return &output.Status{Online: svc.client.Online(), Removed: &removed}, nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withCache runs fn against a dispatcher built from the active config and
// writes the resulting status report.
func withCache(cmd *cobra.Command, name string, fn func(context.Context, *app) (*output.Status, error)) (err error) {
	defer func() { metrics.RecordCommand(name, err == nil) }()

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return errwrap.NewInvalidInputError(err.Error())
	}

	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
	}

	svc, err := newApp(ctx, cfg, cliLogger())
	if err != nil {
		return errwrap.WrapInternal(ctx, err, "failed to initialize dispatcher")
	}
	defer svc.Close(context.WithoutCancel(ctx)) // nolint:errcheck // best-effort cleanup

	status, err := fn(ctx, svc)
	if err != nil {
		return errwrap.WrapInternal(ctx, err, fmt.Sprintf("%s failed", name))
	}
	return writeOutput(cmd.OutOrStdout(), name, format, func(f output.Formatter) (string, error) {
		return f.FormatStatus(status)
	})
}
