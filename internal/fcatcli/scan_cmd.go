package fcatcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filecatalog/internal/app"
	"filecatalog/internal/core/scan"
	"filecatalog/internal/core/walk"
	"filecatalog/internal/core/watch"
)

func newScanCommand() *cobra.Command {
	var (
		force      bool
		countFirst bool
		watchMode  bool
		exclude    []string
	)
	cmd := &cobra.Command{
		Use:   "scan [roots...]",
		Short: "Scan local roots into the catalog",
		Long: "Walk the given roots (or scan.roots from the config) and upsert every\n" +
			"file and directory. Without --force only entries modified since the\n" +
			"last completed scan are written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			sc, err := env.NewScanner()
			if err != nil {
				return err
			}
			sopts := env.ScanOptions(args, force)
			sopts.CountFirst = countFirst
			sopts.Exclude = append(sopts.Exclude, exclude...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			progress, done := newProgress(cmd, "scanning")
			sopts.Progress = progress
			rep, err := sc.Run(ctx, sopts)
			done()
			if err != nil && !errors.Is(err, scan.ErrCancelled) {
				return err
			}
			printScanReport(cmd, rep)
			if err != nil || !watchMode {
				return err
			}
			return watchRoots(ctx, cmd, env, sc, sopts)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "rescan everything, ignoring the last scan time")
	cmd.Flags().BoolVar(&countFirst, "count", false, "count entries first to show a bounded progress bar")
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "keep watching the roots after the scan")
	cmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "exclude glob (repeatable or comma-separated)")
	return cmd
}

func printScanReport(cmd *cobra.Command, rep scan.Report) {
	if opts := optionsFrom(cmd); opts != nil && opts.Jsonl {
		b, _ := json.Marshal(rep)
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scanned %s entries (%s written, %s skipped, %s errors) in %s\n",
		humanize.Comma(int64(rep.Processed)),
		humanize.Comma(int64(rep.Flushed)),
		humanize.Comma(int64(rep.Skipped)),
		humanize.Comma(int64(rep.Errors)),
		rep.Duration.Round(time.Millisecond),
	)
}

// watchRoots rescans changed paths until ctx is done.
func watchRoots(ctx context.Context, cmd *cobra.Command, env *app.Env, sc *scan.Scanner, sopts scan.Options) error {
	sopts.Progress = nil
	sopts.CountFirst = false

	w, err := watch.NewWatcher(sopts.Roots, watch.Options{
		Debounce:         env.Config.Scan.DebounceDuration,
		AdaptiveDebounce: true,
		Filter: walk.Options{
			RespectIgnore: sopts.RespectIgnore,
			SkipHidden:    sopts.SkipHidden,
			ExcludeGlobs:  sopts.Exclude,
		},
		Ignore: env.IgnorePaths(),
		OnChange: func(paths []string) {
			rep, err := sc.ScanPaths(ctx, sopts, paths)
			if err != nil {
				env.Log.Warn("rescan failed", "paths", len(paths), "err", err)
				return
			}
			env.Log.Info("rescanned changed paths",
				"paths", len(paths),
				"processed", rep.Processed,
				"deleted", rep.Deleted,
			)
		},
		Logger: env.Log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "watching %d root(s), press Ctrl+C to stop\n", len(w.Roots()))
	return w.Run(ctx)
}
