package fcatcli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"filecatalog/internal/core/explain"
	"filecatalog/internal/core/scan"
	"filecatalog/internal/fusion"
	"filecatalog/internal/remote"
)

type syncSummary struct {
	Local  *scan.Report  `json:"local,omitempty"`
	Remote remote.Report `json:"remote"`
	Fusion *fusion.Stats `json:"fusion,omitempty"`
}

func newSyncCommand() *cobra.Command {
	var (
		force      bool
		skipLocal  bool
		skipFusion bool
		folders    []string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan local roots and ingest the remote listing, then fuse",
		Long: "Run the local scan and the remote ingest side by side, then merge the\n" +
			"descriptions of newly ingested remote files into their local matches.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, ex, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			defer emitExplain(cmd, ex)

			lister, err := env.NewLister()
			if err != nil {
				return err
			}
			ing, err := env.NewIngester(lister)
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				folders = env.Config.Remote.FolderIDs
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var sum syncSummary
			g, gctx := errgroup.WithContext(ctx)
			if !skipLocal && len(env.Config.Scan.Roots) > 0 {
				sc, err := env.NewScanner()
				if err != nil {
					return err
				}
				g.Go(func() error {
					rep, err := sc.Run(gctx, env.ScanOptions(nil, force))
					sum.Local = &rep
					return err
				})
			}
			progress, done := newProgress(cmd, "listing remote")
			g.Go(func() error {
				rep, err := ing.Run(gctx, remote.Options{
					Force:     force,
					FolderIDs: folders,
					PageSize:  env.Config.Remote.PageSize,
					BatchSize: env.Config.Remote.BatchSize,
					Progress:  progress,
				})
				sum.Remote = rep
				return err
			})
			err = g.Wait()
			done()
			if err != nil {
				return err
			}

			if !skipFusion && len(sum.Remote.Records) > 0 {
				fe, err := env.NewFusion(nil, explainOf(ex))
				if err != nil {
					return err
				}
				st, err := fe.Fuse(ctx, sum.Remote.Records)
				sum.Fusion = &st
				if err != nil {
					return err
				}
			}
			printSyncSummary(cmd, sum)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "ignore the last sync times")
	cmd.Flags().BoolVar(&skipLocal, "skip-local", false, "do not scan local roots")
	cmd.Flags().BoolVar(&skipFusion, "skip-fusion", false, "do not fuse the ingested remote files")
	cmd.Flags().StringSliceVar(&folders, "folder", nil, "limit the remote ingest to these folder ids and their subfolders")
	return cmd
}

func printSyncSummary(cmd *cobra.Command, sum syncSummary) {
	out := cmd.OutOrStdout()
	if opts := optionsFrom(cmd); opts != nil && opts.Jsonl {
		b, _ := json.Marshal(sum)
		_, _ = fmt.Fprintln(out, string(b))
		return
	}
	if sum.Local != nil {
		printScanReport(cmd, *sum.Local)
	}
	_, _ = fmt.Fprintf(out, "remote: %s items over %s pages, %s written (%s)\n",
		humanize.Comma(int64(sum.Remote.Items)),
		humanize.Comma(int64(sum.Remote.Pages)),
		humanize.Comma(int64(sum.Remote.Flushed)),
		sum.Remote.StopReason,
	)
	if sum.Fusion != nil {
		printFusionStats(cmd, *sum.Fusion)
	}
}

// explainOf keeps a nil collector from becoming a non-nil interface.
func explainOf(ex *ExplainCollector) explain.Explain {
	if ex == nil {
		return nil
	}
	return ex
}
