package fcatcli

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filecatalog/internal/fusion"
)

func newFuseCommand() *cobra.Command {
	var (
		policy    string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "fuse",
		Short: "Merge stored remote files into their local matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, ex, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			defer emitExplain(cmd, ex)

			if policy != "" {
				env.Config.Fusion.Policy = policy
			}
			if batchSize <= 0 {
				batchSize = env.Config.Fusion.BatchSize
			}

			opts := optionsFrom(cmd)
			var (
				mu     sync.Mutex
				events []fusion.Event
			)
			var sink fusion.EventSink
			if opts != nil && opts.Jsonl {
				sink = func(ev fusion.Event) {
					mu.Lock()
					events = append(events, ev)
					mu.Unlock()
				}
			}
			fe, err := env.NewFusion(sink, explainOf(ex))
			if err != nil {
				return err
			}

			progress, done := newProgress(cmd, "fusing")
			st, err := fe.FuseAll(cmd.Context(), fusion.FuseAllOptions{
				BatchSize: batchSize,
				Progress:  progress,
			})
			done()

			if opts != nil && opts.Jsonl {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, ev := range events {
					_ = enc.Encode(ev)
				}
			}
			printFusionStats(cmd, st)
			return err
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "ambiguity policy: best|all (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "remote rows per fusion batch")
	return cmd
}

func printFusionStats(cmd *cobra.Command, st fusion.Stats) {
	out := cmd.OutOrStdout()
	if opts := optionsFrom(cmd); opts != nil && opts.Jsonl {
		b, _ := json.Marshal(st)
		_, _ = fmt.Fprintln(out, string(b))
		return
	}
	_, _ = fmt.Fprintf(out, "fusion: %s eligible, %s matched, %s fused, %s ambiguous, %s conflicts, %s unmatched, %s remote rows removed\n",
		humanize.Comma(int64(st.Eligible)),
		humanize.Comma(int64(st.Matched)),
		humanize.Comma(int64(st.Fused)),
		humanize.Comma(int64(st.Ambiguous)),
		humanize.Comma(int64(st.Conflicts)),
		humanize.Comma(int64(st.Unmatched)),
		humanize.Comma(int64(st.Deleted)),
	)
}
