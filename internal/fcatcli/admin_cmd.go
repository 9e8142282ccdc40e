package fcatcli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"filecatalog/internal/model"
)

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "clear <local|remote>",
		Short:     "Delete every record of one source",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"local", "remote"},
		RunE: func(cmd *cobra.Command, args []string) error {
			src, ok := model.ParseSource(args[0])
			if !ok {
				return fmt.Errorf("unknown source %q (expected local|remote)", args[0])
			}
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			n, err := env.Store.ClearSource(cmd.Context(), src)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s %s records\n", humanize.Comma(int64(n)), src)
			return nil
		},
	}
}

type syncer interface {
	Sync(ctx context.Context) (int, error)
}

func newReindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the full-text index from the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			n, err := env.Store.RebuildSearchIndex(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "indexed %s records\n", humanize.Comma(int64(n)))
			if s, ok := env.Text.(syncer); ok {
				changed, err := s.Sync(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s documents updated\n", env.Text.Name(), humanize.Comma(int64(changed)))
			}
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			st, err := env.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts := optionsFrom(cmd); opts != nil && opts.Jsonl {
				b, _ := json.Marshal(map[string]any{
					"total":     st.Total,
					"by_source": st.BySource,
					"starred":   st.Starred,
					"version":   st.Version,
					"backend":   env.Text.Name(),
				})
				_, _ = fmt.Fprintln(out, string(b))
				return nil
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", color.HiCyanString("total:"), humanize.Comma(int64(st.Total)))
			srcs := make([]string, 0, len(st.BySource))
			for s := range st.BySource {
				srcs = append(srcs, string(s))
			}
			sort.Strings(srcs)
			for _, s := range srcs {
				_, _ = fmt.Fprintf(out, "  %s: %s\n", s, humanize.Comma(int64(st.BySource[model.Source(s)])))
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", color.HiCyanString("starred:"), humanize.Comma(int64(st.Starred)))
			_, _ = fmt.Fprintf(out, "%s %d (%s)\n", color.HiCyanString("version:"), st.Version, env.Text.Name())
			return nil
		},
	}
}
