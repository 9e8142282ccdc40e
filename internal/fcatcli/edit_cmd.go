package fcatcli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"filecatalog/internal/index/store"
)

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one catalog record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			r, err := env.Store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if opts := optionsFrom(cmd); opts != nil && opts.Jsonl {
				b, _ := json.Marshal(r)
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			writeOut(cmd.OutOrStdout(), RenderRecord(r))
			return nil
		},
	}
}

func newBreadcrumbCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "breadcrumb <id>",
		Short: "Show the folder chain leading to a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			chain, err := env.Store.Breadcrumb(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts := optionsFrom(cmd); opts != nil && opts.Jsonl {
				writeOut(cmd.OutOrStdout(), RenderJSONL(chain))
				return nil
			}
			names := make([]string, 0, len(chain))
			for _, r := range chain {
				names = append(names, r.Name)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, " / "))
			return nil
		},
	}
}

func newStarCommand() *cobra.Command {
	var off, toggle bool
	cmd := &cobra.Command{
		Use:   "star <id>",
		Short: "Star a record, or unstar it with --off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if off && toggle {
				return fmt.Errorf("--off and --toggle are mutually exclusive")
			}
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			starred := !off
			if toggle {
				starred, err = env.Store.ToggleStarred(cmd.Context(), args[0])
			} else {
				err = env.Store.SetStarred(cmd.Context(), args[0], starred)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s starred=%t\n", args[0], starred)
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "remove the star")
	cmd.Flags().BoolVarP(&toggle, "toggle", "t", false, "flip the current star")
	return cmd
}

func newDescribeCommand() *cobra.Command {
	var link, thumb string
	cmd := &cobra.Command{
		Use:   "describe <id> [text...]",
		Short: "Set a record's description; no text clears it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			md := store.Metadata{Description: strings.Join(args[1:], " ")}
			if cmd.Flags().Changed("link") {
				md.WebLink = &link
			}
			if cmd.Flags().Changed("thumbnail-link") {
				md.ThumbnailLink = &thumb
			}
			if err := env.Store.UpdateMetadata(cmd.Context(), args[0], md); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&link, "link", "", "also set the web link")
	cmd.Flags().StringVar(&thumb, "thumbnail-link", "", "also set the thumbnail link")
	return cmd
}

func newThumbnailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "thumbnail <id> <path>",
		Short: "Record where a cached thumbnail for a record lives",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			if err := env.Store.UpdateThumbnailPath(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return nil
		},
	}
}
