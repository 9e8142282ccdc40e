package fcatcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"filecatalog/internal/version"
)

func NewRootCommand() *cobra.Command {
	opts := newDefaultOptions()
	cmd := &cobra.Command{
		Use:   "fcat",
		Short: "Catalog of local and remote files",
		Long: "fcat keeps one searchable catalog of files found on local disks and\n" +
			"in a remote drive, and merges remote descriptions into local files.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()
	cmd.InitDefaultVersionFlag()
	if f := cmd.Flags().Lookup("version"); f != nil {
		f.Shorthand = "v"
	}

	withOptionsContext(cmd, opts)
	bindFlags(cmd, opts)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		opts := optionsFrom(cmd)
		if opts == nil {
			return fmt.Errorf("options missing")
		}
		if err := opts.Prepare(); err != nil {
			return err
		}
		applyColor(opts)
		return nil
	}

	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newSyncCommand())
	cmd.AddCommand(newFuseCommand())
	cmd.AddCommand(newQCommand())
	cmd.AddCommand(newLsCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newBreadcrumbCommand())
	cmd.AddCommand(newStarCommand())
	cmd.AddCommand(newDescribeCommand())
	cmd.AddCommand(newThumbnailCommand())
	cmd.AddCommand(newClearCommand())
	cmd.AddCommand(newReindexCommand())
	cmd.AddCommand(newStatsCommand())
	return cmd
}
