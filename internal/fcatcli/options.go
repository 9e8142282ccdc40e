package fcatcli

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type Options struct {
	ConfigPath string
	DBPath     string
	StateDir   string
	Backend    string
	LogLevel   string
	Jsonl      bool
	Explain    string
	NoColor    bool
	NoProgress bool
}

func (o *Options) Prepare() error {
	o.normalize()

	switch o.Explain {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid --explain %q (expected: text|json)", o.Explain)
	}
	switch o.Backend {
	case "", "sqlite", "sqlite3", "fts5", "bleve":
	default:
		return fmt.Errorf("invalid --backend %q (expected: sqlite|bleve)", o.Backend)
	}
	return nil
}

func (o *Options) normalize() {
	o.ConfigPath = strings.TrimSpace(o.ConfigPath)
	o.DBPath = strings.TrimSpace(o.DBPath)
	o.StateDir = strings.TrimSpace(o.StateDir)
	o.Backend = strings.ToLower(strings.TrimSpace(o.Backend))
	o.LogLevel = strings.TrimSpace(o.LogLevel)
	o.Explain = strings.TrimSpace(o.Explain)
}

type optionsKey struct{}

func optionsFrom(cmd *cobra.Command) *Options {
	if cmd == nil {
		return nil
	}
	root := cmd.Root()
	if root == nil {
		root = cmd
	}
	v := root.Context().Value(optionsKey{})
	opts, _ := v.(*Options)
	return opts
}

func bindFlags(cmd *cobra.Command, opts *Options) {
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "config file (default .fcat/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.DBPath, "database", "d", opts.DBPath, "catalog database /path/to/file.db")
	cmd.PersistentFlags().StringVar(&opts.StateDir, "state-dir", opts.StateDir, "directory for checkpoints and sync times")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", opts.Backend, "text index backend: sqlite|bleve")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&opts.Jsonl, "jsonl", opts.Jsonl, "output as JSONL")
	cmd.PersistentFlags().StringVar(&opts.Explain, "explain", opts.Explain, "print explain info to stderr (text|json)")
	cmd.PersistentFlags().Lookup("explain").NoOptDefVal = "text"
	cmd.PersistentFlags().BoolVarP(&opts.NoColor, "no-color", "z", opts.NoColor, "suppress colors")
	cmd.PersistentFlags().BoolVar(&opts.NoProgress, "no-progress", opts.NoProgress, "suppress progress bars")
}

func ExecuteForTest(cmd *cobra.Command) (string, Options, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	opts := optionsFrom(cmd)
	if opts == nil {
		return out.String(), Options{}, err
	}
	opts.normalize()

	return out.String(), *opts, err
}

func newDefaultOptions() *Options {
	return &Options{}
}

func withOptionsContext(cmd *cobra.Command, opts *Options) {
	cmd.SetContext(context.WithValue(context.Background(), optionsKey{}, opts))
}
