package fcatcli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"filecatalog/internal/app"
	"filecatalog/internal/config"
	"filecatalog/internal/logger"
)

// openEnv loads the configuration, applies flag overrides and opens the
// catalog. Callers close the returned env.
func openEnv(cmd *cobra.Command) (*app.Env, *ExplainCollector, error) {
	opts := optionsFrom(cmd)
	if opts == nil {
		return nil, nil, fmt.Errorf("options missing")
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	log, closer, err := logger.Setup(cfg.Log.Level, cfg.Log.File, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	env, err := app.Open(cfg, log)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	env.Track(closer)

	var ex *ExplainCollector
	if opts.Explain != "" {
		ex = NewExplainCollector(opts.Explain)
		env.Search = env.Search.WithExplain(ex)
	}
	return env, ex, nil
}

func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.StateDir != "" {
		cfg.Scan.StateDir = opts.StateDir
		if opts.DBPath == "" {
			cfg.Catalog.DBPath = filepath.Join(opts.StateDir, "catalog.db")
		}
	}
	if opts.DBPath != "" {
		cfg.Catalog.DBPath = opts.DBPath
	}
	if opts.Backend != "" {
		cfg.Catalog.Backend = opts.Backend
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, cfg.Validate()
}

// emitExplain prints collected explain data to stderr.
func emitExplain(cmd *cobra.Command, ex *ExplainCollector) {
	if ex == nil {
		return
	}
	_ = ex.Emit(cmd.ErrOrStderr())
}
