package fcatcli

import (
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"filecatalog/internal/model"
)

// newProgress returns a progress callback drawing a bar on stderr, and a
// func that finishes the bar. Both are no-ops when progress is disabled.
func newProgress(cmd *cobra.Command, desc string) (model.ProgressFunc, func()) {
	opts := optionsFrom(cmd)
	if opts == nil || opts.NoProgress || opts.Jsonl {
		return nil, func() {}
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	var mu sync.Mutex
	report := func(p model.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Total > 0 && bar.GetMax64() != int64(p.Total) {
			bar.ChangeMax64(int64(p.Total))
		}
		_ = bar.Set(p.Processed)
		if p.Message != "" {
			bar.Describe(p.Message)
		}
	}
	return report, func() {
		mu.Lock()
		defer mu.Unlock()
		_ = bar.Finish()
	}
}
