package fcatcli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filecatalog/internal/app"
	"filecatalog/internal/core/search"
	"filecatalog/internal/index/store"
)

const dateLayout = "2006-01-02"

type searchFlags struct {
	page      int
	pageSize  int
	sort      string
	typ       string
	source    string
	folder    string
	localOnly bool
	starred   bool
	count     bool
	exts      []string
	mime      string
	minMB     float64
	maxMB     float64

	createdAfter   string
	createdBefore  string
	modifiedAfter  string
	modifiedBefore string
}

func (f *searchFlags) bind(cmd *cobra.Command, withFolder bool) {
	fl := cmd.Flags()
	fl.IntVarP(&f.page, "page", "p", 1, "page number, starting at 1")
	fl.IntVar(&f.pageSize, "page-size", 0, "results per page (default from config)")
	fl.StringVar(&f.sort, "sort", string(store.SortNameAsc), "name|size|created|modified with _asc or _desc")
	fl.StringVar(&f.typ, "type", "", "images|videos|documents|audios|other or a mime class")
	fl.StringVar(&f.source, "source", "", "local|remote|all")
	if withFolder {
		fl.StringVar(&f.folder, "folder", "", "only direct children of this folder id")
	}
	fl.BoolVar(&f.localOnly, "local-only", false, "only local files")
	fl.BoolVar(&f.starred, "starred", false, "only starred files")
	fl.BoolVar(&f.count, "count", false, "print the number of results only")
	fl.StringSliceVar(&f.exts, "ext", nil, "file extensions (repeatable or comma-separated)")
	fl.StringVar(&f.mime, "mime", "", "exact mime type")
	fl.Float64Var(&f.minMB, "min-mb", 0, "minimum size in MB")
	fl.Float64Var(&f.maxMB, "max-mb", 0, "maximum size in MB")
	fl.StringVar(&f.createdAfter, "created-after", "", "created on or after YYYY-MM-DD")
	fl.StringVar(&f.createdBefore, "created-before", "", "created before YYYY-MM-DD")
	fl.StringVar(&f.modifiedAfter, "modified-after", "", "modified on or after YYYY-MM-DD")
	fl.StringVar(&f.modifiedBefore, "modified-before", "", "modified before YYYY-MM-DD")
}

func (f *searchFlags) request(env *app.Env, term string) (search.Request, error) {
	req := search.Request{
		Source:        f.source,
		Page:          f.page,
		PageSize:      f.pageSize,
		SearchTerm:    term,
		Sort:          store.SortKey(f.sort),
		TypeFilter:    f.typ,
		FolderID:      f.folder,
		RestrictLocal: f.localOnly,
		Advanced: search.Advanced{
			Starred:    f.starred,
			SizeMinMB:  f.minMB,
			SizeMaxMB:  f.maxMB,
			Extensions: f.exts,
			MimeType:   f.mime,
		},
	}
	if req.PageSize <= 0 {
		req.PageSize = env.Config.Search.PageSize
	}
	if f.minMB < 0 || f.maxMB < 0 {
		return req, fmt.Errorf("sizes must not be negative")
	}

	dates := []struct {
		flag string
		in   string
		out  **time.Time
	}{
		{"--created-after", f.createdAfter, &req.Advanced.CreatedAfter},
		{"--created-before", f.createdBefore, &req.Advanced.CreatedBefore},
		{"--modified-after", f.modifiedAfter, &req.Advanced.ModifiedAfter},
		{"--modified-before", f.modifiedBefore, &req.Advanced.ModifiedBefore},
	}
	for _, d := range dates {
		if strings.TrimSpace(d.in) == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(d.in), time.Local)
		if err != nil {
			return req, fmt.Errorf("invalid %s %q (expected YYYY-MM-DD)", d.flag, d.in)
		}
		*d.out = &t
	}
	return req, nil
}

func newQCommand() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "q <query...>",
		Short: "Search the catalog",
		Long: "Search names and descriptions. Words are matched as substrings of at\n" +
			"least three characters; -word excludes, \"a phrase\" matches exactly and\n" +
			"is:starred, after:, before: and created: filter the results.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, &f, strings.Join(args, " "))
		},
	}
	f.bind(cmd, false)
	return cmd
}

func newLsCommand() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List the top level, or the children of a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.folder = args[0]
			}
			return runSearch(cmd, &f, "")
		},
	}
	f.bind(cmd, false)
	return cmd
}

func runSearch(cmd *cobra.Command, f *searchFlags, term string) error {
	env, ex, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()
	defer emitExplain(cmd, ex)

	req, err := f.request(env, term)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	total, err := env.Search.Count(ctx, req)
	if err != nil {
		return err
	}
	if f.count {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), total)
		return nil
	}
	recs, err := env.Search.LoadPage(ctx, req)
	if err != nil {
		return err
	}

	opts := optionsFrom(cmd)
	if opts != nil && opts.Jsonl {
		writeOut(cmd.OutOrStdout(), RenderJSONL(recs))
		return nil
	}
	writeOut(cmd.OutOrStdout(), RenderDefault(recs))
	pages := (total + req.PageSize - 1) / req.PageSize
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "page %d of %d (%s results)\n",
		max(req.Page, 1), max(pages, 1), humanize.Comma(int64(total)))
	return nil
}
