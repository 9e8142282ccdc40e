package remote

import (
	"context"
	"strings"
)

// RootFolder selects the whole drive and disables folder scoping.
const RootFolder = "root"

// FolderTree collects every folder under roots, roots included. A folder
// whose listing fails is logged and its subtree left out.
func (g *Ingester) FolderTree(ctx context.Context, roots []string) (map[string]bool, error) {
	tree := map[string]bool{}
	queue := make([]string, 0, len(roots))
	for _, id := range roots {
		id = strings.TrimSpace(id)
		if id == "" || tree[id] {
			continue
		}
		tree[id] = true
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parent := queue[0]
		queue = queue[1:]

		children, err := g.childFolders(ctx, parent)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Warn("list subfolders", "folder", parent, "err", err)
			continue
		}
		for _, id := range children {
			if tree[id] {
				continue
			}
			tree[id] = true
			queue = append(queue, id)
		}
	}
	return tree, nil
}

func (g *Ingester) childFolders(ctx context.Context, parent string) ([]string, error) {
	var out []string
	token := ""
	for pages := 0; pages < g.guards.MaxPages; pages++ {
		page, err := g.lister.List(ctx, PageRequest{
			Token:       token,
			PageSize:    DefaultPageSize,
			ParentIDs:   []string{parent},
			FoldersOnly: true,
			Fields:      "nextPageToken, files(id, name, mimeType)",
		})
		if err != nil {
			return out, err
		}
		for _, it := range page.Items {
			if it.ID != "" && it.IsFolder() {
				out = append(out, it.ID)
			}
		}
		if page.NextToken == "" || page.NextToken == token {
			break
		}
		token = page.NextToken
	}
	return out, nil
}

// folderScope returns the descendant set for ids, or nil when the sync is
// not folder scoped.
func (g *Ingester) folderScope(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == RootFolder {
			return nil, nil
		}
	}
	return g.FolderTree(ctx, ids)
}
