package fcatd

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filecatalog/internal/app"
	"filecatalog/internal/config"
)

type fixture struct {
	root string
	h    *Handlers
	s    *Server
	addr string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "files")
	writeFile(t, filepath.Join(root, "report 2024.pdf"), "pdf")
	writeFile(t, filepath.Join(root, "album", "sunset.jpg"), "jpg")

	cfg := config.Default()
	cfg.Scan.StateDir = filepath.Join(dir, "state")
	cfg.Catalog.DBPath = filepath.Join(dir, "state", "catalog.db")
	cfg.Scan.Roots = []string{root}
	cfg.Log.Level = "error"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	env, err := app.Open(cfg, nil)
	if err != nil {
		t.Fatalf("open env: %v", err)
	}
	h := NewHandlers(env)
	s := NewServer(Options{Listen: "127.0.0.1:0"}, h)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()
	addr := waitAddr(t, s, time.Second)

	t.Cleanup(func() {
		_ = s.Close()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("server did not stop within 1s after Close")
		}
		_ = h.Close()
		_ = env.Close()
	})
	return &fixture{root: root, h: h, s: s, addr: addr}
}

func (f *fixture) dial(t *testing.T) *Client {
	t.Helper()
	c, err := Dial(f.addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeFile(t *testing.T, p string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitAddr(t *testing.T, s *Server, timeout time.Duration) string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != "" {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server did not start within %s", timeout)
	return ""
}

func waitScan(t *testing.T, c *Client) ScanStatusResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := c.ScanStatus()
		if err != nil {
			t.Fatalf("scan.status: %v", err)
		}
		if !st.Running && st.Last != nil {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scan did not finish within 5s")
	return ScanStatusResult{}
}

func TestServerPingAndVersion(t *testing.T) {
	f := newFixture(t)
	conn, err := net.Dial("tcp", f.addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	if err := enc.Encode(Request{JSONRPC: "2.0", Method: "ping", ID: json.RawMessage("1")}); err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	var pingResp Response
	if err := dec.Decode(&pingResp); err != nil {
		t.Fatalf("decode ping: %v", err)
	}
	if string(pingResp.ID) != "1" || pingResp.Error != nil || pingResp.Result != "pong" {
		t.Fatalf("ping=%+v", pingResp)
	}

	if err := enc.Encode(Request{JSONRPC: "2.0", Method: "version", ID: json.RawMessage("2")}); err != nil {
		t.Fatalf("encode version: %v", err)
	}
	var versionResp Response
	if err := dec.Decode(&versionResp); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if s, ok := versionResp.Result.(string); !ok || s == "" || string(versionResp.ID) != "2" {
		t.Fatalf("version=%+v", versionResp)
	}
}

func TestServerErrorCodes(t *testing.T) {
	f := newFixture(t)
	conn, err := net.Dial("tcp", f.addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	r := bufio.NewReader(conn)

	cases := []struct {
		line string
		code int
	}{
		{`{not json`, codeParseError},
		{`{"jsonrpc":"1.0","id":1,"method":"ping"}`, codeInvalidRequest},
		{`{"jsonrpc":"2.0","id":2,"method":"nope"}`, codeMethodNotFound},
		{`{"jsonrpc":"2.0","id":3,"method":"get","params":{"id":""}}`, codeInvalidParams},
		{`{"jsonrpc":"2.0","id":4,"method":"search","params":"oops"}`, codeInvalidParams},
		{`{"jsonrpc":"2.0","id":5,"method":"get","params":{"id":"/does/not/exist"}}`, codeNotFound},
	}
	for _, tc := range cases {
		// a notification first; it must not produce a response line
		if _, err := conn.Write([]byte(`{"jsonrpc":"2.0","method":"ping"}` + "\n")); err != nil {
			t.Fatalf("write notification: %v", err)
		}
		if _, err := conn.Write([]byte(tc.line + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		line, err := ReadOneLine(r)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("decode %s: %v", line, err)
		}
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: resp=%s", tc.line, line)
		}
	}
}

func TestServerScanSearchAndEdit(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	if err := c.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := c.ScanStart(ScanStartParams{}); err != nil {
		t.Fatalf("scan.start: %v", err)
	}
	st := waitScan(t, c)
	if st.Error != "" || st.Last.Processed != 3 {
		t.Fatalf("scan status=%+v last=%+v", st, st.Last)
	}

	res, err := c.Search(SearchParams{Q: "sunset"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 1 || len(res.Items) != 1 || res.Pages != 1 || res.Page != 1 {
		t.Fatalf("search=%+v", res)
	}
	id := res.Items[0].ID

	top, err := c.Search(SearchParams{})
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if top.Total != 2 {
		t.Fatalf("top level=%+v", top)
	}

	starred, err := c.ToggleStarred(id)
	if err != nil || !starred {
		t.Fatalf("toggle=%v err=%v", starred, err)
	}
	link := "https://drive.test/sunset"
	if err := c.UpdateMetadata(MetadataParams{ID: id, Description: "golden hour", WebLink: &link}); err != nil {
		t.Fatalf("metadata.update: %v", err)
	}
	if err := c.SetThumbnail(id, "/tmp/thumbs/sunset.png"); err != nil {
		t.Fatalf("thumbnail.set: %v", err)
	}

	rec, err := c.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Starred || rec.Description != "golden hour" || rec.WebLink != link || rec.ThumbnailPath != "/tmp/thumbs/sunset.png" {
		t.Fatalf("record=%+v", rec)
	}

	n, err := c.Count(SearchParams{Q: "golden", Starred: true})
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v", n, err)
	}

	chain, err := c.Breadcrumb(id)
	if err != nil || len(chain) != 2 || chain[0].Name != "album" {
		t.Fatalf("breadcrumb=%+v err=%v", chain, err)
	}

	if err := c.SetStarred(id, false); err != nil {
		t.Fatalf("star.set: %v", err)
	}
	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Starred != 0 || stats.Backend != "sqlite" {
		t.Fatalf("stats=%+v", stats)
	}

	var rpcErr *RPCError
	if _, err := c.Get("/nope"); !errors.As(err, &rpcErr) || rpcErr.Code != codeNotFound {
		t.Fatalf("get missing err=%v", err)
	}
}

func TestServerWatch(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	ws, err := c.WatchStart(WatchStartParams{SyncOnStart: true, DebounceMS: 50})
	if err != nil {
		t.Fatalf("watch.start: %v", err)
	}
	if !ws.Running || len(ws.Roots) != 1 {
		t.Fatalf("watch status=%+v", ws)
	}
	waitScan(t, c)

	writeFile(t, filepath.Join(f.root, "album", "new dawn.jpg"), "jpg")
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := c.Count(SearchParams{Q: "dawn"})
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher did not pick up the new file")
		}
		time.Sleep(50 * time.Millisecond)
	}

	ws, err = c.WatchStop()
	if err != nil || ws.Running {
		t.Fatalf("watch.stop=%+v err=%v", ws, err)
	}
	if ws, _ = c.WatchStatus(); ws.Running {
		t.Fatalf("watch still running")
	}
}

func TestReadOneLineSkipsBlankLines(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\n  \n{\"a\":1}\n{\"b\":2}"))
	first, err := ReadOneLine(r)
	if err != nil || string(first) != `{"a":1}` {
		t.Fatalf("first=%q err=%v", first, err)
	}
	second, err := ReadOneLine(r)
	if err != nil || string(second) != `{"b":2}` {
		t.Fatalf("second=%q err=%v", second, err)
	}
	if _, err := ReadOneLine(r); err == nil {
		t.Fatal("expected EOF")
	}
}
