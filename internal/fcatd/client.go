package fcatd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"filecatalog/internal/model"
)

type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message) }

type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	nextID int64
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func (c *Client) call(method string, params any, out any) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("client is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := Request{JSONRPC: "2.0", Method: method, ID: json.RawMessage(fmt.Sprintf("%d", c.nextID))}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = b
	}

	if err := WriteOneLine(c.w, req); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	line, err := ReadOneLine(c.r)
	if err != nil {
		return err
	}
	var resp rawResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

func (c *Client) Ping() error {
	var out string
	if err := c.call("ping", nil, &out); err != nil {
		return err
	}
	if out != "pong" {
		return fmt.Errorf("unexpected ping result: %q", out)
	}
	return nil
}

func (c *Client) Version() (string, error) {
	var out string
	if err := c.call("version", nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) Search(p SearchParams) (SearchResult, error) {
	var out SearchResult
	err := c.call("search", p, &out)
	return out, err
}

func (c *Client) Count(p SearchParams) (int, error) {
	var out int
	err := c.call("count", p, &out)
	return out, err
}

func (c *Client) Get(id string) (model.FileRecord, error) {
	var out model.FileRecord
	err := c.call("get", IDParams{ID: id}, &out)
	return out, err
}

func (c *Client) Breadcrumb(id string) ([]model.FileRecord, error) {
	var out []model.FileRecord
	err := c.call("breadcrumb", IDParams{ID: id}, &out)
	return out, err
}

func (c *Client) SetStarred(id string, starred bool) error {
	return c.call("star.set", StarParams{ID: id, Starred: starred}, nil)
}

func (c *Client) ToggleStarred(id string) (bool, error) {
	var out bool
	err := c.call("star.toggle", IDParams{ID: id}, &out)
	return out, err
}

func (c *Client) SetThumbnail(id string, path string) error {
	return c.call("thumbnail.set", ThumbnailParams{ID: id, Path: path}, nil)
}

func (c *Client) UpdateMetadata(p MetadataParams) error {
	return c.call("metadata.update", p, nil)
}

func (c *Client) Stats() (StatsResult, error) {
	var out StatsResult
	err := c.call("stats", nil, &out)
	return out, err
}

func (c *Client) ScanStart(p ScanStartParams) (ScanStatusResult, error) {
	var out ScanStatusResult
	err := c.call("scan.start", p, &out)
	return out, err
}

func (c *Client) ScanStatus() (ScanStatusResult, error) {
	var out ScanStatusResult
	err := c.call("scan.status", nil, &out)
	return out, err
}

func (c *Client) ScanStop() (ScanStatusResult, error) {
	var out ScanStatusResult
	err := c.call("scan.stop", nil, &out)
	return out, err
}

func (c *Client) WatchStart(p WatchStartParams) (WatchStatusResult, error) {
	var out WatchStatusResult
	err := c.call("watch.start", p, &out)
	return out, err
}

func (c *Client) WatchStop() (WatchStatusResult, error) {
	var out WatchStatusResult
	err := c.call("watch.stop", nil, &out)
	return out, err
}

func (c *Client) WatchStatus() (WatchStatusResult, error) {
	var out WatchStatusResult
	err := c.call("watch.status", nil, &out)
	return out, err
}
