package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultFields = "nextPageToken, files(id, name, mimeType, description, thumbnailLink, webViewLink, size, modifiedTime, createdTime, parents)"

// TokenSource hands out bearer tokens; refreshing them is the caller's
// business.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// EnvToken reads the token from an environment variable on every request.
type EnvToken string

func (e EnvToken) Token(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", fmt.Errorf("environment variable %s is empty", string(e))
	}
	return v, nil
}

type HTTPOptions struct {
	BaseURL   string
	Tokens    TokenSource
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// HTTPLister lists files with GET {base}/files and a JSON page body.
type HTTPLister struct {
	base       string
	tokens     TokenSource
	userAgent  string
	httpClient *http.Client
}

func NewHTTPLister(opts HTTPOptions) (*HTTPLister, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("remote base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("remote base url: %w", err)
	}
	l := &HTTPLister{
		base:       base,
		tokens:     opts.Tokens,
		userAgent:  opts.UserAgent,
		httpClient: opts.Client,
	}
	if l.userAgent == "" {
		l.userAgent = "filecatalog"
	}
	if l.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		l.httpClient = &http.Client{Timeout: timeout}
	}
	return l, nil
}

func (l *HTTPLister) List(ctx context.Context, req PageRequest) (Page, error) {
	params := url.Values{}
	if req.Token != "" {
		params.Set("pageToken", req.Token)
	}
	if req.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(req.PageSize))
	}
	if !req.ModifiedAfter.IsZero() {
		params.Set("modifiedAfter", req.ModifiedAfter.UTC().Format(TimeLayout))
	}
	for _, id := range req.ParentIDs {
		params.Add("parent", id)
	}
	if req.FoldersOnly {
		params.Set("foldersOnly", "true")
	}
	fields := req.Fields
	if fields == "" {
		fields = defaultFields
	}
	params.Set("fields", fields)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, l.base+"/files?"+params.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	httpReq.Header.Set("User-Agent", l.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if l.tokens != nil {
		tok, err := l.tokens.Token(ctx)
		if err != nil {
			return Page{}, fmt.Errorf("remote token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return Page{}, &StatusError{Code: resp.StatusCode, Body: msg}
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return Page{}, fmt.Errorf("decode remote page: %w", err)
	}
	return page, nil
}
