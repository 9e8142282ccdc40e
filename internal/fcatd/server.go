// Package fcatd serves the catalog over line-delimited JSON-RPC 2.0 on TCP.
package fcatd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"filecatalog/internal/index/store"
	"filecatalog/internal/version"
)

const DefaultListen = "127.0.0.1:7878"

type Options struct {
	Listen string
	Logger *slog.Logger
}

type Server struct {
	opts Options
	h    *Handlers
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	closeOnce sync.Once
	closed    chan struct{}
}

func NewServer(opts Options, h *Handlers) *Server {
	if opts.Listen == "" {
		opts.Listen = DefaultListen
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		h:      h,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		closed: make(chan struct{}),
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Run() error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	defer func() { _ = w.Flush() }()

	for {
		var req Request
		line, err := ReadOneLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				s.log.Debug("connection closed", "remote", conn.RemoteAddr().String(), "err", err)
			}
			return
		}

		if err := json.Unmarshal(line, &req); err != nil {
			_ = WriteOneLine(w, Response{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &ErrorObject{Code: codeParseError, Message: "parse error"},
			})
			_ = w.Flush()
			continue
		}

		if len(req.ID) == 0 {
			// Notification: no response.
			_ = s.dispatch(req)
			continue
		}

		resp := s.dispatch(req)
		_ = WriteOneLine(w, resp)
		_ = w.Flush()
	}
}

func decodeParams(req Request, out any) *ErrorObject {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return &ErrorObject{Code: codeInvalidParams, Message: "invalid params"}
	}
	return nil
}

func requireID(id string) *ErrorObject {
	if strings.TrimSpace(id) == "" {
		return &ErrorObject{Code: codeInvalidParams, Message: "id is required"}
	}
	return nil
}

func serverError(err error) *ErrorObject {
	if errors.Is(err, store.ErrNotFound) {
		return &ErrorObject{Code: codeNotFound, Message: err.Error()}
	}
	return &ErrorObject{Code: codeServerError, Message: err.Error()}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		resp.Error = &ErrorObject{Code: codeInvalidRequest, Message: "invalid jsonrpc version"}
		return resp
	}

	ctx := s.ctx
	var err error
	switch req.Method {
	case "ping":
		resp.Result = "pong"
	case "version":
		resp.Result = version.String()
	case "search", "count":
		var p SearchParams
		if resp.Error = decodeParams(req, &p); resp.Error != nil {
			return resp
		}
		if req.Method == "count" {
			resp.Result, err = s.h.Count(ctx, p)
		} else {
			resp.Result, err = s.h.Search(ctx, p)
		}
	case "get", "breadcrumb", "star.toggle":
		var p IDParams
		if resp.Error = decodeParams(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireID(p.ID); resp.Error != nil {
			return resp
		}
		switch req.Method {
		case "get":
			resp.Result, err = s.h.Get(ctx, p)
		case "breadcrumb":
			resp.Result, err = s.h.Breadcrumb(ctx, p)
		default:
			resp.Result, err = s.h.ToggleStarred(ctx, p)
		}
	case "star.set":
		var p StarParams
		if resp.Error = decodeParams(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireID(p.ID); resp.Error != nil {
			return resp
		}
		resp.Result, err = s.h.SetStarred(ctx, p)
	case "thumbnail.set":
		var p ThumbnailParams
		if resp.Error = decodeParams(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireID(p.ID); resp.Error != nil {
			return resp
		}
		if err = s.h.SetThumbnail(ctx, p); err == nil {
			resp.Result = true
		}
	case "metadata.update":
		var p MetadataParams
		if resp.Error = decodeParams(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireID(p.ID); resp.Error != nil {
			return resp
		}
		if err = s.h.UpdateMetadata(ctx, p); err == nil {
			resp.Result = true
		}
	case "stats":
		resp.Result, err = s.h.Stats(ctx)
	case "scan.start":
		var p ScanStartParams
		if resp.Error = decodeParams(req, &p); resp.Error != nil {
			return resp
		}
		resp.Result, err = s.h.ScanStart(p)
	case "scan.stop":
		resp.Result = s.h.ScanStop()
	case "scan.status":
		resp.Result = s.h.ScanStatus()
	case "watch.start":
		var p WatchStartParams
		if resp.Error = decodeParams(req, &p); resp.Error != nil {
			return resp
		}
		resp.Result, err = s.h.WatchStart(p)
	case "watch.stop":
		resp.Result = s.h.WatchStop()
	case "watch.status":
		resp.Result = s.h.WatchStatus()
	default:
		resp.Error = &ErrorObject{Code: codeMethodNotFound, Message: "method not found"}
	}

	if err != nil {
		resp.Result = nil
		resp.Error = serverError(err)
	}
	return resp
}
