// Package server exposes the analysis pipeline over HTTP as a progress stream.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/stream"
)

const (
	ndjsonContentType = "application/x-ndjson"
	noURLMessage      = "No URL provided"
	maxRequestBody    = 1 << 20
	wsWriteWait       = 10 * time.Second
)

// Analyzer starts one analysis and streams its events.
type Analyzer interface {
	Run(ctx context.Context, locator string) <-chan stream.Event[domain.InsightRecord]
}

// Server manages the HTTP server and routes.
type Server struct {
	analyzer Analyzer
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	server   *http.Server
	// inflight counts running handlers, including hijacked websocket ones that
	// http.Server.Shutdown does not track.
	inflight sync.WaitGroup
}

// New creates a server listening on addr.
func New(addr string, analyzer Analyzer, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		analyzer: analyzer,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler; streams have no write timeout.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /analyze/ws", s.handleAnalyzeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.track(mux)
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inflight.Add(1)
		defer s.inflight.Done()
		next.ServeHTTP(w, r)
	})
}

// Serve listens until ctx is done, then drains in-flight streams for up to grace. Streams still
// running after grace are cancelled, and Serve returns only once their handlers (and therefore
// their extraction workers) have finished.
func (s *Server) Serve(ctx context.Context, grace time.Duration) error {
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	s.server.BaseContext = func(net.Listener) context.Context { return baseCtx }

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("HTTP server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "server failed")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Infow("shutting down HTTP server", "grace", grace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	shutdownErr := s.server.Shutdown(shutdownCtx)

	cancelBase()
	_ = s.server.Close()
	s.inflight.Wait()

	if shutdownErr != nil {
		return errors.Wrap(shutdownErr, "server shutdown failed")
	}
	s.logger.Infow("HTTP server stopped")
	return nil
}

// handleAnalyze streams one JSON object per line: {"progress":n}... then {"result":...} or {"error":...}.
// Clients sending "Accept: application/json" get only the terminal insight as a single document.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": noURLMessage})
		return
	}
	locator := strings.TrimSpace(req.URL)

	ctx, cancel := context.WithCancel(r.Context())
	events := s.analyzer.Run(ctx, locator)
	// Wait for the run to wind down so its worker is reaped before the handler returns.
	defer func() {
		cancel()
		for range events {
		}
	}()

	if wantsSingleDocument(r) {
		rec, err := stream.Drain(ctx, events, nil)
		if err != nil {
			s.logger.Warnw("analysis failed", "locator", locator, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	w.Header().Set("Content-Type", ndjsonContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			s.logger.Debugw("client went away", "locator", locator, "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			s.logger.Debugw("flush failed", "locator", locator, "error", err)
			return
		}
	}
}

// handleAnalyzeWS sends the same events as websocket text frames and closes normally after the terminal one.
func (s *Server) handleAnalyzeWS(w http.ResponseWriter, r *http.Request) {
	locator := strings.TrimSpace(r.URL.Query().Get("url"))
	if locator == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": noURLMessage})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The request context survives the hijack and is cancelled when the server gives up on shutdown.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A read error means the peer is gone; that is the only signal after the upgrade.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debugw("websocket closed", "error", err)
				}
				return
			}
		}
	}()

	events := s.analyzer.Run(ctx, locator)
	defer func() {
		cancel()
		for range events {
		}
	}()

	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debugw("websocket write failed", "locator", locator, "error", err)
			return
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
}

func wantsSingleDocument(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, ndjsonContentType)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
