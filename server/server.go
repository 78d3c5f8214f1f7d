// Package server exposes the coordination HTTP surface: the agent's
// long-poll and reply endpoints, extraction session control, sync command
// relay, and the project-level helpers (read-tree, watch, git, harness).
//
// All state lives in an explicit State value constructed once and shared by
// every handler. Nothing here is global.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rbxsync/rbxsync/config"
	"github.com/rbxsync/rbxsync/extract"
	"github.com/rbxsync/rbxsync/logging"
	"github.com/rbxsync/rbxsync/relay"
	"github.com/rbxsync/rbxsync/watcher"
)

// Version is reported by /health and the CLI.
const Version = "0.1.0"

// maxBodyBytes caps request bodies; extraction chunks are the largest
// expected payload.
const maxBodyBytes = 10 << 20

// State carries the server's shared components into every handler.
type State struct {
	Dispatcher *relay.Dispatcher
	Sessions   *extract.Manager
	Watch      *watcher.Coordinator

	cfg *config.Config
	log *logging.Logger
}

// NewState wires up a dispatcher, extraction manager, and watch coordinator
// from the given configuration.
func NewState(cfg *config.Config, log *logging.Logger) *State {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logging.Nop()
	}

	dispatcher := relay.NewDispatcher(log.Named("relay"))
	return &State{
		Dispatcher: dispatcher,
		Sessions:   extract.NewManager("", log.Named("extract")),
		Watch: watcher.NewCoordinator(dispatcher, cfg.Debounce(),
			cfg.Watch.Ignore, log.Named("watcher")),
		cfg: cfg,
		log: log.Named("server"),
	}
}

// Handler builds the route table.
func (s *State) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /agent/poll", s.handleAgentPoll)
	mux.HandleFunc("POST /agent/reply", s.handleAgentReply)

	mux.HandleFunc("POST /extract/start", s.handleExtractStart)
	mux.HandleFunc("POST /extract/chunk", s.handleExtractChunk)
	mux.HandleFunc("GET /extract/status", s.handleExtractStatus)
	mux.HandleFunc("POST /extract/export", s.handleExtractExport)
	mux.HandleFunc("POST /extract/finalize", s.handleExtractFinalize)

	mux.HandleFunc("POST /sync/command", s.handleSyncCommand)
	mux.HandleFunc("POST /sync/batch", s.handleSyncBatch)
	mux.HandleFunc("POST /sync/read-tree", s.handleSyncReadTree)

	mux.HandleFunc("POST /test/start", s.handleTestStart)
	mux.HandleFunc("GET /test/status", s.handleTestStatus)
	mux.HandleFunc("POST /test/stop", s.handleTestStop)

	mux.HandleFunc("POST /watch/start", s.handleWatchStart)
	mux.HandleFunc("GET /watch/status", s.handleWatchStatus)

	mux.HandleFunc("POST /git/status", s.handleGitStatus)
	mux.HandleFunc("POST /git/log", s.handleGitLog)
	mux.HandleFunc("POST /git/commit", s.handleGitCommit)
	mux.HandleFunc("POST /git/init", s.handleGitInit)

	mux.HandleFunc("POST /harness/init", s.handleHarnessInit)
	mux.HandleFunc("POST /harness/status", s.handleHarnessStatus)
	mux.HandleFunc("POST /harness/feature/update", s.handleHarnessFeatureUpdate)
	mux.HandleFunc("POST /harness/session/start", s.handleHarnessSessionStart)
	mux.HandleFunc("POST /harness/session/end", s.handleHarnessSessionEnd)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		mux.ServeHTTP(w, r)
	})
}

// Run serves the HTTP surface until ctx is canceled, then drains in-flight
// requests and tears down the dispatcher and watchers.
func (s *State) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.Watch.Close()
		s.Dispatcher.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// writeJSON encodes v as the response body. Encoding failures are logged;
// the status line has already been sent by then.
func (s *State) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

// decode parses a JSON request body into v, replying 400 on failure.
func (s *State) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return false
	}
	return true
}
