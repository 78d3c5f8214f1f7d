package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rbxsync/rbxsync/extract"
	"github.com/rbxsync/rbxsync/git"
	"github.com/rbxsync/rbxsync/harness"
	"github.com/rbxsync/rbxsync/project"
	"github.com/rbxsync/rbxsync/relay"
)

func (s *State) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
	})
}

// handleAgentPoll is the plugin's long poll. It blocks until a request is
// queued or the poll window elapses; an empty window is 204, not an error.
func (s *State) handleAgentPoll(w http.ResponseWriter, r *http.Request) {
	req, ok := s.Dispatcher.Poll(r.Context(), s.cfg.PollTimeout())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

// handleAgentReply accepts the plugin's response to a delivered request.
// Unmatched IDs are dropped without comment; the plugin cannot act on a
// failure here anyway.
func (s *State) handleAgentReply(w http.ResponseWriter, r *http.Request) {
	var resp relay.Response
	if !s.decode(w, r, &resp) {
		return
	}
	s.Dispatcher.Deliver(resp)
	w.WriteHeader(http.StatusOK)
}

type extractStartRequest struct {
	Services       []string `json:"services"`
	IncludeTerrain *bool    `json:"includeTerrain"`
	IncludeAssets  *bool    `json:"includeAssets"`
}

// handleExtractStart opens a fresh extraction session and queues the
// extract:start command for the plugin. The request ID reuses the session
// ID so plugin-side logs line up.
func (s *State) handleExtractStart(w http.ResponseWriter, r *http.Request) {
	var req extractStartRequest
	if !s.decode(w, r, &req) {
		return
	}

	services := req.Services
	if services == nil {
		services = s.cfg.Extract.Services
	}
	if services == nil {
		services = []string{}
	}
	includeTerrain := s.cfg.Extract.IncludeTerrain
	if req.IncludeTerrain != nil {
		includeTerrain = *req.IncludeTerrain
	}
	includeAssets := s.cfg.Extract.IncludeAssets
	if req.IncludeAssets != nil {
		includeAssets = *req.IncludeAssets
	}

	sessionID := uuid.New()
	s.Sessions.Start(sessionID.String())

	payload, _ := json.Marshal(map[string]any{
		"services":       services,
		"includeTerrain": includeTerrain,
		"includeAssets":  includeAssets,
	})
	s.Dispatcher.EnqueueRequest(relay.Request{
		ID:      sessionID,
		Command: "extract:start",
		Payload: payload,
	})

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID.String(),
		"status":    "started",
	})
}

type extractChunkRequest struct {
	SessionID   string          `json:"sessionId"`
	ChunkIndex  int             `json:"chunkIndex"`
	TotalChunks int             `json:"totalChunks"`
	Data        json.RawMessage `json:"data"`
	ProjectDir  string          `json:"projectDir"`
}

func (s *State) handleExtractChunk(w http.ResponseWriter, r *http.Request) {
	var req extractChunkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing sessionId"})
		return
	}

	received, total := s.Sessions.Ingest(req.SessionID, req.ChunkIndex, req.TotalChunks, req.Data, req.ProjectDir)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"received": received,
		"total":    total,
	})
}

func (s *State) handleExtractStatus(w http.ResponseWriter, r *http.Request) {
	status := s.Sessions.Status()
	if !status.Active {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"sessionId": nil,
			"status":    "no_active_session",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":      status.SessionID,
		"chunksReceived": status.ChunksReceived,
		"totalChunks":    status.TotalChunks,
		"complete":       status.Complete,
	})
}

type extractExportRequest struct {
	OutputPath string `json:"outputPath"`
}

func (s *State) handleExtractExport(w http.ResponseWriter, r *http.Request) {
	var req extractExportRequest
	if !s.decode(w, r, &req) {
		return
	}

	count, err := s.Sessions.Export(req.OutputPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, extract.ErrNoSession) {
			status = http.StatusBadRequest
		}
		s.writeJSON(w, status, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"path":          req.OutputPath,
		"instanceCount": count,
	})
}

type projectRequest struct {
	ProjectDir string `json:"projectDir"`
}

func (s *State) handleExtractFinalize(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.Sessions.Finalize(req.ProjectDir)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, extract.ErrNoSession) {
			status = http.StatusBadRequest
		}
		s.writeJSON(w, status, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"filesWritten":   result.FilesWritten,
		"scriptsWritten": result.ScriptsWritten,
		"totalInstances": result.TotalInstances,
	})
}

type syncCommandRequest struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

func (s *State) handleSyncCommand(w http.ResponseWriter, r *http.Request) {
	var req syncCommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Command == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing command"})
		return
	}
	s.relayToPlugin(w, r, req.Command, req.Payload, s.cfg.CommandTimeout())
}

type syncBatchRequest struct {
	Operations []json.RawMessage `json:"operations"`
}

func (s *State) handleSyncBatch(w http.ResponseWriter, r *http.Request) {
	var req syncBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, _ := json.Marshal(map[string]any{"operations": req.Operations})
	s.relayToPlugin(w, r, "sync:batch", payload, s.cfg.BatchTimeout())
}

// The test endpoints drive the plugin's console-output recorder: start
// begins capturing Studio output, status polls the buffer without stopping
// the capture, stop ends it and returns everything recorded.

func (s *State) handleTestStart(w http.ResponseWriter, r *http.Request) {
	s.relayToPlugin(w, r, "test:start", json.RawMessage(`{}`), s.cfg.CommandTimeout())
}

func (s *State) handleTestStatus(w http.ResponseWriter, r *http.Request) {
	s.relayToPlugin(w, r, "test:output", json.RawMessage(`{}`), s.cfg.PollTimeout())
}

func (s *State) handleTestStop(w http.ResponseWriter, r *http.Request) {
	s.relayToPlugin(w, r, "test:stop", json.RawMessage(`{}`), s.cfg.CommandTimeout())
}

// relayToPlugin enqueues a command, waits for the plugin's reply, and maps
// relay errors to distinct statuses: 504 when no reply arrives in time, 500
// when the reply channel is torn down underneath the wait.
func (s *State) relayToPlugin(w http.ResponseWriter, r *http.Request, command string, payload json.RawMessage, timeout time.Duration) {
	resp, err := s.Dispatcher.Do(r.Context(), command, payload, timeout)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		s.writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *State) handleSyncReadTree(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decode(w, r, &req) {
		return
	}

	instances, err := project.ReadTree(req.ProjectDir)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if instances == nil {
		instances = []map[string]any{}
	}

	s.log.Info("read project tree",
		zap.String("dir", req.ProjectDir),
		zap.Int("instances", len(instances)))

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"instances": instances,
		"count":     len(instances),
	})
}

func (s *State) handleWatchStart(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ProjectDir == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing projectDir"})
		return
	}

	if err := s.Watch.Start(req.ProjectDir); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"watching": s.Watch.Watched(),
	})
}

func (s *State) handleWatchStatus(w http.ResponseWriter, r *http.Request) {
	watched := s.Watch.Watched()
	if watched == nil {
		watched = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"watching": watched})
}

// git endpoints always answer 200; outcome is the success flag in the body.
// The CLI and MCP adapter treat git failures as data, not transport errors.

func (s *State) handleGitStatus(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := git.GetStatus(req.ProjectDir)
	s.writeGitResult(w, status, err)
}

type gitLogRequest struct {
	ProjectDir string `json:"projectDir"`
	Limit      int    `json:"limit"`
}

func (s *State) handleGitLog(w http.ResponseWriter, r *http.Request) {
	var req gitLogRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	commits, err := git.GetLog(req.ProjectDir, req.Limit)
	s.writeGitResult(w, commits, err)
}

type gitCommitRequest struct {
	ProjectDir string `json:"projectDir"`
	Message    string `json:"message"`
	AddAll     *bool  `json:"addAll"`
}

func (s *State) handleGitCommit(w http.ResponseWriter, r *http.Request) {
	var req gitCommitRequest
	if !s.decode(w, r, &req) {
		return
	}
	addAll := true
	if req.AddAll != nil {
		addAll = *req.AddAll
	}
	output, err := git.DoCommit(req.ProjectDir, req.Message, addAll)
	s.writeGitResult(w, output, err)
}

func (s *State) handleGitInit(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decode(w, r, &req) {
		return
	}
	output, err := git.Init(req.ProjectDir)
	s.writeGitResult(w, output, err)
}

func (s *State) writeGitResult(w http.ResponseWriter, data any, err error) {
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

type harnessInitRequest struct {
	ProjectDir  string `json:"projectDir"`
	Name        string `json:"name"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	Template    string `json:"template"`
}

func (s *State) handleHarnessInit(w http.ResponseWriter, r *http.Request) {
	var req harnessInitRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ProjectDir == "" || req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing projectDir or name"})
		return
	}

	var features []harness.Feature
	genre := req.Genre
	templateName := req.Template
	if templateName == "" {
		// A bare genre seeds the matching template's feature list when one exists.
		templateName = req.Genre
	}
	if templateName != "" {
		template, err := harness.LoadTemplate(templateName)
		if err != nil {
			if req.Template != "" {
				s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
		} else {
			features = template.Instantiate()
			if genre == "" {
				genre = template.Genre
			}
		}
	}

	store := harness.NewStore(req.ProjectDir)
	err := store.Init(harness.GameDefinition{
		Name:        req.Name,
		Description: req.Description,
		Genre:       genre,
	}, features)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"features": len(features),
	})
}

func (s *State) handleHarnessStatus(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decode(w, r, &req) {
		return
	}

	summary, err := harness.NewStore(req.ProjectDir).Status()
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    summary,
	})
}

type harnessFeatureUpdateRequest struct {
	ProjectDir    string   `json:"projectDir"`
	Feature       string   `json:"feature"`
	Status        string   `json:"status"`
	Note          string   `json:"note"`
	BlockedReason string   `json:"blockedReason"`
	AffectedFiles []string `json:"affectedFiles"`
}

func (s *State) handleHarnessFeatureUpdate(w http.ResponseWriter, r *http.Request) {
	var req harnessFeatureUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Feature == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing feature"})
		return
	}

	store := harness.NewStore(req.ProjectDir)
	updated, err := store.UpdateFeature(req.Feature, func(f *harness.Feature) {
		if req.Status != "" {
			f.Status = harness.FeatureStatus(req.Status)
		}
		if req.Note != "" {
			f.Notes = append(f.Notes, req.Note)
		}
		if req.BlockedReason != "" {
			f.BlockedReason = req.BlockedReason
		}
		f.AffectedFiles = append(f.AffectedFiles, req.AffectedFiles...)
	})
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    updated,
	})
}

type harnessSessionStartRequest struct {
	ProjectDir string `json:"projectDir"`
	Goals      string `json:"goals"`
}

func (s *State) handleHarnessSessionStart(w http.ResponseWriter, r *http.Request) {
	var req harnessSessionStartRequest
	if !s.decode(w, r, &req) {
		return
	}

	session, err := harness.NewStore(req.ProjectDir).StartSession(req.Goals)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": session.ID,
	})
}

type harnessSessionEndRequest struct {
	ProjectDir   string   `json:"projectDir"`
	SessionID    string   `json:"sessionId"`
	Summary      string   `json:"summary"`
	HandoffNotes []string `json:"handoffNotes"`
}

func (s *State) handleHarnessSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req harnessSessionEndRequest
	if !s.decode(w, r, &req) {
		return
	}

	session, err := harness.NewStore(req.ProjectDir).EndSession(req.SessionID, req.Summary, req.HandoffNotes)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": session.ID,
		"endedAt":   session.EndedAt,
	})
}
