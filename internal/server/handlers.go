package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/executor"
	"github.com/t77yq/script-supervisor/internal/model"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

type runRequest struct {
	ScriptPath string `json:"script_path"`
}

type runResponse struct {
	Result *model.ExecutionResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		RefreshMillis int64
	}{
		RefreshMillis: s.config.RefreshInterval.Milliseconds(),
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("Failed to render index", zap.Error(err))
	}
}

// handleRun executes a script synchronously. Only a missing script is
// reported as a client error; script failures come back as a normal result
// and are visible in the log pane.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	path, err := scriptPathFrom(r)
	if errors.Is(err, errUnsupportedMediaType) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// A disconnecting browser must not kill the script
	result, err := s.runner.Execute(context.WithoutCancel(r.Context()), path)
	switch {
	case errors.Is(err, executor.ErrNoScript):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case err != nil:
		s.logger.Error("Script run reported a fault",
			zap.String("script", path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, runResponse{Result: result, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, runResponse{Result: result})
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.logs.Refresh()
	if err != nil {
		s.logger.Error("Failed to read log file", zap.Error(err))
		http.Error(w, "failed to read log file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(snapshot))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runner.History(r.Context(), 0, limit)
	if err != nil {
		s.logger.Error("Failed to list run history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list runs"})
		return
	}
	if runs == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.host.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to collect host stats", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// errUnsupportedMediaType is returned for run requests that are not JSON.
// Plain form posts skip the browser's CORS preflight.
var errUnsupportedMediaType = errors.New("content type must be application/json")

// scriptPathFrom reads script_path from a JSON body
func scriptPathFrom(r *http.Request) (string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return "", errUnsupportedMediaType
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.New("invalid JSON body")
	}

	path := strings.TrimSpace(req.ScriptPath)
	if path == "" {
		return "", executor.ErrNoScript
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Script Supervisor</title>
<style>
body { font-family: sans-serif; margin: 1.5em; }
#log { background: #111; color: #ddd; padding: 1em; height: 60vh; overflow: auto; white-space: pre-wrap; }
#status { margin-left: 1em; }
</style>
</head>
<body>
<h1>Script Supervisor</h1>
<form id="run-form">
  <input id="script" name="script_path" size="60" placeholder="/path/to/script.py">
  <button type="submit">Run</button>
  <span id="status"></span>
</form>
<h2>Log</h2>
<pre id="log"></pre>
<script>
const logPane = document.getElementById("log");
const status = document.getElementById("status");

async function refresh() {
  const resp = await fetch("/log", {cache: "no-store"});
  if (resp.ok) {
    const atBottom = logPane.scrollTop + logPane.clientHeight >= logPane.scrollHeight - 4;
    logPane.textContent = await resp.text();
    if (atBottom) { logPane.scrollTop = logPane.scrollHeight; }
  }
}
setInterval(refresh, {{.RefreshMillis}});
refresh();

document.getElementById("run-form").addEventListener("submit", async (e) => {
  e.preventDefault();
  const path = document.getElementById("script").value.trim();
  if (!path) {
    alert("Please select a script first.");
    return;
  }
  status.textContent = "running...";
  const resp = await fetch("/run", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({script_path: path}),
  });
  const body = await resp.json();
  status.textContent = body.result ? body.result.outcome : (body.error || "");
});
</script>
</body>
</html>
`))
