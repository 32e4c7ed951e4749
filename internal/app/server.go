package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/soelive/internal/live"
	"github.com/MrWong99/soelive/internal/observe"
	"github.com/MrWong99/soelive/internal/report"
	"github.com/MrWong99/soelive/internal/transcript"
	"github.com/MrWong99/soelive/pkg/memory"
)

// shutdownGrace bounds how long in-flight requests may finish after Run
// stops the server.
const shutdownGrace = 5 * time.Second

// sessionView is the JSON body of GET /session.
type sessionView struct {
	ID      string              `json:"id,omitempty"`
	Status  live.Status         `json:"status"`
	Bubbles []transcript.Bubble `json:"bubbles"`
	Report  string              `json:"report,omitempty"`
}

type entryView struct {
	Speaker   memory.Speaker `json:"speaker"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
}

type errorView struct {
	Error string `json:"error"`
}

// Handler returns the HTTP handler serving health checks, Prometheus
// metrics and the live session view. The archive routes exist only when
// the matching store is configured.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /session", a.handleSession)
	mux.HandleFunc("POST /session/disconnect", a.handleDisconnect)
	if a.sessions != nil {
		mux.HandleFunc("GET /sessions/{id}/entries", a.handleEntries)
		mux.HandleFunc("GET /transcripts/search", a.handleSearch)
	}
	if a.reports != nil {
		mux.HandleFunc("GET /reports/{id}", a.handleReport)
	}
	return observe.Middleware(a.metrics, observe.WithRequestLogger(a.log))(mux)
}

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	v := sessionView{
		ID:      a.client.SessionID(),
		Status:  a.client.Status(),
		Bubbles: a.tlog.Bubbles(),
	}
	if v.Bubbles == nil {
		v.Bubbles = []transcript.Bubble{}
	}
	if _, path := a.LastReport(); path != "" {
		v.Report = path
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *App) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	a.client.Disconnect()
	writeJSON(w, http.StatusAccepted, map[string]live.Status{"status": a.client.Status()})
}

func (a *App) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := a.sessions.Entries(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryViews(entries))
}

// handleSearch serves full-text search. Parameters: q (required), session,
// speaker (user or assistant) and limit.
func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := params.Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorView{"missing q"})
		return
	}
	opts := memory.SearchOpts{
		SessionID: params.Get("session"),
		Speaker:   memory.Speaker(params.Get("speaker")),
		Limit:     50,
	}
	if opts.Speaker != "" && !opts.Speaker.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorView{"speaker must be user or assistant"})
		return
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorView{"limit must be a positive integer"})
			return
		}
		opts.Limit = n
	}

	entries, err := a.sessions.Search(r.Context(), q, opts)
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryViews(entries))
}

func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := report.Load(r.Context(), a.reports, r.PathValue("id"))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *App) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, memory.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorView{"not found"})
		return
	}
	observe.WithTrace(r.Context(), a.log).Error("store request failed", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorView{"store unavailable"})
}

func entryViews(entries []memory.TranscriptEntry) []entryView {
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = entryView{Speaker: e.Speaker, Text: e.Text, Timestamp: e.Timestamp}
	}
	return out
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func (a *App) serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			a.log.Info("https server listening", "addr", srv.Addr)
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			a.log.Info("http server listening", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http server shutdown", "err", err)
	}
	<-errCh
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
