// Package server exposes the design pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/archcopilot/internal/agent"
	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/internal/gateway"
	"github.com/rahul/archcopilot/internal/llm"
	"github.com/rahul/archcopilot/internal/observability"
	"github.com/rahul/archcopilot/internal/schema"
	"github.com/rahul/archcopilot/internal/store"
)

const (
	maxBodyBytes  = 1 << 20
	notifyTimeout = 30 * time.Second
	defaultLimit  = 50
)

// SubmissionStore persists analyze outcomes.
type SubmissionStore interface {
	Save(ctx context.Context, s store.Submission) error
	List(ctx context.Context, limit, offset int) ([]store.SubmissionSummary, error)
	Get(ctx context.Context, id string) (*store.Submission, error)
}

type Server struct {
	Copilot  *agent.Copilot
	Store    SubmissionStore
	Notifier gateway.Notifier
	Tracker  *observability.Tracker
	Gate     *llm.Gate
	Limiter  *Limiter
	Logger   *observability.Logger

	wg sync.WaitGroup
}

// Handler returns the routed handler. Every /api route is rate limited per
// client IP; /health is not.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/analyze", s.handleAnalyze)
	api.HandleFunc("POST /api/validate", s.handleValidate)
	api.HandleFunc("POST /api/estimate", s.handleEstimate)
	api.HandleFunc("GET /api/submissions", s.handleListSubmissions)
	api.HandleFunc("GET /api/submissions/{id}", s.handleGetSubmission)
	api.HandleFunc("GET /api/submissions/{id}/download", s.handleDownload)

	var limited http.Handler = api
	if s.Limiter != nil {
		limited = s.Limiter.Middleware(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", limited)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Wait blocks until background notifications have finished.
func (s *Server) Wait() { s.wg.Wait() }

type errorDetail struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Issues  []schema.Issue `json:"issues,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type analyzeResponse struct {
	*design.DesignReport
	SubmissionID string `json:"submission_id"`
	RunID        string `json:"run_id"`
	Cached       bool   `json:"cached"`
}

type partialResponse struct {
	Status       agent.RunStatus     `json:"status"`
	RunID        string              `json:"run_id"`
	SubmissionID string              `json:"submission_id"`
	Steps        []agent.StepOutcome `json:"steps"`
	Error        string              `json:"error,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	a, err := s.Copilot.Analyze(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}

	res := a.Result
	sub := store.Submission{
		ID:      uuid.NewString(),
		RunID:   res.RunID,
		AppName: a.Request.AppName,
		Status:  string(res.Status),
		Cached:  a.Cached,
	}
	sub.Request, _ = json.Marshal(a.Request)
	sub.Steps, _ = json.Marshal(res.Steps)
	if res.Report != nil {
		sub.Report, _ = json.Marshal(res.Report)
		sub.Markdown = res.Report.Markdown()
	}
	s.persist(r.Context(), sub)
	s.notify(sub, res)

	if res.Status == agent.RunSucceeded {
		writeJSON(w, http.StatusOK, analyzeResponse{
			DesignReport: res.Report,
			SubmissionID: sub.ID,
			RunID:        res.RunID,
			Cached:       a.Cached,
		})
		return
	}
	writeJSON(w, runStatusCode(res), partialResponse{
		Status:       res.Status,
		RunID:        res.RunID,
		SubmissionID: sub.ID,
		Steps:        res.Steps,
		Error:        res.Error,
	})
}

// runStatusCode maps an unsuccessful run to the most telling HTTP status
// among its failed steps.
func runStatusCode(res *agent.RunResult) int {
	if res.Status == agent.RunCancelled {
		return failure.KindCancelled.HTTPStatus()
	}
	kinds := map[failure.Kind]bool{}
	for _, s := range res.Failed() {
		kinds[s.ErrorKind] = true
	}
	for _, k := range []failure.Kind{
		failure.KindTimeout, failure.KindRateLimit,
		failure.KindAuth, failure.KindProvider, failure.KindModelOutput,
		failure.KindCancelled,
	} {
		if kinds[k] {
			return k.HTTPStatus()
		}
	}
	return http.StatusInternalServerError
}

// persist saves the submission. The save outlives a client disconnect so a
// finished run is never lost.
func (s *Server) persist(ctx context.Context, sub store.Submission) {
	if s.Store == nil {
		return
	}
	if err := s.Store.Save(context.WithoutCancel(ctx), sub); err != nil {
		log.Printf("Error saving submission %s: %v", sub.ID, err)
		return
	}
	s.logger().LogStore(sub.RunID, "save", sub.ID)
}

func (s *Server) notify(sub store.Submission, res *agent.RunResult) {
	if s.Notifier == nil {
		return
	}
	n := gateway.Notification{
		SubmissionID: sub.ID,
		RunID:        res.RunID,
		AppName:      sub.AppName,
		Status:       string(res.Status),
	}
	if res.Report != nil {
		n.Summary = res.Report.Summary
	}
	for _, f := range res.Failed() {
		n.FailedSteps = append(n.FailedSteps, string(f.Step))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		err := s.Notifier.Notify(ctx, n)
		s.logger().LogNotify(n.RunID, s.Notifier.Name(), err)
	}()
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := s.Copilot.Validate(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "request": req})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	baseline, err := s.Copilot.Estimate(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"baseline": baseline})
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit)
	offset := queryInt(r, "offset", 0)
	subs, err := s.Store.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, failure.Wrap(failure.KindInternal, err, "list submissions"))
		return
	}
	if subs == nil {
		subs = []store.SubmissionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if sub.Markdown == "" {
		writeNotFound(w, "submission "+sub.ID+" has no report")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+sub.ID+`.md"`)
	_, _ = io.WriteString(w, sub.Markdown)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*store.Submission, bool) {
	id := r.PathValue("id")
	sub, err := s.Store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(w, "submission "+id+" not found")
		return nil, false
	}
	if err != nil {
		writeError(w, failure.Wrap(failure.KindInternal, err, "load submission"))
		return nil, false
	}
	return sub, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"status": "ok"}
	if s.Tracker != nil {
		out["runs"] = s.Tracker.Snapshot()
	}
	if s.Gate != nil {
		out["gate_in_flight"] = s.Gate.InFlight()
		out["gate_width"] = s.Gate.Width()
	}
	if s.Copilot != nil && s.Copilot.Cache != nil {
		out["cache"] = s.Copilot.Cache.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) logger() *observability.Logger {
	if s.Logger == nil {
		return observability.NopLogger()
	}
	return s.Logger
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, failure.Wrap(failure.KindValidation, err, "read request body"))
		return nil, false
	}
	return body, true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, err error) {
	kind := failure.KindOf(err)
	detail := errorDetail{Kind: string(kind), Message: failure.Message(err)}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		detail.Message = verr.Error()
		detail.Issues = verr.Issues
	}
	if kind == failure.KindInternal {
		log.Printf("Internal error: %v", err)
	}
	writeJSON(w, kind.HTTPStatus(), errorBody{Error: detail})
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "NOT_FOUND", Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
