package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/engine/history"
	"github.com/AesBiarenti/STAJ22001/engine/ingest"
	"github.com/AesBiarenti/STAJ22001/engine/provider"
	"github.com/AesBiarenti/STAJ22001/engine/rag"
	"github.com/AesBiarenti/STAJ22001/engine/stats"
	"github.com/AesBiarenti/STAJ22001/pkg/fn"
	"github.com/AesBiarenti/STAJ22001/pkg/metrics"
	"github.com/AesBiarenti/STAJ22001/pkg/mid"
	"github.com/nats-io/nats.go"
)

// errFallbackToAll tags a context response built from the exhaustive stage.
const errFallbackToAll = "FALLBACK_TO_ALL_DATA"

type employeeService interface {
	Create(ctx context.Context, rec domain.EmployeeRecord) (domain.EmployeeRecord, provider.EmbedResult, error)
	Update(ctx context.Context, id uint64, patch domain.EmployeePatch) (domain.EmployeeRecord, provider.EmbedResult, error)
	Delete(ctx context.Context, id uint64) error
	DeleteAll(ctx context.Context) error
	List(ctx context.Context, limit int) ([]domain.EmployeeRecord, error)
}

type retriever interface {
	Retrieve(ctx context.Context, query string, embedding []float32) (rag.Retrieval, error)
}

type asker interface {
	Ask(ctx context.Context, question string) rag.Answer
}

type historyStore interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
	List(ctx context.Context, page, limit int) (history.Page, error)
}

// healthCheck probes one dependency.
type healthCheck struct {
	name  string
	check func(context.Context) error
}

type server struct {
	employees employeeService
	embedder  rag.Embedder
	completer rag.Completer
	retriever retriever
	rag       asker
	// history is optional.
	history historyStore
	// nc, when set, moves uploads onto the ingest subject.
	nc         *nats.Conn
	ingest     ingest.Deps
	exportPath string
	maxUpload  int64
	checks     []healthCheck
	metrics    *metrics.Registry
	logger     *slog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/employees", s.handleListEmployees)
	mux.HandleFunc("POST /api/employees", s.handleCreateEmployee)
	mux.HandleFunc("PUT /api/employees/{id}", s.handleUpdateEmployee)
	mux.HandleFunc("DELETE /api/employees/all", s.handleDeleteAll)
	mux.HandleFunc("DELETE /api/employees/{id}", s.handleDeleteEmployee)
	mux.Handle("POST /api/upload-employees", mid.MaxBytes(s.maxUpload)(http.HandlerFunc(s.handleUpload)))
	mux.HandleFunc("GET /api/employee-stats", s.handleStats)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/context", s.handleContext)
	mux.HandleFunc("POST /api/embedding", s.handleEmbedding)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	return mux
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, msg string) {
	writeJSON(w, status, errorResponse{Error: string(kind), Message: msg})
}

// writeErr maps a service error onto a status code and error kind.
func (s *server) writeErr(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, domain.KindValidation, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, domain.KindGeneric, "Çalışan bulunamadı")
	case errors.Is(err, domain.ErrStructural):
		s.logger.Error(op+" failed", "err", err)
		writeError(w, http.StatusInternalServerError, domain.KindStructural, err.Error())
	default:
		s.logger.Error(op+" failed", "err", err)
		writeError(w, http.StatusInternalServerError, domain.KindGeneric, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.KindValidation, "istek gövdesi çok büyük")
			return false
		}
		writeError(w, http.StatusBadRequest, domain.KindValidation, "geçersiz istek gövdesi: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.KindValidation, fmt.Sprintf("geçersiz id: %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, raw, domain.ErrInvalidNumber)
	}
	return n, nil
}

type embeddingStatus struct {
	Success bool             `json:"success"`
	Error   domain.ErrorKind `json:"error,omitempty"`
}

func statusOf(res provider.EmbedResult) embeddingStatus {
	return embeddingStatus{Success: res.Succeeded, Error: res.Kind}
}

func (s *server) record(ctx context.Context, prompt, response string, d time.Duration, ok bool, kind domain.ErrorKind) {
	if s.history == nil {
		return
	}
	_, err := s.history.Record(context.WithoutCancel(ctx), history.Entry{
		Prompt:    prompt,
		Response:  response,
		Duration:  d.Seconds(),
		Succeeded: ok,
		ErrorKind: kind,
	})
	if err != nil {
		s.logger.Warn("history record failed", "err", err)
	}
}

// --- health ---

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	thunks := make([]func() string, len(s.checks))
	for i, c := range s.checks {
		thunks[i] = func() string {
			if err := c.check(ctx); err != nil {
				return err.Error()
			}
			return "ok"
		}
	}
	results := fn.FanOut(thunks...)

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(results))
	for i, res := range results {
		checks[s.checks[i].name] = res
		if res != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// --- employees ---

func (s *server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeErr(w, "list employees", err)
		return
	}
	recs, err := s.employees.List(r.Context(), limit)
	if err != nil {
		s.writeErr(w, "list employees", fmt.Errorf("%w: %v", domain.ErrStructural, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": recs, "success": true, "count": len(recs)})
}

func (s *server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var rec domain.EmployeeRecord
	if !decode(w, r, &rec) {
		return
	}
	out, emb, err := s.employees.Create(r.Context(), rec)
	if err != nil {
		s.writeErr(w, "create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"message":   "Çalışan eklendi",
		"data":      out,
		"embedding": statusOf(emb),
	})
}

func (s *server) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch domain.EmployeePatch
	if !decode(w, r, &patch) {
		return
	}
	out, emb, err := s.employees.Update(r.Context(), id, patch)
	if err != nil {
		s.writeErr(w, "update employee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":      out,
		"success":   true,
		"message":   "Çalışan başarıyla güncellendi",
		"embedding": statusOf(emb),
	})
}

func (s *server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.employees.Delete(r.Context(), id); err != nil {
		s.writeErr(w, "delete employee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Çalışan başarıyla silindi", "deletedId": id})
}

func (s *server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := s.employees.DeleteAll(r.Context()); err != nil {
		s.writeErr(w, "delete all employees", err)
		return
	}
	if err := ingest.Export(r.Context(), s.ingest); err != nil {
		s.logger.Warn("export refresh failed", "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Tüm çalışanlar silindi."})
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.KindValidation, "Dosya çok büyük")
			return
		}
		writeError(w, http.StatusBadRequest, domain.KindValidation, "Dosya bulunamadı")
		return
	}
	defer f.Close()
	if hdr.Filename == "" {
		writeError(w, http.StatusBadRequest, domain.KindValidation, "Dosya seçilmedi")
		return
	}

	if s.nc != nil {
		n, err := ingest.UploadAsync(r.Context(), s.ingest, s.nc, hdr.Filename, f)
		if err != nil {
			s.writeErr(w, "upload", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"message": fmt.Sprintf("%d çalışan kuyruğa alındı.", n),
			"queued":  n,
		})
		return
	}

	rep, err := ingest.Upload(r.Context(), s.ingest, hdr.Filename, f)
	if err != nil && rep.Added == 0 && rep.Failed == 0 {
		s.writeErr(w, "upload", err)
		return
	}
	status := http.StatusOK
	if !rep.OK() || err != nil {
		status = http.StatusInternalServerError
	}
	msg := rep.Message()
	if err != nil {
		msg += " Dışa aktarma başarısız: " + err.Error()
	}
	writeJSON(w, status, map[string]any{"success": status == http.StatusOK, "message": msg, "report": rep})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	recs, err := stats.Load(s.exportPath)
	if errors.Is(err, stats.ErrNoExport) || (err == nil && len(recs) == 0) {
		writeError(w, http.StatusNotFound, domain.KindGeneric, "Henüz çalışan verisi yüklenmedi")
		return
	}
	if err != nil {
		s.writeErr(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats.Compute(recs)})
}

// --- AI ---

type questionRequest struct {
	Question string `json:"question"`
}

func (s *server) question(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req questionRequest
	if !decode(w, r, &req) {
		return "", false
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		writeError(w, http.StatusBadRequest, domain.KindValidation, "Soru boş olamaz")
		return "", false
	}
	return q, true
}

type chatResponse struct {
	Answer  string           `json:"answer"`
	Success bool             `json:"success"`
	Error   domain.ErrorKind `json:"error,omitempty"`
}

// handleChat sends the question straight to completion without retrieval.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	q, ok := s.question(w, r)
	if !ok {
		return
	}
	start := time.Now()
	res := s.completer.Complete(r.Context(), q)
	s.record(r.Context(), q, res.Answer, time.Since(start), res.Succeeded, res.Kind)
	writeJSON(w, http.StatusOK, chatResponse{Answer: res.Answer, Success: res.Succeeded, Error: res.Kind})
}

type contextRequest struct {
	Embedding []float32 `json:"embedding"`
	Query     string    `json:"query"`
}

type contextResponse struct {
	Context []domain.SearchResult `json:"context"`
	Stage   rag.Stage             `json:"stage"`
	Success bool                  `json:"success"`
	Error   string                `json:"error,omitempty"`
}

func (s *server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Embedding) == 0 && strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, domain.KindValidation, "embedding veya query gerekli")
		return
	}
	ret, err := s.retriever.Retrieve(r.Context(), req.Query, req.Embedding)
	if err != nil {
		s.logger.Error("context retrieval failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, contextResponse{
			Context: []domain.SearchResult{},
			Stage:   rag.StageFailed,
			Error:   string(domain.KindStructural),
		})
		return
	}
	resp := contextResponse{Context: ret.Results, Stage: ret.Stage, Success: true}
	if ret.Stage == rag.StageExhaustive {
		resp.Success = false
		resp.Error = errFallbackToAll
	}
	writeJSON(w, http.StatusOK, resp)
}

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Embedding []float32        `json:"embedding"`
	Success   bool             `json:"success"`
	Error     domain.ErrorKind `json:"error,omitempty"`
}

func (s *server) handleEmbedding(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if !decode(w, r, &req) {
		return
	}
	res := s.embedder.Embed(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, embeddingResponse{Embedding: res.Vector, Success: res.Succeeded, Error: res.Kind})
}

type askResponse struct {
	rag.Answer
	Duration float64 `json:"duration"`
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	q, ok := s.question(w, r)
	if !ok {
		return
	}
	ans := s.rag.Ask(r.Context(), q)
	s.record(r.Context(), q, ans.Text, ans.Duration, ans.Success, ans.Error)
	writeJSON(w, http.StatusOK, askResponse{Answer: ans, Duration: ans.Duration.Seconds()})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, domain.KindGeneric, "Sorgu geçmişi kapalı")
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeErr(w, "history", err)
		return
	}
	limit, err := queryInt(r, "limit", history.DefaultPageSize)
	if err != nil {
		s.writeErr(w, "history", err)
		return
	}
	p, err := s.history.List(r.Context(), page, limit)
	if err != nil {
		s.writeErr(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		history.Page
	}{true, p})
}
