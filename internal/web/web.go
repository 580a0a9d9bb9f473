package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/sheetify/internal/ai"
	"github.com/local/sheetify/internal/config"
	"github.com/local/sheetify/internal/extract"
	"github.com/local/sheetify/internal/metrics"
	"github.com/local/sheetify/internal/render"
	"github.com/local/sheetify/internal/retry"
	"github.com/local/sheetify/internal/session"
	"github.com/local/sheetify/internal/sheet"
)

const transcribePrompt = "Convert the following image to markdown directly without 'markdown```' annotation:"

// Store is the session store capability the handlers need.
type Store interface {
	SetProgress(ctx context.Context, sessionID string, p session.Progress) error
	GetProgress(ctx context.Context, sessionID string) (session.Progress, bool, error)
	SetSheet(ctx context.Context, sessionID string, f sheet.File, ttl time.Duration) error
	GetSheet(ctx context.Context, sessionID string) (sheet.File, bool, error)
	SetSheetifyResult(ctx context.Context, sheetID string, f sheet.File, ttl time.Duration) error
	GetSheetifyResult(ctx context.Context, sheetID string) (sheet.File, bool, error)
}

// Archiver is the optional cold-storage hook for finalized sheets.
type Archiver interface {
	ArchiveSheet(ctx context.Context, id string, f sheet.File) error
}

// Server carries the HTTP surface. All collaborators are injected; tests
// substitute fakes.
type Server struct {
	store       Store
	client      ai.Client
	archiver    Archiver // nil disables archiving
	cfg         config.Config
	newRenderer func(pdf []byte, dpi int) (session.Renderer, error)
}

func New(store Store, client ai.Client, archiver Archiver, cfg config.Config) *Server {
	return &Server{
		store:    store,
		client:   client,
		archiver: archiver,
		cfg:      cfg,
		newRenderer: func(pdf []byte, dpi int) (session.Renderer, error) {
			return render.NewRenderer(pdf, dpi)
		},
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/sessions", s.handleCreateSession)
	mux.HandleFunc("/api/sessions/", s.handleSession)
	mux.HandleFunc("/api/sheetify", s.handleSheetify)
	mux.HandleFunc("/api/sheetify/", s.handleSheetifyDownload)
	mux.HandleFunc("/api/markdown", s.handleMarkdown)
}

// handleCreateSession mints a session id and seeds its progress record.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := uuid.NewString()
	if err := s.store.SetProgress(r.Context(), sessionID, session.Progress{Stage: session.StageIdle}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Store unavailable"})
		return
	}
	log.Info().Str("session", sessionID).Msg("session created")
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID})
}

// handleSession dispatches /api/sessions/{id}[/progress] by subpath and method.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No sessionId provided"})
		return
	}
	if sessionID, ok := strings.CutSuffix(rest, "/progress"); ok {
		s.handleProgress(w, r, sessionID)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleProcess(w, r, rest)
	case http.MethodGet:
		s.handleDownload(w, r, rest)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleProcess runs the whole pipeline for one uploaded document. Whatever
// happens mid-job, the accumulated sheet is persisted before responding, and
// the error response still carries the sheet URL so the client can fetch the
// partial result.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "Unsupported Media Type"})
		return
	}
	if err := r.ParseMultipartForm(s.cfg.Render.MaxUploadMB << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid multipart form"})
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No file uploaded"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unreadable upload"})
		return
	}
	if !mimetype.Detect(data).Is("application/pdf") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "Unsupported Media Type"})
		return
	}

	startPage := atoiDefault(r.URL.Query().Get("startPage"), 1)
	endPage := atoiDefault(r.URL.Query().Get("endPage"), 1)
	if startPage < 1 || endPage < startPage {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid page range"})
		return
	}
	mode := s.modeFor(r.URL.Query().Get("mode"))

	sheetFile := sheet.File{PDFFilename: hdr.Filename, Columns: mode.Columns}
	sheetURL := s.sheetURL(r, sessionID)

	if err := s.store.SetProgress(ctx, sessionID, session.Progress{Stage: session.StageIdle, Cursor: 1}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Store unavailable", "details": err.Error()})
		return
	}

	log.Info().
		Str("session", sessionID).
		Str("file", hdr.Filename).
		Str("mode", mode.Name).
		Int("start_page", startPage).
		Int("end_page", endPage).
		Msg("job started")

	rows, runErr := s.runPipeline(ctx, sessionID, data, mode, startPage, endPage)
	sheetFile.Sheet = rows.Sorted()

	// persist-then-respond, success or not
	if err := s.finalize(ctx, sessionID, sheetFile, s.cfg.Session.SheetTTL); err != nil {
		metrics.IncJob(mode.Name, "store_error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Store unavailable", "details": err.Error(), "sheetUrl": sheetURL})
		return
	}

	if runErr != nil {
		metrics.IncJob(mode.Name, "error")
		log.Error().Err(runErr).Str("session", sessionID).Int("rows", len(sheetFile.Sheet)).Msg("job failed; partial sheet persisted")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "An error occurred", "details": runErr.Error(), "sheetUrl": sheetURL})
		return
	}

	metrics.IncJob(mode.Name, "ok")
	log.Info().Str("session", sessionID).Int("rows", len(sheetFile.Sheet)).Msg("job finished")
	writeJSON(w, http.StatusOK, map[string]any{"sheetUrl": sheetURL})
}

func (s *Server) runPipeline(ctx context.Context, sessionID string, pdf []byte, mode extract.Mode, startPage, endPage int) (sheet.Sheet, error) {
	renderer, err := s.newRenderer(pdf, s.cfg.Render.DPI)
	if err != nil {
		return nil, err
	}
	caller := retry.New(s.cfg.Retry.Attempts, s.cfg.Retry.BaseDelay)
	extractor := extract.New(mode, s.client, caller)
	driver := session.NewDriver(sessionID, renderer, s.client, extractor, s.store, caller, s.cfg.Render.ScanConcurrency)
	return driver.Run(ctx, startPage, endPage)
}

// finalize persists the sheet file with its TTL and hands a copy to the
// archiver when one is configured. Archive failures are logged, never fatal.
func (s *Server) finalize(ctx context.Context, id string, f sheet.File, ttl time.Duration) error {
	if err := s.store.SetSheet(ctx, id, f, ttl); err != nil {
		return err
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveSheet(ctx, id, f); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("sheet archive failed")
		}
	}
	return nil
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, found, err := s.store.GetProgress(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Store unavailable"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Session not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDownload serves the persisted session sheet as an XLSX attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, sessionID string) {
	f, found, err := s.store.GetSheet(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Store unavailable"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Sheet not found"})
		return
	}
	out, err := f.XLSX()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Workbook encoding failed"})
		return
	}
	filename := strings.TrimSuffix(f.PDFFilename, ".pdf") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", url.PathEscape(filename)))
	_, _ = w.Write(out)
}

// handleSheetify extracts one already-rendered page image and stores the
// result under its own sheet id with the one-shot TTL.
func (s *Server) handleSheetify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "Unsupported Media Type"})
		return
	}
	if err := r.ParseMultipartForm(s.cfg.Render.MaxUploadMB << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid multipart form"})
		return
	}
	file, hdr, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No image uploaded"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unreadable upload"})
		return
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "Unsupported Media Type"})
		return
	}

	pageNumber := atoiDefault(r.URL.Query().Get("pageNumber"), 1)
	mode := s.modeFor(r.URL.Query().Get("mode"))
	caller := retry.New(s.cfg.Retry.Attempts, s.cfg.Retry.BaseDelay)

	uri, err := retry.Call(ctx, caller, "upload", func(ctx context.Context) (string, error) {
		return s.client.Upload(ctx, data, mtype.String())
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "An error occurred", "details": err.Error()})
		return
	}

	extractor := extract.New(mode, s.client, caller)
	rows, err := extractor.Extract(ctx, pageNumber, uri)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "An error occurred", "details": err.Error()})
		return
	}

	sheetID := uuid.NewString()
	f := sheet.File{PDFFilename: hdr.Filename, Columns: mode.Columns, Sheet: sheet.Sheet(rows).Sorted()}
	if err := s.store.SetSheetifyResult(ctx, sheetID, f, s.cfg.Session.SheetifyTTL); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Store unavailable", "details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sheetId":  sheetID,
		"sheetUrl": s.requestURL(r, "/api/sheetify/"+sheetID),
		"result":   f.Sheet,
	})
}

// handleSheetifyDownload serves a one-shot result as a CSV attachment. An
// empty sheet downloads as an empty file.
func (s *Server) handleSheetifyDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sheetID := strings.TrimPrefix(r.URL.Path, "/api/sheetify/")
	if sheetID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No sheetId provided"})
		return
	}
	f, found, err := s.store.GetSheetifyResult(r.Context(), sheetID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Store unavailable"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Sheet not found"})
		return
	}
	filename := strings.TrimSuffix(f.PDFFilename, ".pdf") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", url.PathEscape(filename)))
	_, _ = w.Write([]byte(f.CSV()))
}

// handleMarkdown transcribes every page of an uploaded PDF to markdown. Pages
// that fail contribute an empty string; the job continues.
func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "Unsupported Media Type"})
		return
	}
	if err := r.ParseMultipartForm(s.cfg.Render.MaxUploadMB << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid multipart form"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No file uploaded"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unreadable upload"})
		return
	}
	if !mimetype.Detect(data).Is("application/pdf") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "Unsupported Media Type"})
		return
	}

	renderer, err := s.newRenderer(data, s.cfg.Render.DPI)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unreadable PDF", "details": err.Error()})
		return
	}

	caller := retry.New(s.cfg.Retry.Attempts, s.cfg.Retry.BaseDelay)
	pages := make([]string, 0, renderer.NumPages())
	for page := 1; page <= renderer.NumPages(); page++ {
		img, err := renderer.RenderPage(page)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("render failed; empty markdown page")
			pages = append(pages, "")
			continue
		}
		text, err := retry.Call(ctx, caller, "transcribe", func(ctx context.Context) (string, error) {
			return s.client.Transcribe(ctx, transcribePrompt, img, "image/png")
		})
		if err != nil {
			if ctx.Err() != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "An error occurred", "details": ctx.Err().Error()})
				return
			}
			log.Warn().Err(err).Int("page", page).Msg("transcription failed; empty markdown page")
			text = ""
		}
		pages = append(pages, text)
	}

	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// modeFor resolves the request mode and applies the configured conversation
// window for it.
func (s *Server) modeFor(name string) extract.Mode {
	mode := extract.ModeFor(name)
	switch mode.Name {
	case "LINES":
		if s.cfg.Session.LinesMemory > 0 {
			mode.MemoryLimit = s.cfg.Session.LinesMemory
		}
	default:
		if s.cfg.Session.NamesMemory > 0 {
			mode.MemoryLimit = s.cfg.Session.NamesMemory
		}
	}
	return mode
}

func (s *Server) sheetURL(r *http.Request, sessionID string) string {
	return s.requestURL(r, "/api/sessions/"+sessionID)
}

// requestURL builds an absolute URL from the request's host header, so links
// survive reverse proxies and container networking.
func (s *Server) requestURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
