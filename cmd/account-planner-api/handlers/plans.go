// Package handlers provides HTTP handlers for the account planner API.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/extract"
	"github.com/spherical/account-planner/internal/observability"
	"github.com/spherical/account-planner/internal/planner"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// PlanHandler serves plan generation, extraction and repair.
type PlanHandler struct {
	logger    *observability.Logger
	planner   *planner.Service
	extractor *extract.Extractor
	maxUpload int64
	enrich    bool
}

// NewPlanHandler creates a new plan handler. enrich is the default for
// requests that do not pass ?enrich.
func NewPlanHandler(logger *observability.Logger, svc *planner.Service, extractor *extract.Extractor, maxUpload int64, enrich bool) *PlanHandler {
	return &PlanHandler{
		logger:    logger,
		planner:   svc,
		extractor: extractor,
		maxUpload: maxUpload,
		enrich:    enrich,
	}
}

// PlanResponseDTO is the JSON form of an extracted plan.
type PlanResponseDTO struct {
	RequestID   string         `json:"request_id"`
	AccountName string         `json:"account_name"`
	Filename    string         `json:"filename"`
	CacheHit    bool           `json:"cache_hit"`
	DurationMS  int64          `json:"duration_ms"`
	Plan        map[string]any `json:"plan"`
}

// RepairResponseDTO is the response of the repair endpoint.
type RepairResponseDTO struct {
	Plan   map[string]any `json:"plan"`
	Report any            `json:"report"`
}

type textRequestDTO struct {
	InputText string `json:"input_text"`
}

// Generate handles POST /api/v1/plans and returns the rendered document.
func (h *PlanHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	src, cleanup, err := h.readSource(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer cleanup()

	var buf bytes.Buffer
	result, err := h.planner.Generate(ctx, src, &buf, planner.Options{Enrich: h.wantEnrich(r)})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.WithContext(ctx).Info().
		Str("account", result.AccountName).
		Str("filename", result.Filename).
		Bool("cache_hit", result.CacheHit).
		Dur("duration", result.Duration).
		Msg("plan generated")

	w.Header().Set("Content-Type", docxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Cache", cacheHeader(result.CacheHit))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Extract handles POST /api/v1/plans/extract and returns the plan tree.
func (h *PlanHandler) Extract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	src, cleanup, err := h.readSource(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer cleanup()

	result, err := h.planner.Extract(ctx, src, planner.Options{Enrich: h.wantEnrich(r)})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("X-Cache", cacheHeader(result.CacheHit))
	h.writeJSON(w, http.StatusOK, PlanResponseDTO{
		RequestID:   result.RequestID,
		AccountName: result.AccountName,
		Filename:    result.Filename,
		CacheHit:    result.CacheHit,
		DurationMS:  result.Duration.Milliseconds(),
		Plan:        result.Plan,
	})
}

// Repair handles POST /api/v1/plans/repair. The body is a plan tree.
func (h *PlanHandler) Repair(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		h.writeError(w, r, domain.ValidationError("invalid request body", err))
		return
	}

	plan, report, err := h.planner.Repair(tree)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.wantEnrich(r) {
		plan = h.planner.Enrich(plan)
	}

	h.writeJSON(w, http.StatusOK, RepairResponseDTO{Plan: plan, Report: report})
}

// Schema handles GET /api/v1/schema and returns the default plan skeleton.
func (h *PlanHandler) Schema(w http.ResponseWriter, r *http.Request) {
	skeleton, err := h.planner.Schema().Skeleton()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(skeleton)
}

// readSource takes the document from a multipart input_file, or from
// input_text sent as a form field or JSON body. The returned cleanup
// removes any temporary upload.
func (h *PlanHandler) readSource(w http.ResponseWriter, r *http.Request) (domain.Source, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var text string

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return domain.Source{}, noop, bodyError(err)
		}
		file, header, err := r.FormFile("input_file")
		switch {
		case err == nil:
			defer file.Close()
			return h.saveUpload(file, header.Filename)
		case !errors.Is(err, http.ErrMissingFile):
			return domain.Source{}, noop, domain.ValidationError("invalid input_file", err)
		}
		text = r.FormValue("input_text")
	case "application/json":
		var req textRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return domain.Source{}, noop, bodyError(err)
		}
		text = req.InputText
	default:
		if err := r.ParseForm(); err != nil {
			return domain.Source{}, noop, bodyError(err)
		}
		text = r.PostFormValue("input_text")
	}

	if strings.TrimSpace(text) == "" {
		return domain.Source{}, noop, domain.ValidationError("provide input_file or input_text", nil)
	}
	return h.extractor.FromText(text).Source(), noop, nil
}

func (h *PlanHandler) saveUpload(file io.Reader, filename string) (domain.Source, func(), error) {
	noop := func() {}
	name := filepath.Base(filename)
	if !extract.Supported(name) {
		return domain.Source{}, noop, domain.ValidationError(fmt.Sprintf("unsupported file type %q", filepath.Ext(name)), nil)
	}

	path := filepath.Join(os.TempDir(), "account-plan-"+uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	out, err := os.Create(path)
	if err != nil {
		return domain.Source{}, noop, domain.IOError("store upload", err)
	}
	cleanup := func() { _ = os.Remove(path) }

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		cleanup()
		return domain.Source{}, noop, bodyError(err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return domain.Source{}, noop, domain.IOError("store upload", err)
	}
	return domain.Source{Path: path, Filename: name}, cleanup, nil
}

func (h *PlanHandler) wantEnrich(r *http.Request) bool {
	v := r.URL.Query().Get("enrich")
	if v == "" {
		return h.enrich
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// writeError maps a pipeline error to a status and JSON body.
func (h *PlanHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := map[string]string{"error": err.Error()}
	if status == http.StatusUnprocessableEntity {
		resp["raw"] = domain.RawOf(err)
	}
	if id := observability.RequestIDFromContext(r.Context()); id != "" {
		resp["request_id"] = id
	}

	event := h.logger.WithContext(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.WithContext(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")

	h.writeJSON(w, status, resp)
}

func (h *PlanHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response")
	}
}

// StatusFor maps domain error types to HTTP status codes.
func StatusFor(err error) int {
	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation, domain.ErrorTypeInputTooShort, domain.ErrorTypeInvalidShape:
		return http.StatusBadRequest
	case domain.ErrorTypeExtractionParse:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypeAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.ValidationError(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), err)
	}
	return domain.ValidationError("invalid request body", err)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}
