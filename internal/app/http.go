package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"fieldbook/api/internal/checklist"
	"fieldbook/api/internal/search"
	"fieldbook/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := search.Query{
			Text:           r.URL.Query().Get("q"),
			FilterType:     search.ResultType(r.URL.Query().Get("type")),
			FilterProducer: r.URL.Query().Get("producerId"),
		}
		writeJSON(w, http.StatusOK, s.service.Search(q))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/checklists" {
		producerID := strings.TrimSpace(r.URL.Query().Get("producerId"))
		if producerID == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "producerId is required", nil)
			return
		}
		items, err := s.service.ListChecklists(r.Context(), producerID, strings.TrimSpace(r.URL.Query().Get("status")))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": checklistSummaries(items)})
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "checklists" {
		s.handleChecklist(w, r, segments[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleChecklist(w http.ResponseWriter, r *http.Request, segments []string) {
	if len(segments) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	publicID := segments[0]
	rest := segments[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		view, err := s.service.OpenChecklist(r.Context(), publicID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(rest) == 1 && rest[0] == "fields" && r.Method == http.MethodPost:
		var body struct {
			FieldIDs []string `json:"fieldIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.ConfirmFieldSelection(r.Context(), publicID, body.FieldIDs)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(rest) == 2 && rest[0] == "answers" && r.Method == http.MethodPost:
		var body struct {
			checklist.Update
			ItemName string `json:"itemName"`
			ItemType string `json:"itemType"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		verdict, err := s.service.UpdateAnswer(r.Context(), publicID, rest[1], body.Update, body.ItemName, body.ItemType)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "screening": verdict})

	case len(rest) == 1 && rest[0] == "navigate" && r.Method == http.MethodPost:
		var body struct {
			Direction string `json:"direction"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		step, percent, err := s.service.Navigate(r.Context(), publicID, body.Direction)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"currentStep": step, "percentComplete": percent})

	case len(rest) == 1 && rest[0] == "save" && r.Method == http.MethodPost:
		if err := s.service.ManualSave(r.Context(), publicID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 1 && rest[0] == "submit" && r.Method == http.MethodPost:
		failIndex, err := s.service.Submit(r.Context(), publicID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if failIndex >= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A required item is missing an answer", map[string]any{
				"failedIndex": failIndex,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 1 && rest[0] == "finalize" && r.Method == http.MethodPost:
		if err := s.service.Finalize(r.Context(), publicID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 1 && rest[0] == "files" && r.Method == http.MethodPost:
		s.handleFileUpload(w, r, publicID)

	case len(rest) == 1 && rest[0] == "export.pdf" && r.Method == http.MethodGet:
		result, err := s.service.ExportPDF(r.Context(), publicID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	case len(rest) == 3 && rest[0] == "audit" && r.Method == http.MethodPost:
		s.handleAudit(w, r, publicID, rest[1], rest[2])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request, publicID, key, action string) {
	var err error
	switch action {
	case "approve":
		err = s.service.Approve(r.Context(), publicID, key)
	case "reject":
		var body struct {
			Reason string `json:"reason"`
		}
		if decodeErr := decodeBody(r, &body); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", decodeErr.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Reason) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "reason is required", nil)
			return
		}
		err = s.service.Reject(r.Context(), publicID, key, body.Reason)
	case "revalidate":
		err = s.service.Revalidate(r.Context(), publicID, key)
	case "accept-suggestion":
		err = s.service.AcceptSuggestion(r.Context(), publicID, key)
	case "internal-fill":
		var body checklist.Update
		if decodeErr := decodeBody(r, &body); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", decodeErr.Error(), nil)
			return
		}
		err = s.service.InternalFill(r.Context(), publicID, key, body)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown audit action", nil)
		return
	}

	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleFileUpload(w http.ResponseWriter, r *http.Request, publicID string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	url, verdict, err := s.service.UploadFile(
		r.Context(),
		publicID,
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
		file,
		r.FormValue("itemName"),
		r.FormValue("itemType"),
	)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fileUrl": url, "screening": verdict})
}

func checklistSummaries(items []store.Checklist) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"publicId":   item.PublicID,
			"templateId": item.TemplateID,
			"status":     item.Status,
			"parentId":   item.ParentID,
			"createdAt":  item.CreatedAt,
		})
	}
	return out
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
