package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fieldbook/api/internal/checklist"
	"fieldbook/api/internal/config"
	"fieldbook/api/internal/screening"
	"fieldbook/api/internal/store"
)

func newTestHandler(svc *Service) http.Handler {
	return NewHTTPServer(svc, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid JSON response for %s %s: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, payload
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(newTestAppService(&fakeStore{}, newFakeCache()))

	rec, payload := doJSON(t, handler, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok true, got %v", payload)
	}
}

func TestGetChecklistEndpoint(t *testing.T) {
	svc := newTestAppService(storeForChecklist(openChecklistFixture()), newFakeCache())
	handler := newTestHandler(svc)

	rec, payload := doJSON(t, handler, http.MethodGet, "/api/checklists/CHK-001", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
	}
	if payload["publicId"] != "CHK-001" {
		t.Fatalf("expected publicId CHK-001, got %v", payload["publicId"])
	}
	items, ok := payload["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %v", payload["items"])
	}
}

func TestGetChecklistNotFound(t *testing.T) {
	handler := newTestHandler(newTestAppService(&fakeStore{}, newFakeCache()))

	rec, payload := doJSON(t, handler, http.MethodGet, "/api/checklists/CHK-missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND code, got %v", payload["code"])
	}
}

func TestSubmitEndpointReportsFailingIndex(t *testing.T) {
	svc := newTestAppService(storeForChecklist(openChecklistFixture()), newFakeCache())
	handler := newTestHandler(svc)

	rec, payload := doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/submit", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", rec.Code, payload)
	}
	details, ok := payload["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected details, got %v", payload)
	}
	if details["failedIndex"] != float64(0) {
		t.Fatalf("expected failedIndex 0, got %v", details["failedIndex"])
	}
}

func TestAnswerThenSubmitEndpoint(t *testing.T) {
	svc := newTestAppService(storeForChecklist(openChecklistFixture()), newFakeCache())
	handler := newTestHandler(svc)

	rec, payload := doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/answers/it_name", `{"answer":"Soja"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on answer, got %d: %v", rec.Code, payload)
	}

	rec, payload = doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/submit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on submit, got %d: %v", rec.Code, payload)
	}
}

func TestRejectEndpointRequiresReason(t *testing.T) {
	svc := newTestAppService(storeForChecklist(openChecklistFixture()), newFakeCache())
	handler := newTestHandler(svc)

	rec, payload := doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/audit/it_name/reject", `{"reason":"  "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank reason, got %d: %v", rec.Code, payload)
	}
}

func TestUnknownAuditAction(t *testing.T) {
	svc := newTestAppService(storeForChecklist(openChecklistFixture()), newFakeCache())
	handler := newTestHandler(svc)

	rec, _ := doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/audit/it_name/escalate", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown audit action, got %d", rec.Code)
	}
}

func TestNavigateEndpoint(t *testing.T) {
	svc := newTestAppService(storeForChecklist(openChecklistFixture()), newFakeCache())
	handler := newTestHandler(svc)

	rec, payload := doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/navigate", `{"direction":"next"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
	}
	if payload["currentStep"] != float64(1) {
		t.Fatalf("expected currentStep 1, got %v", payload["currentStep"])
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/navigate", `{"direction":"sideways"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad direction, got %d", rec.Code)
	}
}

func TestAnswerWithBlockingScreeningVerdict(t *testing.T) {
	screeningSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/screen" {
			t.Errorf("unexpected screening path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(screening.Verdict{
			Valid:   false,
			Legible: false,
			Message: "document is illegible",
			Mode:    screening.ModeBlock,
		})
	}))
	defer screeningSrv.Close()

	screeningSvc := screening.New(screeningSrv.URL, "", screening.ModeBlock, 5*time.Second)
	svc := New(config.Config{}, storeForChecklist(openChecklistFixture()), newFakeCache(), screeningSvc, nil, nil)
	handler := newTestHandler(svc)

	rec, payload := doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/answers/it_name",
		`{"answer":"Soja","fileUrl":"http://files/doc.pdf","itemName":"Nome da cultura","itemType":"text"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 when screening blocks, got %d: %v", rec.Code, payload)
	}
	if payload["code"] != "SCREENING_BLOCKED" {
		t.Fatalf("expected SCREENING_BLOCKED, got %v", payload["code"])
	}
}

func TestAnswerWithWarnScreeningVerdictStillSaves(t *testing.T) {
	screeningSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(screening.Verdict{
			Valid:   false,
			Message: "looks like the wrong document type",
			Mode:    screening.ModeWarn,
		})
	}))
	defer screeningSrv.Close()

	screeningSvc := screening.New(screeningSrv.URL, "", screening.ModeWarn, 5*time.Second)
	cache := newFakeCache()
	svc := New(config.Config{}, storeForChecklist(openChecklistFixture()), cache, screeningSvc, nil, nil)
	handler := newTestHandler(svc)

	rec, payload := doJSON(t, handler, http.MethodPost, "/api/checklists/CHK-001/answers/it_name",
		`{"answer":"Soja","fileUrl":"http://files/doc.pdf"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected warn verdict to ride along a 200, got %d: %v", rec.Code, payload)
	}
	verdict, ok := payload["screening"].(map[string]any)
	if !ok || verdict["message"] != "looks like the wrong document type" {
		t.Fatalf("expected screening advisory in response, got %v", payload["screening"])
	}
	if got := cache.drafts["CHK-001"]["it_name"]; got.Status != checklist.StatusPending {
		t.Fatalf("expected answer saved despite warning, got %+v", got)
	}
}

func TestListChecklistsRequiresProducer(t *testing.T) {
	handler := newTestHandler(newTestAppService(&fakeStore{}, newFakeCache()))

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/checklists", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without producerId, got %d", rec.Code)
	}
}

func TestListChecklistsEndpoint(t *testing.T) {
	fs := &fakeStore{
		listChecklistsFn: func(_ context.Context, producerID, status string) ([]store.Checklist, error) {
			if producerID != "prd_1" {
				t.Fatalf("expected producer prd_1, got %q", producerID)
			}
			if status != "" {
				t.Fatalf("expected no status filter, got %q", status)
			}
			return []store.Checklist{{ID: "cl_1", PublicID: "CHK-001", Status: "SENT"}}, nil
		},
	}
	handler := newTestHandler(newTestAppService(fs, newFakeCache()))

	rec, payload := doJSON(t, handler, http.MethodGet, "/api/checklists?producerId=prd_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	items, ok := payload["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one checklist, got %v", payload["items"])
	}
}

func TestListChecklistsStatusFilter(t *testing.T) {
	fs := &fakeStore{
		listChecklistsFn: func(_ context.Context, _ string, status string) ([]store.Checklist, error) {
			if status != "FINALIZED" {
				t.Fatalf("expected FINALIZED filter, got %q", status)
			}
			return []store.Checklist{}, nil
		},
	}
	handler := newTestHandler(newTestAppService(fs, newFakeCache()))

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/checklists?producerId=prd_1&status=FINALIZED", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec, payload := doJSON(t, handler, http.MethodGet, "/api/checklists?producerId=prd_1&status=DRAFT", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown status, got %d: %v", rec.Code, payload)
	}
}
