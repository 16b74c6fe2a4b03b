package screening

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledWithoutEndpoint(t *testing.T) {
	svc := New("", "", ModeBlock, time.Second)
	if svc.Enabled() {
		t.Fatalf("expected screening disabled without endpoint")
	}
	verdict := svc.ScreenFile(context.Background(), "http://files/doc.pdf", "Nota fiscal", "file")
	if !verdict.Valid || verdict.Blocks() {
		t.Fatalf("expected permissive disabled verdict, got %+v", verdict)
	}
}

func TestScreenFileBlockVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/screen" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["itemName"] != "Nota fiscal" {
			t.Errorf("expected item name forwarded, got %q", body["itemName"])
		}
		_ = json.NewEncoder(w).Encode(Verdict{Valid: false, Message: "not a receipt"})
	}))
	defer srv.Close()

	svc := New(srv.URL, "secret", ModeBlock, 5*time.Second)
	verdict := svc.ScreenFile(context.Background(), "http://files/doc.pdf", "Nota fiscal", "file")
	if verdict.Valid {
		t.Fatalf("expected invalid verdict")
	}
	if !verdict.Blocks() {
		t.Fatalf("expected block-mode invalid verdict to block, got %+v", verdict)
	}
	if verdict.Mode != ModeBlock {
		t.Fatalf("expected service mode filled in, got %q", verdict.Mode)
	}
}

func TestWarnModeNeverBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Verdict{Valid: false, Message: "wrong type"})
	}))
	defer srv.Close()

	svc := New(srv.URL, "", ModeWarn, 5*time.Second)
	verdict := svc.ScreenFile(context.Background(), "http://files/doc.pdf", "", "")
	if verdict.Blocks() {
		t.Fatalf("expected warn verdict not to block, got %+v", verdict)
	}
}

func TestEndpointFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := New(srv.URL, "", ModeBlock, 5*time.Second)
	verdict := svc.ScreenFile(context.Background(), "http://files/doc.pdf", "", "")
	if !verdict.Valid || verdict.Blocks() {
		t.Fatalf("expected failure to degrade to permissive verdict, got %+v", verdict)
	}
	if verdict.Mode != ModeDisabled {
		t.Fatalf("expected degraded verdict marked disabled, got %q", verdict.Mode)
	}
}
