package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cachegate/internal/gate"
	"cachegate/internal/pii"
	"cachegate/internal/store"
)

type nilRecognizer struct{}

func (nilRecognizer) Recognize(ctx context.Context, text string) ([]pii.Finding, error) {
	return nil, nil
}

func newTestHandlers(t *testing.T) (*CacheHandler, *DataSubjectHandler) {
	t.Helper()
	durable := store.NewMemoryStore(128, time.Minute)
	ephemeral := store.NewMemoryStore(128, time.Minute)
	t.Cleanup(func() {
		_ = durable.Close()
		_ = ephemeral.Close()
	})

	g := gate.New(durable, ephemeral, pii.NewScanner(nilRecognizer{}, 0.4, time.Second), gate.Options{
		TTL:     time.Hour,
		Enabled: true,
	})
	return NewCacheHandler(g), NewDataSubjectHandler(durable, ephemeral)
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCacheHandler_StoreThenLookup(t *testing.T) {
	ch, _ := newTestHandlers(t)

	rec := postJSON(t, ch.Store, map[string]string{
		"tenant_id": "acme",
		"model_id":  "gpt-4",
		"user_id":   "user-1",
		"query":     "What are your support hours?",
		"response":  "We are open 9am-5pm weekdays.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("store status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sr storeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sr); err != nil {
		t.Fatal(err)
	}
	if !sr.Stored {
		t.Fatal("expected stored:true for clean content")
	}

	rec = postJSON(t, ch.Lookup, map[string]string{
		"tenant_id": "acme",
		"model_id":  "gpt-4",
		"query":     "what are   your SUPPORT hours?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status = %d, body %s", rec.Code, rec.Body.String())
	}
	var lr lookupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &lr); err != nil {
		t.Fatal(err)
	}
	if !lr.Hit {
		t.Fatal("expected hit for normalization-equivalent query")
	}
	if lr.Response != "We are open 9am-5pm weekdays." {
		t.Fatalf("unexpected response %q", lr.Response)
	}
}

func TestCacheHandler_LookupMiss(t *testing.T) {
	ch, _ := newTestHandlers(t)

	rec := postJSON(t, ch.Lookup, map[string]string{
		"tenant_id": "acme",
		"model_id":  "gpt-4",
		"query":     "never cached",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status = %d", rec.Code)
	}
	var lr lookupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &lr); err != nil {
		t.Fatal(err)
	}
	if lr.Hit || lr.Response != "" {
		t.Fatalf("expected clean miss, got %+v", lr)
	}
}

func TestCacheHandler_StoreRejectsPII(t *testing.T) {
	ch, _ := newTestHandlers(t)

	rec := postJSON(t, ch.Store, map[string]string{
		"tenant_id": "acme",
		"model_id":  "gpt-4",
		"query":     "Reset my password, my email is alice@example.com",
		"response":  "Done, check your inbox.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("store status = %d, a PII rejection is not an HTTP error", rec.Code)
	}
	var sr storeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sr); err != nil {
		t.Fatal(err)
	}
	if sr.Stored {
		t.Fatal("expected stored:false for PII query")
	}
}

func TestCacheHandler_BadRequests(t *testing.T) {
	ch, _ := newTestHandlers(t)

	// Malformed JSON.
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	ch.Lookup(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON: status = %d", rec.Code)
	}

	// Missing response payload.
	rec = postJSON(t, ch.Store, map[string]string{
		"tenant_id": "acme",
		"model_id":  "gpt-4",
		"query":     "q",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing response: status = %d", rec.Code)
	}

	// Missing tenant fails fingerprint validation.
	rec = postJSON(t, ch.Lookup, map[string]string{
		"model_id": "gpt-4",
		"query":    "q",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing tenant: status = %d", rec.Code)
	}
}
