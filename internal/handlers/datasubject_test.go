package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func seedUserEntries(t *testing.T, ch *CacheHandler, userID string, queries []string) {
	t.Helper()
	for _, q := range queries {
		rec := postJSON(t, ch.Store, map[string]string{
			"tenant_id": "acme",
			"model_id":  "gpt-4",
			"user_id":   userID,
			"query":     q,
			"response":  "a generic answer",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("seed store failed: %d %s", rec.Code, rec.Body.String())
		}
	}
}

// Access, delete, then access again: the second access sees no residual
// entries and the delete reports the full count.
func TestDataSubject_AccessDeleteLifecycle(t *testing.T) {
	ch, ds := newTestHandlers(t)
	seedUserEntries(t, ch, "user-1", []string{"query one", "query two", "query three"})
	seedUserEntries(t, ch, "user-2", []string{"someone else entirely"})

	// Access lists the user's entries.
	req := httptest.NewRequest(http.MethodGet, "/api/user/cached-data?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	ds.Access(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("access status = %d", rec.Code)
	}
	var access accessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &access); err != nil {
		t.Fatal(err)
	}
	if len(access.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(access.Entries))
	}
	if access.RequestID == "" {
		t.Fatal("expected a request_id on the access response")
	}
	for _, e := range access.Entries {
		if e.TenantID != "acme" || e.ModelID != "gpt-4" {
			t.Fatalf("entry metadata wrong: %+v", e)
		}
	}

	// Delete removes them all.
	req = httptest.NewRequest(http.MethodDelete, "/api/user/cached-data?user_id=user-1", nil)
	rec = httptest.NewRecorder()
	ds.Delete(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var del deleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &del); err != nil {
		t.Fatal(err)
	}
	if del.DeletedCount != 3 {
		t.Fatalf("expected deleted_count 3, got %d", del.DeletedCount)
	}

	// Second access is empty.
	req = httptest.NewRequest(http.MethodGet, "/api/user/cached-data?user_id=user-1", nil)
	rec = httptest.NewRecorder()
	ds.Access(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &access); err != nil {
		t.Fatal(err)
	}
	if len(access.Entries) != 0 {
		t.Fatalf("expected no residual entries, got %d", len(access.Entries))
	}

	// Other users are untouched.
	req = httptest.NewRequest(http.MethodGet, "/api/user/cached-data?user_id=user-2", nil)
	rec = httptest.NewRecorder()
	ds.Access(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &access); err != nil {
		t.Fatal(err)
	}
	if len(access.Entries) != 1 {
		t.Fatalf("expected other user's entry to remain, got %d", len(access.Entries))
	}
}

func TestDataSubject_DeleteUnknownUser(t *testing.T) {
	_, ds := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/user/cached-data?user_id=ghost", nil)
	rec := httptest.NewRecorder()
	ds.Delete(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var del deleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &del); err != nil {
		t.Fatal(err)
	}
	if del.DeletedCount != 0 {
		t.Fatalf("expected deleted_count 0, got %d", del.DeletedCount)
	}
}

func TestDataSubject_MissingUserID(t *testing.T) {
	_, ds := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/cached-data", nil)
	rec := httptest.NewRecorder()
	ds.Access(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("access without user_id: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/user/cached-data", nil)
	rec = httptest.NewRecorder()
	ds.Delete(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("delete without user_id: status = %d", rec.Code)
	}
}
