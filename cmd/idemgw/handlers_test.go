package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keystone-labs/idemgw"
	"github.com/keystone-labs/idemgw/internal/requestlog"
	"github.com/keystone-labs/idemgw/store"
)

func newTestRouter(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	cfg := idemgw.Config{
		Key:        idemgw.KeyConfig{Source: idemgw.SourceHeader},
		TTLSeconds: 3600,
		LocalCache: idemgw.LocalCacheConfig{Enabled: true},
		Store:      idemgw.StoreConfig{Backend: "memory"},
	}
	st := store.NewMemory()
	coord, err := idemgw.New(cfg, st)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	coord.SetTransform(idemgw.MarkServerCacheHit)
	return newRouter(coord, st, cfg, nil, requestlog.NoopWriter{}), st
}

func postRequest(t *testing.T, h http.Handler, key string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/requests", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRequests_FreshThenCached(t *testing.T) {
	h, _ := newTestRouter(t)

	first := postRequest(t, h, "abc-1", nil)
	if first.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	firstBody := decodeBody(t, first)
	if firstBody["cached"] != false {
		t.Error("expected cached=false on first request")
	}
	if firstBody["requestId"] != "abc-1" {
		t.Errorf("expected requestId abc-1, got %v", firstBody["requestId"])
	}
	if first.Header().Get("ETag") == "" {
		t.Error("expected ETag on fresh response")
	}

	second := postRequest(t, h, "abc-1", nil)
	if second.Code != 200 {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	secondBody := decodeBody(t, second)
	if secondBody["cached"] != true {
		t.Error("expected cached=true on replay")
	}
	if secondBody["serverCacheHit"] != true {
		t.Error("expected serverCacheHit on replay")
	}
	if secondBody["paymentId"] != firstBody["paymentId"] {
		t.Error("expected replay to carry the original business payload")
	}
}

func TestRequests_MissingKey(t *testing.T) {
	h, _ := newTestRouter(t)

	w := postRequest(t, h, "", nil)
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] == "" || body["error"] == nil {
		t.Error("expected explicit error message")
	}
}

func TestRequests_ConditionalNotModified(t *testing.T) {
	h, _ := newTestRouter(t)

	postRequest(t, h, "abc-1", nil)
	cached := postRequest(t, h, "abc-1", nil)
	etag := cached.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on cached response")
	}

	conditional := postRequest(t, h, "abc-1", map[string]string{"If-None-Match": etag})
	if conditional.Code != 304 {
		t.Fatalf("expected 304, got %d", conditional.Code)
	}
	if conditional.Body.Len() != 0 {
		t.Error("expected empty body on 304")
	}
	if conditional.Header().Get("Cache-Control") == "" {
		t.Error("expected Cache-Control on 304")
	}
}

func TestRequests_InProgressConflict(t *testing.T) {
	h, st := newTestRouter(t)

	now := time.Now()
	if _, err := st.PutIfAbsent(context.Background(), store.Record{
		ID:        "dup-1",
		Status:    store.StatusInProgress,
		Owner:     "other-worker",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	w := postRequest(t, h, "dup-1", nil)
	if w.Code != 409 {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestRecords_Introspection(t *testing.T) {
	h, _ := newTestRouter(t)

	miss := httptest.NewRecorder()
	h.ServeHTTP(miss, httptest.NewRequest("GET", "/v1/records/unknown", nil))
	if miss.Code != 404 {
		t.Fatalf("expected 404 for unknown key, got %d", miss.Code)
	}

	postRequest(t, h, "abc-1", nil)

	hit := httptest.NewRecorder()
	h.ServeHTTP(hit, httptest.NewRequest("GET", "/v1/records/abc-1", nil))
	if hit.Code != 200 {
		t.Fatalf("expected 200, got %d", hit.Code)
	}
	body := decodeBody(t, hit)
	if body["status"] != string(store.StatusCompleted) {
		t.Errorf("expected COMPLETED, got %v", body["status"])
	}
	if body["responsePayload"] != nil {
		t.Error("introspection must not expose the stored payload")
	}
}

func TestRecords_ForceRelease(t *testing.T) {
	h, st := newTestRouter(t)

	now := time.Now()
	if _, err := st.PutIfAbsent(context.Background(), store.Record{
		ID:        "stuck-1",
		Status:    store.StatusInProgress,
		Owner:     "crashed-worker",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	del := httptest.NewRecorder()
	h.ServeHTTP(del, httptest.NewRequest("DELETE", "/v1/records/stuck-1", nil))
	if del.Code != 204 {
		t.Fatalf("expected 204, got %d", del.Code)
	}

	// Released key must accept a fresh execution.
	w := postRequest(t, h, "stuck-1", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200 after release, got %d", w.Code)
	}
	if decodeBody(t, w)["cached"] != false {
		t.Error("expected fresh execution after release")
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
