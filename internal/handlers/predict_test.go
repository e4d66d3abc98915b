package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"amr-predictor/internal/cache"
	"amr-predictor/internal/predictor"
	"amr-predictor/internal/selection"
)

func newTestHandler() (*PredictHandler, *cache.MemoryPredictionStore) {
	store := cache.NewMemoryPredictionStore()
	memo := predictor.NewMemo(store, predictor.NewCoinFlip(nil), "vtest")
	return NewPredictHandler(memo, cache.BackendMemory, "vtest"), store
}

func postPredict(t *testing.T, h *PredictHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Predict(rr, req)
	return rr
}

func TestPredictHandlerCachesAcrossMarkerOrder(t *testing.T) {
	h, store := newTestHandler()

	rr := postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"Ampicillin","fieldA":["M1","M2"],"fieldB":[],"fieldC":[],"fieldD":[]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var first predictResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if first.Cached {
		t.Fatalf("first prediction must not be cached")
	}
	if first.Prediction != "YES" && first.Prediction != "NO" {
		t.Fatalf("unexpected prediction %q", first.Prediction)
	}
	if first.Message != first.Prediction+" Antimicrobial Resistance Detected" {
		t.Fatalf("unexpected message %q", first.Message)
	}

	rr = postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"Ampicillin","fieldA":["M2","M1"]}`)
	var second predictResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !second.Cached || second.Prediction != first.Prediction || second.ID != first.ID {
		t.Fatalf("expected cached repeat of %+v, got %+v", first, second)
	}

	if n, _ := store.Len(context.Background()); n != 1 {
		t.Fatalf("expected 1 stored prediction, got %d", n)
	}
}

func TestPredictHandlerValidation(t *testing.T) {
	h, store := newTestHandler()

	rr := postPredict(t, h, `{"bacteria":"","antibiotic":"X"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var resp validationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Missing) != 1 || resp.Missing[0] != "bacteria" {
		t.Fatalf("unexpected missing list %v", resp.Missing)
	}

	rr = postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"X","fieldA":["M1"],"extended":true}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for extended selection, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "PARTIAL_END_OF_CONTIG Genes") {
		t.Fatalf("expected category names in body: %s", rr.Body.String())
	}

	if n, _ := store.Len(context.Background()); n != 0 {
		t.Fatalf("rejected selections must not be stored, got %d", n)
	}
}

func TestPredictHandlerInvalidJSON(t *testing.T) {
	h, _ := newTestHandler()

	rr := postPredict(t, h, `{"bacteria":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"X","fieldA":"M1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("non-array marker field should be 400, got %d", rr.Code)
	}
}

func TestPredictHandlerBodyTooLarge(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"bacteria":"` + strings.Repeat("x", 64) + `","antibiotic":"X"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(body))
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, req.Body, 16)

	h.Predict(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

type stubPredictor struct {
	err error
}

func (s stubPredictor) Predict(context.Context, selection.Selection, bool) (predictor.Outcome, error) {
	return predictor.Outcome{}, s.err
}

func (s stubPredictor) Len(context.Context) (int, error) {
	return 0, s.err
}

func TestPredictHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errors.Join(predictor.ErrResolve, errors.New("model down")), http.StatusBadGateway},
		{errors.Join(predictor.ErrStore, errors.New("redis down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		h := NewPredictHandler(stubPredictor{err: tc.err}, cache.BackendRedis, "v1")
		rr := postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"X"}`)
		if rr.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rr.Code)
		}
	}
}

func TestSelectionKeyHandler(t *testing.T) {
	h, _ := newTestHandler()

	body := []byte(`{"bacteria":"E. coli","antibiotic":"Ampicillin","fieldA":["M2","M1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/selection/key", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.SelectionKey(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := `{"bacteria":"E. coli","antibiotic":"Ampicillin","fieldA":["M1","M2"],"fieldB":[],"fieldC":[],"fieldD":[]}`
	if resp["normalized"] != want {
		t.Fatalf("normalized = %v", resp["normalized"])
	}
	if !strings.HasPrefix(resp["store_key"].(string), "predict:vtest:") {
		t.Fatalf("unexpected store key %v", resp["store_key"])
	}
	if resp["can_extend"] != true {
		t.Fatalf("selection with bacteria and antibiotic can extend")
	}
}

func TestStatsHandler(t *testing.T) {
	h, _ := newTestHandler()
	_ = postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"A"}`)
	_ = postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"B"}`)
	_ = postPredict(t, h, `{"bacteria":"E. coli","antibiotic":"A"}`)

	rr := httptest.NewRecorder()
	h.Stats(rr, httptest.NewRequest(http.MethodGet, "/v1/predictions/stats", nil))

	var resp struct {
		Entries int    `json:"entries"`
		Backend string `json:"backend"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Entries != 2 || resp.Backend != "memory" {
		t.Fatalf("unexpected stats %+v", resp)
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestReadyz(t *testing.T) {
	rr := httptest.NewRecorder()
	Readyz(nil)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("nil pinger should be ready, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	Readyz(stubPinger{err: errors.New("down")})(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("failing pinger should be 503, got %d", rr.Code)
	}
}

func TestPredictHandlerRejectsInvalidUTF8(t *testing.T) {
	h, store := newTestHandler()

	// JSON cannot carry raw invalid bytes, so go through the predictor directly
	// the way an in-process caller would.
	_, err := h.Predictor.Predict(context.Background(), selection.Selection{Bacteria: "E\xff", Antibiotic: "X"}, false)
	if !selection.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	rr := httptest.NewRecorder()
	h.writeError(rr, httptest.NewRequest(http.MethodPost, "/v1/predict", nil), err)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var resp validationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Invalid) != 1 || resp.Invalid[0] != "bacteria" || len(resp.Missing) != 0 {
		t.Fatalf("unexpected body %+v", resp)
	}

	if n, _ := store.Len(context.Background()); n != 0 {
		t.Fatalf("rejected selections must not be stored, got %d", n)
	}
}
