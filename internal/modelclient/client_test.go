package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"amr-predictor/internal/prediction"
	"amr-predictor/internal/selection"
)

func testSelection() selection.Selection {
	return selection.Selection{
		Bacteria:       "E. coli",
		Antibiotic:     "Ampicillin",
		PointMutations: selection.NewMarkerSet("M2", "M1"),
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	if _, err := NewClient(Config{BaseURL: "ftp://model"}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected scheme validation error, got nil")
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := (&Config{BaseURL: "https://model.example/ ", MaxRetries: -1}).WithDefaults()
	if cfg.BaseURL != "https://model.example" {
		t.Fatalf("BaseURL not normalized: %q", cfg.BaseURL)
	}
	if cfg.MaxRetries != 0 {
		t.Fatalf("negative MaxRetries should disable retries, got %d", cfg.MaxRetries)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Fatalf("unexpected default timeout %v", cfg.UpstreamTimeout)
	}
}

func TestPredictSuccess(t *testing.T) {
	t.Parallel()

	var gotReq providerPredictRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction":"yes","probability":0.91}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "test-key"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	resp, err := client.Predict(context.Background(), testSelection())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotReq.Bacteria != "E. coli" || gotReq.Antibiotic != "Ampicillin" {
		t.Fatalf("unexpected request: %#v", gotReq)
	}
	if len(gotReq.FieldA) != 2 || gotReq.FieldA[0] != "M1" || gotReq.FieldB == nil {
		t.Fatalf("marker lists should be sorted and non-null: %#v", gotReq)
	}

	if resp.Prediction != prediction.Yes {
		t.Fatalf("unexpected prediction %q", resp.Prediction)
	}
	if resp.Probability == nil || *resp.Probability != 0.91 {
		t.Fatalf("probability not mapped: %v", resp.Probability)
	}
	if len(resp.Raw) == 0 {
		t.Fatalf("raw body should be kept")
	}
}

func TestPredictVerdictShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		body string
		want prediction.Prediction
	}{
		{`{"result":"NO"}`, prediction.No},
		{`{"resistant":true}`, prediction.Yes},
		{`{"prediction":false}`, prediction.No},
		{`{"prediction":1}`, prediction.Yes},
	}

	for _, tc := range cases {
		var resp providerPredictResponse
		if err := json.Unmarshal([]byte(tc.body), &resp); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.body, err)
		}
		got, err := resp.verdict()
		if err != nil || got != tc.want {
			t.Fatalf("verdict(%s) = %q, %v; want %q", tc.body, got, err, tc.want)
		}
	}

	var empty providerPredictResponse
	if _, err := empty.verdict(); !errors.Is(err, errNoVerdict) {
		t.Fatalf("expected errNoVerdict, got %v", err)
	}
}

func TestPredictClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown antibiotic"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, BaseBackoff: time.Millisecond}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.Predict(context.Background(), testSelection())
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if serr.StatusCode != http.StatusBadRequest || serr.Message != "unknown antibiotic" {
		t.Fatalf("unexpected status error: %+v", serr)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}

func TestPredictRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"prediction":"NO"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:     srv.URL,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	resp, err := client.Predict(context.Background(), testSelection())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if resp.Prediction != prediction.No {
		t.Fatalf("unexpected prediction %q", resp.Prediction)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestPredictRetriesExhausted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:     srv.URL,
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	if _, err := client.Predict(context.Background(), testSelection()); err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	mk := func(v string) *http.Response {
		return &http.Response{Header: http.Header{"Retry-After": []string{v}}}
	}

	if got := parseRetryAfter(mk("3")); got != 3*time.Second {
		t.Fatalf("seconds form: got %v", got)
	}
	if got := parseRetryAfter(mk("99999")); got != maxRetryAfter {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := parseRetryAfter(mk("soon")); got != 0 {
		t.Fatalf("invalid header should be 0, got %v", got)
	}
	if got := parseRetryAfter(nil); got != 0 {
		t.Fatalf("nil response should be 0, got %v", got)
	}
}

func TestComputeBackoffBounds(t *testing.T) {
	t.Parallel()

	for attempt := 0; attempt < 20; attempt++ {
		d := computeBackoff(10*time.Millisecond, attempt)
		if d < 0 || d > 60*time.Second {
			t.Fatalf("attempt %d: backoff %v out of bounds", attempt, d)
		}
	}
}

func closeClient(c Client) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if s := classify(nil, context.DeadlineExceeded); !s.done {
		t.Fatalf("deadline errors are final")
	}
	if s := classify(nil, errors.New("connection refused")); s.done {
		t.Fatalf("refused connections are retried")
	}
	if s := classify(nil, errors.New("tls: bad certificate")); !s.done {
		t.Fatalf("unknown errors are final")
	}

	ok := &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}
	if s := classify(ok, nil); !s.done || s.resp != ok {
		t.Fatalf("2xx is final and returns the response")
	}

	limited := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"2"}},
		Body:       http.NoBody,
	}
	if s := classify(limited, nil); s.done || s.pause != 2*time.Second {
		t.Fatalf("429 should retry after 2s, got %+v", s)
	}
}

func TestPredictLogsFingerprintPerAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"prediction":"YES"}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client, err := NewClient(Config{BaseURL: srv.URL, BaseBackoff: time.Millisecond}, zap.New(core))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	sel := testSelection()
	if _, err := client.Predict(context.Background(), sel); err != nil {
		t.Fatalf("Predict: %v", err)
	}

	attempts := logs.FilterMessage("model attempt").All()
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempt logs, got %d", len(attempts))
	}
	for _, e := range attempts {
		if e.ContextMap()["hash"] != selection.Fingerprint(sel) {
			t.Fatalf("attempt log missing selection hash: %v", e.ContextMap())
		}
	}
}
