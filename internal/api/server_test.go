package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentinelsweep/sweep-cli/internal/baseline"
	"github.com/sentinelsweep/sweep-cli/internal/report"
	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

func newTestServer(t *testing.T, token string) (*Server, *baseline.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := baseline.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(Config{
		ResultsDir: dir,
		Store:      store,
		AuthToken:  token,
	}), store, dir
}

func TestHealthzOpenWithoutAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestAuthTokenRequired(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/baselines", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/baselines", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestListBaselines(t *testing.T) {
	srv, store, _ := newTestServer(t, "")

	e := risk.NewEngine(nil)
	batch := []risk.Assessment{e.AssessExposure("10.0.0.1", []int{22}, nil)}
	if _, err := store.WriteBaseline(batch); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/baselines", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var entries []baselineEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].HostCount != 1 || entries[0].ContentHash == "" {
		t.Errorf("entry = %+v, want host count 1 and a content hash", entries[0])
	}
}

func TestRunsListingAndFetch(t *testing.T) {
	srv, _, dir := newTestServer(t, "")

	r, err := report.New(dir, "test")
	if err != nil {
		t.Fatal(err)
	}
	e := risk.NewEngine(nil)
	batch := []risk.Assessment{e.AssessExposure("10.0.0.1", []int{3389, 445}, nil)}
	if _, err := r.GenerateReports(batch, risk.GenerateExecutiveSummary(batch)); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("runs status = %d, want 200", rec.Code)
	}

	var runs []runEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runs[0].ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("run fetch status = %d, want 200", rec.Code)
	}

	var payload report.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Assessments) != 1 || payload.Assessments[0].TrueRisk != risk.Critical {
		t.Errorf("payload assessments = %+v, want one CRITICAL host", payload.Assessments)
	}
}

func TestRunFetchRejectsPathTraversal(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/..%2f..%2fetc%2fpasswd", nil)
	srv.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Error("traversal path returned 200, want rejection")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/baselines", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST baselines status = %d, want 405", rec.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	dir := t.TempDir()
	store, err := baseline.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(Config{
		ResultsDir: dir,
		Store:      store,
		RateLimit:  1,
		RateBurst:  1,
	})

	limited := false
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "198.51.100.1:50000"
		srv.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("burst of requests never hit the rate limit")
	}
}
