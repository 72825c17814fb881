package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gregtusar/basisarb/pkg/arbitrage"
	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
)

type fakeEngine struct {
	status  arbitrage.Status
	resumed int
}

func (f *fakeEngine) Status() arbitrage.Status { return f.status }

func (f *fakeEngine) Positions() []models.PositionSnapshot {
	return []models.PositionSnapshot{{Symbol: "SOLUSDT", State: "OPENING", SellLeg: models.LegSpot}}
}

func (f *fakeEngine) Resume(context.Context) {
	f.resumed++
	f.status.Halted = false
}

type fakeSpreads []models.SpreadObservation

func (f fakeSpreads) Spreads() []models.SpreadObservation { return f }

func newTestServer(engine *fakeEngine, secret string) http.Handler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	spreads := fakeSpreads{models.NewSpreadObservation("SOLUSDT", 100.6, 100, time.Now())}
	return NewServer(engine, spreads, secret, logger, "0").Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReadEndpoints(t *testing.T) {
	engine := &fakeEngine{status: arbitrage.Status{Halted: true, HaltCause: "boom", Positions: 1}}
	h := newTestServer(engine, "")

	tests := []struct {
		path string
		want string
	}{
		{"/api/health", `"status":"healthy"`},
		{"/api/status", `"halt_cause":"boom"`},
		{"/api/positions", `"symbol":"SOLUSDT"`},
		{"/api/spreads", `"symbol":"SOLUSDT"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body %s missing %s", rec.Body.String(), tt.want)
			}
		})
	}

	if rec := do(t, h, http.MethodPost, "/api/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(&fakeEngine{}, ""), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics status %d", rec.Code)
	}
}

func TestResume(t *testing.T) {
	const secret = "operator-secret"
	valid, err := IssueOperatorToken(secret, "ops", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	wrongKey, _ := IssueOperatorToken("other", "ops", time.Minute)
	expired, _ := IssueOperatorToken(secret, "ops", -time.Minute)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops"}).SignedString([]byte(secret))

	for _, tok := range []string{"", "garbage", wrongKey, expired, noExpiry} {
		engine := &fakeEngine{status: arbitrage.Status{Halted: true}}
		rec := do(t, newTestServer(engine, secret), http.MethodPost, "/api/resume", tok)
		if rec.Code != http.StatusUnauthorized || engine.resumed != 0 {
			t.Errorf("token %.12q: status %d resumed %d", tok, rec.Code, engine.resumed)
		}
	}

	engine := &fakeEngine{status: arbitrage.Status{Halted: true}}
	h := newTestServer(engine, secret)
	rec := do(t, h, http.MethodPost, "/api/resume", valid)
	if rec.Code != http.StatusOK || engine.resumed != 1 {
		t.Fatalf("status %d resumed %d", rec.Code, engine.resumed)
	}
	var st arbitrage.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil || st.Halted {
		t.Errorf("status after resume = %+v (%v)", st, err)
	}

	if rec := do(t, h, http.MethodPost, "/api/resume", valid); rec.Code != http.StatusConflict {
		t.Errorf("resume when running = %d, want 409", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/resume", valid); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/resume = %d", rec.Code)
	}
}

func TestResume_OpenWithoutSecret(t *testing.T) {
	engine := &fakeEngine{status: arbitrage.Status{Halted: true}}
	rec := do(t, newTestServer(engine, ""), http.MethodPost, "/api/resume", "")
	if rec.Code != http.StatusOK || engine.resumed != 1 {
		t.Errorf("status %d resumed %d", rec.Code, engine.resumed)
	}
}
