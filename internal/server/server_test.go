package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"prdgen/internal/app"
	"prdgen/internal/usertoken"
	"prdgen/pkg/domain"
	"prdgen/pkg/store"
)

type scriptedGenerator struct {
	response string
	err      error
	calls    int
}

func (g *scriptedGenerator) GenerateText(_ context.Context, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type testEnv struct {
	router   http.Handler
	store    *store.MemoryStore
	gen      *scriptedGenerator
	signKey  *rsa.PrivateKey
	signKid  string
	redis    *miniredis.Miniredis
	rateCfg  int
	verifier *usertoken.Verifier
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	env := &testEnv{rateCfg: rateLimit}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env.signKey = key
	env.signKid = "test-key"

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		eBytes := []byte{1, 0, 1} // 65537
		payload := map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": env.signKid,
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(eBytes),
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(jwks.Close)

	verifier, err := usertoken.NewVerifier(usertoken.Config{JWKSURL: jwks.URL})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	env.verifier = verifier

	env.store = store.NewMemoryStore()
	env.gen = &scriptedGenerator{response: modelResponse(t)}
	application, err := app.New(app.Config{Store: env.store, Generator: env.gen})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	env.redis = miniredis.RunT(t)
	srv, err := New(Config{
		App:                        application,
		TokenVerifier:              verifier,
		RedisAddr:                  env.redis.Addr(),
		GenerateRateLimitPerMinute: rateLimit,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.router = srv.Router()
	return env
}

func (e *testEnv) token(t *testing.T, userID, email string) string {
	t.Helper()
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss":   "prdgen-auth",
		"aud":   "prdgen-api",
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = e.signKid
	signed, err := token.SignedString(e.signKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func modelResponse(t *testing.T) string {
	t.Helper()
	doc := domain.PRDDocument{
		ProductRequirements: domain.ProductRequirements{
			Overview:       "A concise overview.",
			Goals:          []string{"goal"},
			SuccessMetrics: []string{"metric"},
		},
		UserStories: []domain.UserStory{{Role: "user", Action: "act", Benefit: "benefit", AcceptanceCriteria: []string{"ok"}}},
		Risks:       []domain.Risk{{Category: "Technical", Description: "d", Likelihood: "Low", Impact: "High", Mitigation: "m"}},
		MVPScope:    domain.MVPScope{InScope: []string{"a"}, OutOfScope: []string{"b"}, Timeline: "6 weeks", Assumptions: []string{"x"}},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal doc: %v", err)
	}
	return string(raw)
}

func decodeGenerateResponse(t *testing.T, rec *httptest.ResponseRecorder) generateResponse {
	t.Helper()
	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t, 10)
	for _, path := range []string{"/api/usage", "/api/generations", "/api/generations/abc"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: status = %d, want 401", path, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/api/usage", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestGenerateSuccessEnvelope(t *testing.T) {
	env := newTestEnv(t, 10)
	token := env.token(t, "user-1", "u@example.com")

	rec := env.do(t, http.MethodPost, "/api/generations", token, domain.GenerationInput{
		Idea:         "A time-tracking app for freelancers",
		TargetMarket: "solo freelancers",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeGenerateResponse(t, rec)
	if !resp.Success || resp.Data == nil {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
	if resp.Data.Status != domain.StatusCompleted {
		t.Fatalf("record status = %s", resp.Data.Status)
	}
	if resp.Data.UserID != "user-1" {
		t.Fatalf("record owner = %s", resp.Data.UserID)
	}
}

func TestGenerateFailureStaysHTTP200(t *testing.T) {
	env := newTestEnv(t, 10)
	env.gen.response = "no json here"
	token := env.token(t, "user-1", "")

	rec := env.do(t, http.MethodPost, "/api/generations", token, domain.GenerationInput{Idea: "i", TargetMarket: "m"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with in-band error", rec.Code)
	}
	resp := decodeGenerateResponse(t, rec)
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected failure envelope, got %s", rec.Body.String())
	}
	if strings.Contains(resp.Error, "no json here") {
		t.Fatalf("raw model output leaked: %s", resp.Error)
	}
}

func TestGenerateQuotaExceededEnvelope(t *testing.T) {
	env := newTestEnv(t, 10)
	if err := env.store.CreateUsageAccount(domain.UsageAccount{
		UserID:               "user-1",
		Plan:                 domain.PlanFree,
		GenerationsThisMonth: 5,
		MonthResetDate:       time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	token := env.token(t, "user-1", "")

	rec := env.do(t, http.MethodPost, "/api/generations", token, domain.GenerationInput{Idea: "i", TargetMarket: "m"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeGenerateResponse(t, rec)
	if resp.Success || !strings.Contains(resp.Error, "limit") {
		t.Fatalf("expected quota error envelope, got %s", rec.Body.String())
	}
	if env.gen.calls != 0 {
		t.Fatalf("model invoked despite exhausted quota")
	}
}

func TestGenerateRateLimited(t *testing.T) {
	env := newTestEnv(t, 1)
	token := env.token(t, "user-1", "")
	input := domain.GenerationInput{Idea: "i", TargetMarket: "m"}

	if rec := env.do(t, http.MethodPost, "/api/generations", token, input); rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/generations", token, input); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}

	// A different user has its own window.
	other := env.token(t, "user-2", "")
	if rec := env.do(t, http.MethodPost, "/api/generations", other, input); rec.Code != http.StatusOK {
		t.Fatalf("other user: status = %d", rec.Code)
	}
}

func TestGenerateRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, 10)
	token := env.token(t, "user-1", "")
	req := httptest.NewRequest(http.MethodPost, "/api/generations", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUsageEndpoint(t *testing.T) {
	env := newTestEnv(t, 10)
	token := env.token(t, "user-1", "u@example.com")

	rec := env.do(t, http.MethodGet, "/api/usage", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp usageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if resp.Plan != domain.PlanFree || resp.Used != 0 || resp.Limit != 5 {
		t.Fatalf("unexpected usage: %+v", resp)
	}
}

func TestListAndGetGenerations(t *testing.T) {
	env := newTestEnv(t, 10)
	token := env.token(t, "user-1", "")

	rec := env.do(t, http.MethodPost, "/api/generations", token, domain.GenerationInput{Idea: "i", TargetMarket: "m"})
	created := decodeGenerateResponse(t, rec)
	if created.Data == nil {
		t.Fatalf("generate failed: %s", rec.Body.String())
	}

	listRec := env.do(t, http.MethodGet, "/api/generations", token, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var records []domain.GenerationRecord
	if err := json.Unmarshal(listRec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(records) != 1 || records[0].ID != created.Data.ID {
		t.Fatalf("unexpected list: %+v", records)
	}

	getRec := env.do(t, http.MethodGet, "/api/generations/"+created.Data.ID, token, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d", getRec.Code)
	}

	if missing := env.do(t, http.MethodGet, "/api/generations/nope", token, nil); missing.Code != http.StatusNotFound {
		t.Fatalf("missing record status = %d, want 404", missing.Code)
	}

	// Another user cannot read the record.
	stranger := env.token(t, "user-2", "")
	if other := env.do(t, http.MethodGet, "/api/generations/"+created.Data.ID, stranger, nil); other.Code != http.StatusForbidden {
		t.Fatalf("stranger status = %d, want 403", other.Code)
	}
}

func TestExportReturnsMarkdownAttachment(t *testing.T) {
	env := newTestEnv(t, 10)
	token := env.token(t, "user-1", "")

	rec := env.do(t, http.MethodPost, "/api/generations", token, domain.GenerationInput{Idea: "i", TargetMarket: "m"})
	created := decodeGenerateResponse(t, rec)
	if created.Data == nil {
		t.Fatalf("generate failed: %s", rec.Body.String())
	}

	exp := env.do(t, http.MethodGet, "/api/generations/"+created.Data.ID+"/export", token, nil)
	if exp.Code != http.StatusOK {
		t.Fatalf("export status = %d", exp.Code)
	}
	if got := exp.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/markdown") {
		t.Fatalf("export content type = %q", got)
	}
	if !strings.HasPrefix(exp.Body.String(), "# Product Requirements Document") {
		t.Fatalf("unexpected export body: %q", exp.Body.String()[:40])
	}
}

func TestGenerateLimiterFailsClosedWhenRedisDown(t *testing.T) {
	env := newTestEnv(t, 10)
	env.redis.Close()
	token := env.token(t, "user-1", "")

	rec := env.do(t, http.MethodPost, "/api/generations", token, domain.GenerationInput{Idea: "i", TargetMarket: "m"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 when limiter backend is down", rec.Code)
	}
	if env.gen.calls != 0 {
		t.Fatalf("model invoked while limiter backend down")
	}
}
