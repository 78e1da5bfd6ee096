package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/referral-service/internal/auth"
	"github.com/Dan9191/referral-service/internal/config"
	"github.com/Dan9191/referral-service/internal/metrics"
	"github.com/Dan9191/referral-service/internal/middleware"
	"github.com/Dan9191/referral-service/internal/models"
	"github.com/Dan9191/referral-service/internal/repository"
	"github.com/Dan9191/referral-service/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminEmail = "admin@example.com"

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tokens := auth.NewTokenService("test-secret", time.Hour)
	m := metrics.New()
	svc := service.NewService(repository.NewMemoryRepository(), auth.NewPasswordHasher(bcrypt.MinCost), tokens, logger, service.WithMetrics(m))
	cfg := &config.Config{AdminEmails: []string{adminEmail}}

	return NewRouter(NewHandler(svc, logger), RouterConfig{
		Auth:    middleware.AuthMiddleware(tokens, logger, m),
		IsAdmin: cfg.IsAdmin,
		Metrics: m,
		Log:     logger,
	})
}

func do(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func signup(t *testing.T, r http.Handler, email, code string) models.User {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/api/signup", "", credentialsRequest{Email: email, Password: "password", ReferralCode: code})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	return user
}

func login(t *testing.T, r http.Handler, email string) string {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/api/login", "", credentialsRequest{Email: email, Password: "password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func TestSignupResponseOmitsPasswordHash(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/signup", "", credentialsRequest{Email: "alice@example.com", Password: "password"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "password_hash")
	assert.NotContains(t, raw, "PasswordHash")
	assert.NotContains(t, rec.Body.String(), "$2a$")
	assert.Nil(t, raw["referrer_id"])
	assert.Equal(t, false, raw["profile_completed"])
	assert.Len(t, raw["referral_code"], 8)
}

func TestSignupErrors(t *testing.T) {
	r := newTestRouter(t)
	signup(t, r, "alice@example.com", "")

	rec := do(t, r, http.MethodPost, "/api/signup", "", credentialsRequest{Email: "alice@example.com", Password: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/signup", "", credentialsRequest{Email: "bob@example.com", Password: "x", ReferralCode: "NOPE0000"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid referral code"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupRejectsOversizedBody(t *testing.T) {
	r := newTestRouter(t)

	body := `{"email":"alice@example.com","password":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFailureIsUniform(t *testing.T) {
	r := newTestRouter(t)
	signup(t, r, "alice@example.com", "")

	wrong := do(t, r, http.MethodPost, "/api/login", "", credentialsRequest{Email: "alice@example.com", Password: "nope"})
	unknown := do(t, r, http.MethodPost, "/api/login", "", credentialsRequest{Email: "ghost@example.com", Password: "password"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	for _, tc := range []struct{ method, path, token string }{
		{http.MethodPut, "/api/profile/complete", ""},
		{http.MethodGet, "/api/referrals", ""},
		{http.MethodGet, "/api/referrals", "garbage"},
	} {
		rec := do(t, r, tc.method, tc.path, tc.token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestReferralFlow(t *testing.T) {
	r := newTestRouter(t)
	alice := signup(t, r, "alice@example.com", "")
	bob := signup(t, r, "bob@example.com", alice.ReferralCode)
	signup(t, r, "carol@example.com", alice.ReferralCode)

	require.NotNil(t, bob.ReferrerID)
	assert.Equal(t, alice.ID, *bob.ReferrerID)

	bobToken := login(t, r, "bob@example.com")
	for i := 0; i < 2; i++ {
		rec := do(t, r, http.MethodPut, "/api/profile/complete", bobToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var user models.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
		assert.True(t, user.ProfileCompleted)
	}

	rec := do(t, r, http.MethodGet, "/api/referrals", login(t, r, "alice@example.com"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var referrals []models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &referrals))
	require.Len(t, referrals, 2)
	assert.Equal(t, "bob@example.com", referrals[0].Email)
	assert.True(t, referrals[0].ProfileCompleted)
	assert.False(t, referrals[1].ProfileCompleted)

	rec = do(t, r, http.MethodGet, "/api/referrals", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStaleSubjectIsNotFound(t *testing.T) {
	r := newTestRouter(t)
	token, err := auth.NewTokenService("test-secret", time.Hour).Issue("ghost@example.com")
	require.NoError(t, err)

	rec := do(t, r, http.MethodGet, "/api/referrals", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReferralReport(t *testing.T) {
	r := newTestRouter(t)
	signup(t, r, adminEmail, "")
	a := signup(t, r, "a@example.com", "")
	signup(t, r, "b@example.com", a.ReferralCode)
	do(t, r, http.MethodPut, "/api/profile/complete", login(t, r, "b@example.com"), nil)

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/api/referral-report", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodGet, "/api/referral-report", login(t, r, "a@example.com"), nil).Code)

	adminToken := login(t, r, adminEmail)
	rec := do(t, r, http.MethodGet, "/api/referral-report", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=referral_report.csv", rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "User ID,Email,Referral Code,Referrer ID,Profile Completed,Successful Referrals", lines[0])
	assert.True(t, strings.HasSuffix(lines[2], ",N/A,false,1"), lines[2])
	assert.True(t, strings.HasSuffix(lines[3], ",true,0"), lines[3])

	rec = do(t, r, http.MethodGet, "/api/referral-report?format=xml", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<referralReport")

	rec = do(t, r, http.MethodGet, "/api/referral-report?format=pdf", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEmailCaseVariant(t *testing.T) {
	r := newTestRouter(t)
	admin := signup(t, r, adminEmail, "")

	rec := do(t, r, http.MethodPost, "/api/signup", "", credentialsRequest{Email: "ADMIN@example.com", Password: "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// the variant logs into the one admin account
	token := login(t, r, "ADMIN@Example.com")
	rec = do(t, r, http.MethodGet, "/api/referrals", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/referral-report", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], strconv.FormatInt(admin.ID, 10)+","+adminEmail+","), lines[1])
}

func TestRouterWithoutAuthMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := service.NewService(repository.NewMemoryRepository(), auth.NewPasswordHasher(bcrypt.MinCost), auth.NewTokenService("test-secret", time.Hour), logger)

	var r *mux.Router
	require.NotPanics(t, func() {
		r = NewRouter(NewHandler(svc, logger), RouterConfig{IsAdmin: func(string) bool { return true }, Log: logger})
	})

	signup(t, r, "alice@example.com", "")
	token := login(t, r, "alice@example.com")
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/api/referrals", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/api/referral-report", token, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	signup(t, r, "alice@example.com", "")

	rec := do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `referral_users_signups_total{referred="false",result="success"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/api/signup"`)
}
