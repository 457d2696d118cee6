package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/Juls95/Trinit-AI/internal/idempotency"
	"github.com/Juls95/Trinit-AI/internal/mail"
	"github.com/Juls95/Trinit-AI/internal/quota"
	"github.com/Juls95/Trinit-AI/internal/ratelimit"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/testutil"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	util.SetupValidator()

	cfg := &config.Config{}
	cfg.Auth.Secret = testSecret
	cfg.Security.EncryptionKey = "router-test-key"

	db := testutil.NewDB(t)
	st := store.New(db)
	log := zap.NewNop()

	mem := ratelimit.NewMemoryStore(ratelimit.SystemClock, time.Minute, time.Minute)
	t.Cleanup(mem.Stop)
	events := idempotency.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = events.Close() })

	return SetupRouter(Deps{
		Config:      cfg,
		DB:          db,
		Store:       st,
		Logger:      log,
		Quota:       quota.New(st, 5, time.UTC),
		ChatLimiter: ratelimit.NewLimiter(mem, time.Minute, 1, "chat:"),
		Mailer:      mail.LogSender{AppURL: "http://localhost:3000", Logger: log},
		Events:      events,
	})
}

func token(t *testing.T, sub, email string) string {
	t.Helper()
	tok, err := util.GenerateToken(testSecret, "", util.Claims{
		Email:            email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func call(r *gin.Engine, method, target, tok, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicAndProtected(t *testing.T) {
	r := newTestRouter(t)

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/health", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/dashboard", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/dashboard", "garbage", "").Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/api/entries", "", "").Code)

	tok := token(t, "user_ana", "ana@x.com")
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/dashboard", tok, "").Code)
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/export/csv?token="+tok, "", "").Code)

	// 未配置 Stripe
	w := call(r, http.MethodPost, "/api/billing/checkout", tok, `{"plan":"monthly"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_AuditsWrites(t *testing.T) {
	r := newTestRouter(t)
	tok := token(t, "user_ana", "ana@x.com")

	w := call(r, http.MethodPost, "/api/transactions", tok,
		`{"description":"Tacos","amount":120,"type":"EXPENSE","category":"Food"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(r, http.MethodGet, "/api/logs/transactions", tok, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Total int `json:"total"`
			Items []struct {
				Operation   string `json:"operation"`
				Description string `json:"description"`
				Status      int    `json:"status"`
			} `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "create", resp.Data.Items[0].Operation)
	assert.Equal(t, "Tacos", resp.Data.Items[0].Description)
	assert.Equal(t, http.StatusCreated, resp.Data.Items[0].Status)
}

func TestRouter_ChatIsRateLimitedBeforeHandler(t *testing.T) {
	r := newTestRouter(t)
	tok := token(t, "user_ana", "ana@x.com")

	// 免费用户：第一次 403，第二次被限流
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPost, "/api/chat", tok, `{"message":"hola"}`).Code)
	w := call(r, http.MethodPost, "/api/chat", tok, `{"message":"hola"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), ratelimit.LimitedMessage)

	other := token(t, "user_ben", "ben@x.com")
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPost, "/api/chat", other, `{"message":"hola"}`).Code)
}
