package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"fieldcrew/backend/config"
	"fieldcrew/backend/pkg/jwt"
	applogger "fieldcrew/backend/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWT() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:      "test-secret-key-for-unit-testing-2026",
		Issuer:         "fieldcrew-auth",
		AccessTokenTTL: 15 * time.Minute,
	})
}

func do(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ── JWTAuth / RoleAuth ──

func TestJWTAuth(t *testing.T) {
	mgr := newTestJWT()
	r := gin.New()
	r.GET("/me", JWTAuth(mgr), RoleAuth("admin", "manager"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsername)+"/"+c.GetString(ContextRole))
	})

	managerToken, err := mgr.GenerateAccessToken("mgr", "manager")
	if err != nil {
		t.Fatalf("GenerateAccessToken 失败: %v", err)
	}
	techToken, err := mgr.GenerateAccessToken("alice", "technician")
	if err != nil {
		t.Fatalf("GenerateAccessToken 失败: %v", err)
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"缺少认证头", "", http.StatusUnauthorized},
		{"格式无效", "Token " + managerToken, http.StatusUnauthorized},
		{"签名无效", "Bearer " + managerToken + "x", http.StatusUnauthorized},
		{"角色不足", "Bearer " + techToken, http.StatusForbidden},
		{"通过", "Bearer " + managerToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := map[string]string{}
			if tc.header != "" {
				header["Authorization"] = tc.header
			}
			w := do(r, http.MethodGet, "/me", header)
			if w.Code != tc.status {
				t.Errorf("期望状态码 %d，实际=%d", tc.status, w.Code)
			}
		})
	}

	w := do(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + managerToken})
	if w.Body.String() != "mgr/manager" {
		t.Errorf("上下文注入不正确: %s", w.Body.String())
	}
}

func TestRoleAuth_Unauthenticated(t *testing.T) {
	r := gin.New()
	r.GET("/x", RoleAuth("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := do(r, http.MethodGet, "/x", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("无角色应返回 401，实际=%d", w.Code)
	}
}

// ── RateLimit ──

type fakeLimiter struct {
	counts map[string]int
	err    error
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.counts[key]++
	return f.counts[key] <= limit, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int{}}
	r := gin.New()
	r.POST("/submit", func(c *gin.Context) {
		c.Set(ContextUsername, c.GetHeader("X-User"))
	}, RateLimit(limiter, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	alice := map[string]string{"X-User": "alice"}
	for i := 0; i < 2; i++ {
		if w := do(r, http.MethodPost, "/submit", alice); w.Code != http.StatusOK {
			t.Fatalf("第 %d 次请求应放行，实际=%d", i+1, w.Code)
		}
	}
	if w := do(r, http.MethodPost, "/submit", alice); w.Code != http.StatusTooManyRequests {
		t.Errorf("超限应返回 429，实际=%d", w.Code)
	}
	if w := do(r, http.MethodPost, "/submit", map[string]string{"X-User": "bob"}); w.Code != http.StatusOK {
		t.Errorf("不同用户独立计数，实际=%d", w.Code)
	}
	if _, ok := limiter.counts["alice:/submit"]; !ok {
		t.Errorf("计数 key 应为 用户名:路由，实际=%v", limiter.counts)
	}
}

func TestRateLimit_Degrades(t *testing.T) {
	cases := []struct {
		name    string
		limiter RateLimiter
	}{
		{"未配置", nil},
		{"Redis 出错", &fakeLimiter{err: errors.New("连接断开")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/submit", RateLimit(tc.limiter, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
			for i := 0; i < 3; i++ {
				if w := do(r, http.MethodPost, "/submit", nil); w.Code != http.StatusOK {
					t.Errorf("降级时应放行，实际=%d", w.Code)
				}
			}
		})
	}
}

// ── RequestID / Logger / Recovery ──

func TestRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestID(zap.New(core)))
	r.GET("/x", func(c *gin.Context) {
		applogger.FromContext(c.Request.Context(), zap.NewNop()).Info("handled")
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	w := do(r, http.MethodGet, "/x", map[string]string{"X-Request-ID": "rid-1"})
	if got := w.Header().Get("X-Request-ID"); got != "rid-1" {
		t.Errorf("应沿用传入的 Request-ID，实际=%s", got)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "rid-1" {
		t.Errorf("请求 logger 应携带 request_id: %+v", entries)
	}

	w = do(r, http.MethodGet, "/x", map[string]string{"X-Request-ID": strings.Repeat("a", requestIDMaxLen+1)})
	if got := w.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("超长 Request-ID 应被替换为 UUID，实际=%s", got)
	}
}

func TestLoggerAndRecovery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	r := gin.New()
	r.Use(RequestID(logger), Recovery(logger), Logger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	if w := do(r, http.MethodGet, "/ok", map[string]string{"X-Request-ID": "rid-ok"}); w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d", w.Code)
	}
	done := logs.FilterMessage("请求完成").All()
	if len(done) != 1 || done[0].ContextMap()["request_id"] != "rid-ok" {
		t.Errorf("请求日志应携带 request_id: %+v", done)
	}

	if w := do(r, http.MethodGet, "/boom", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("panic 应返回 500，实际=%d", w.Code)
	}
	if n := logs.FilterMessage("请求处理 panic").Len(); n != 1 {
		t.Errorf("panic 应记录一次，实际=%d", n)
	}
}

// ── CORS / SecurityHeaders / BodyLimit ──

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://board.example.com/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodGet, "/x", map[string]string{"Origin": "https://board.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://board.example.com" {
		t.Errorf("允许的来源应回显，实际=%q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Content-Disposition") {
		t.Errorf("应暴露 Content-Disposition，实际=%q", got)
	}

	w = do(r, http.MethodGet, "/x", map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("未允许的来源不应回显，实际=%q", got)
	}

	if w := do(r, http.MethodOptions, "/x", nil); w.Code != http.StatusNoContent {
		t.Errorf("预检请求应返回 204，实际=%d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodGet, "/x", nil)
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("期望 Cache-Control=no-store，实际=%q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("期望 nosniff，实际=%q", got)
	}
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/x", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	small := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":1}`))
	small.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, small)
	if w.Code != http.StatusOK {
		t.Errorf("小请求体应放行，实际=%d", w.Code)
	}

	big := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	big.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("超限请求体应返回 413，实际=%d", w.Code)
	}

	// 未声明长度时由 MaxBytesReader 截断
	chunked := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	chunked.ContentLength = -1
	chunked.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, chunked)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("未声明长度的超限请求体应返回 413，实际=%d", w.Code)
	}
}
