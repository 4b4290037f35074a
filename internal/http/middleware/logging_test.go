package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }

func TestRequestID_Header(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rooms/:id/participants/count", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	cases := []struct {
		name, header, in string
		wantEcho         bool
	}{
		{"generated when absent", "", "", false},
		{"lowercase header propagates", strings.ToLower(requestIDHeader), "abc-123", true},
		{"canonical header propagates", requestIDHeader, "Z-REQ-123", true},
		{"oversized header replaced", requestIDHeader, strings.Repeat("x", maxRequestIDLength+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rooms/r1/participants/count", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got != w.Body.String() {
				t.Fatalf("header %q and context %q differ", got, w.Body.String())
			}
			if tc.wantEcho && got != tc.in {
				t.Fatalf("request id = %q; want %q", got, tc.in)
			}
			if !tc.wantEcho && len(got) != 36 {
				t.Fatalf("expected a generated uuid, got %q", got)
			}
		})
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.POST("/events/:id/broadcast/reconcile", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events/ev1/broadcast/reconcile", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-panic" {
		t.Fatalf("unexpected body: %v", body)
	}
	out := buf.String()
	if !strings.Contains(out, `"message":"panic recovered"`) || !strings.Contains(out, `"panic":"kaboom"`) {
		t.Fatalf("expected panic log, got:\n%s", out)
	}
}

func TestRecovery_PanicAfterWriteKeepsBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}), Recovery())
	r.GET("/export-jobs", func(c *gin.Context) {
		c.String(http.StatusOK, "partial-body")
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export-jobs", nil))

	if w.Body.String() != "partial-body" {
		t.Fatalf("body rewritten after panic: %q", w.Body.String())
	}
	if !strings.Contains(buf.String(), "late kaboom") {
		t.Fatalf("expected panic log, got:\n%s", buf.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("falls back to global", func(t *testing.T) {
		buf := withCapturedLogger(t)
		r := gin.New()
		r.Use(RequestID())
		r.GET("/x", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("fallback")
			c.Status(http.StatusOK)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
		out := buf.String()
		if !strings.Contains(out, `"message":"fallback"`) || strings.Contains(out, `"request_id"`) {
			t.Fatalf("unexpected fallback log: %s", out)
		}
	})

	t.Run("request scoped", func(t *testing.T) {
		buf := withCapturedLogger(t)
		r := gin.New()
		r.Use(RequestID(), RedactingLogger(RedactOptions{}))
		r.GET("/x", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("scoped")
			c.Status(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(requestIDHeader, "rid-7")
		r.ServeHTTP(httptest.NewRecorder(), req)
		if !strings.Contains(buf.String(), `"request_id":"rid-7","method":"GET"`) {
			t.Fatalf("scoped logger missing request fields: %s", buf.String())
		}
	})
}

func TestTruncate(t *testing.T) {
	for _, tc := range []struct {
		in    string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
	} {
		if got := truncate(tc.in, tc.limit); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q; want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}
