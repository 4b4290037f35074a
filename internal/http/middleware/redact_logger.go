// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies, and scrubs request metadata before emitting:
//   - the webhook secret carried as a path segment (/webhooks/{token}/...)
//   - sensitive headers (Authorization, Cookie, Set-Cookie, X-Webhook-Token,
//     plus any configured)
//   - UUIDs and email addresses in query strings and header values
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxQueryLogLength = 2048

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-8][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Matches the secret segment of webhook URLs that did not hit a route.
	webhookTokenRE = regexp.MustCompile(`(/webhooks/)[^/]+`)
)

// RedactOptions configures extra scrubbing for RedactingLogger.
//
// MaskHeaders names headers whose values are replaced with "[REDACTED]".
// Matching is case-insensitive and merged with the built-in set.
type RedactOptions struct {
	MaskHeaders []string
}

// redact scrubs identifiers from a free-form value. UUIDs go first so the
// email pattern never sees their segments.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

// safePath returns the matched route pattern, or the raw path with any
// webhook token masked when no route matched.
func safePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return redact(webhookTokenRE.ReplaceAllString(c.Request.URL.Path, "${1}[REDACTED]"))
}

// RedactingLogger attaches a request-scoped logger (see LoggerFrom) and
// writes one access line per request: INFO, WARN for 4xx, ERROR for 5xx or
// when handlers recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization":   {},
		"cookie":          {},
		"set-cookie":      {},
		"x-webhook-token": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := safePath(c)

		reqLog := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &reqLog)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}
		query := truncate(redact(c.Request.URL.RawQuery), maxQueryLogLength)

		c.Next()

		status := c.Writer.Status()
		ev := reqLog.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = reqLog.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = reqLog.Warn()
		}
		ev.
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
