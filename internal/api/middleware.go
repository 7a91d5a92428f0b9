package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelbatch/internal/auth"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const userIDKey = "user_id"

func (s *Server) withRequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		event := s.logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = s.logger.Error()
		case status >= http.StatusBadRequest:
			event = s.logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_id", userID(c)).
			Msg("request")
	}
}

func (s *Server) withTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := s.tracer.Start(c.Request.Context(), c.Request.Method+" "+routeLabel(c),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", routeLabel(c)),
				attribute.String("url.path", c.Request.URL.Path),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// withAuth resolves the caller from a bearer token. Anonymous requests pass
// through unless authentication is required.
func (s *Server) withAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.jwtSecret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			if s.authRequired {
				writeError(c, http.StatusUnauthorized, "authorization header required")
				return
			}
			c.Next()
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			writeError(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}
		claims, err := auth.ParseToken(s.jwtSecret, token)
		if err != nil {
			writeError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// allow charges cost tokens to the caller. It reports false after writing
// the rejection response.
func (s *Server) allow(c *gin.Context, cost int) bool {
	if s.rateLimiter == nil {
		return true
	}

	subject := userID(c)
	if subject == "" {
		subject = c.ClientIP()
	}

	decision, err := s.rateLimiter.AllowN(c.Request.Context(), subject, cost)
	if err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("rate limiter unavailable")
		return true
	}

	c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	if decision.Allowed {
		return true
	}

	s.metrics.rateLimitRejected.WithLabelValues(routeLabel(c)).Inc()
	retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	writeError(c, http.StatusTooManyRequests, fmt.Sprintf("rate limit exceeded, retry in %ds", retryAfter))
	return false
}

var errBadQuery = errors.New("invalid query parameter")

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadQuery, name)
	}
	return v, nil
}
