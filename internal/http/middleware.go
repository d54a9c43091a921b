package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/folio/internal/auth"
	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

// tierMiddleware resolves the caller's tier once per request.
func (s *Server) tierMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			tier, err := s.deps.Tiers.Resolve(ctx, auth.UserID(c))
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(subscription.WithTier(ctx, tier)))
			return next(c)
		}
	}
}

// ipLimiters hands out one token bucket per client IP. The set is reset
// hourly to bound memory.
type ipLimiters struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

func newIPLimiters(perSecond float64, burst int) *ipLimiters {
	return &ipLimiters{
		limit:       rate.Limit(perSecond),
		burst:       burst,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) > time.Hour {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = time.Now()
	}
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	return lim
}

func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !s.limiters.get(ip).Allow() {
				s.logger.Warn(c.Request().Context(), "rate limit exceeded", zap.String("ip", ip))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
