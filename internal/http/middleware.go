package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/embedlife/internal/logging"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// tenantMiddleware validates X-Tenant-ID and stores it in the request
// context for the lower layers to resolve.
func tenantMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenant := &vectorstore.TenantInfo{TenantID: c.Request().Header.Get(HeaderTenantID)}
		if err := tenant.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req := c.Request()
		ctx := vectorstore.ContextWithTenant(req.Context(), tenant)
		c.SetRequest(req.WithContext(logging.WithTenant(ctx, tenant.TenantID)))
		return next(c)
	}
}

// tenantOf returns the tenant stored by tenantMiddleware.
func tenantOf(c echo.Context) string {
	t, err := vectorstore.TenantFromContext(c.Request().Context())
	if err != nil {
		return ""
	}
	return t.TenantID
}

// ipRateLimiter keeps one token bucket per client IP. The map is dropped
// hourly so idle clients do not accumulate.
type ipRateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
	limit       rate.Limit
	burst       int
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst <= 0 {
		burst = 10
	}
	return &ipRateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
		limit:       rate.Limit(rps),
		burst:       burst,
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) > time.Hour {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = time.Now()
	}
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

func (l *ipRateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !l.get(c.RealIP()).Allow() {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}
