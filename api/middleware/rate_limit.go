package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/api/responses"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimitPolicy caps requests per fixed window. A zero limit disables that
// counter; a zero window disables the policy.
type RateLimitPolicy struct {
	Name    string
	Window  time.Duration
	PerIP   int
	PerUser int
}

func (p RateLimitPolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerUser > 0)
}

func (p RateLimitPolicy) counterKey(scope, subject string) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "api"
	}
	return "rl:" + scope + ":" + name + ":" + subject
}

// RateLimit counts requests per client IP and, behind Auth, per user. The IP
// is read from RemoteAddr, so proxies must be resolved upstream by
// chi's RealIP.
func RateLimit(policy RateLimitPolicy, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || !policy.active() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, c := range [...]struct {
				scope, subject string
				limit          int
			}{
				{"ip", remoteHost(r.RemoteAddr), policy.PerIP},
				{"user", UserIDFromContext(ctx), policy.PerUser},
			} {
				if c.limit <= 0 || c.subject == "" {
					continue
				}
				n, err := store.IncrWithTTL(ctx, policy.counterKey(c.scope, c.subject), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if n > int64(c.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy": policy.Name,
							"scope":  c.scope,
							"count":  n,
							"limit":  c.limit,
						}), "rate limit exceeded")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Round(time.Second).Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSpace(addr)
}
