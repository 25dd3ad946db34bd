package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/requestcontext"
)

// Middleware enforces policies against a Store. A failing store lets the
// request through.
type Middleware struct {
	store    Store
	logger   *slog.Logger
	disabled bool
	rejected *prometheus.CounterVec
	trusted  []netip.Prefix
}

type Option func(*Middleware)

// WithDisabled turns every limiter into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithTrustedProxies lists the proxies whose X-Forwarded-For entries are
// believed. Without it the limiter keys on the TCP peer address only.
func WithTrustedProxies(proxies []netip.Prefix) Option {
	return func(m *Middleware) {
		m.trusted = proxies
	}
}

// ParseTrustedProxies accepts IP addresses and CIDR prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Middleware) {
		m.rejected = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_ratelimit_rejected_total",
			Help: "Requests rejected by a rate limit, by limiter",
		}, []string{"limiter"})
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{store: store, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// ByIP limits each client IP to p within the named limiter.
func (m *Middleware) ByIP(name string, p Policy) func(http.Handler) http.Handler {
	return m.limit(name, p, func(r *http.Request) string {
		return "ip:" + m.clientAddr(r)
	})
}

// BySubject limits each authenticated subject to p. Requests without a
// subject in context are keyed by IP.
func (m *Middleware) BySubject(name string, p Policy) func(http.Handler) http.Handler {
	return m.limit(name, p, func(r *http.Request) string {
		if subjectID := requestcontext.SubjectID(r.Context()); !subjectID.IsNil() {
			return "subject:" + subjectID.String()
		}
		return "ip:" + m.clientAddr(r)
	})
}

// clientAddr is the address a budget is charged to. X-Forwarded-For is read
// right to left and only while each hop vouching for the next is trusted.
func (m *Middleware) clientAddr(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if len(m.trusted) == 0 || !m.isTrusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !m.isTrusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func (m *Middleware) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (m *Middleware) limit(name string, p Policy, keyOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, err := m.store.Allow(ctx, name+":"+keyOf(r), p.Limit, p.Window)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"request_id", requestcontext.RequestID(ctx),
					"limiter", name,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				if m.rejected != nil {
					m.rejected.WithLabelValues(name).Inc()
				}
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"limiter", name,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
					Error:            "rate_limit_exceeded",
					ErrorDescription: "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
