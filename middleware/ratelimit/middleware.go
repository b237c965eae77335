package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"ephemeral-core/internal/auth"
	"ephemeral-core/internal/logging"
	"ephemeral-core/middleware/ratelimit/application"
	"ephemeral-core/middleware/ratelimit/domain"
)

const (
	KindUser = "user"
	KindIP   = "ip"
)

// Identity é a chave de rate limit já resolvida e como ela foi obtida.
type Identity struct {
	Key  domain.Key
	Kind string
}

type KeyFunc func(r *http.Request) Identity

type Options struct {
	Limiter            domain.Limiter
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	TrustXForwardedFor bool
	// Skip devolve true para requests que não passam pelo limite (health, websocket).
	Skip   func(r *http.Request) bool
	Logger *slog.Logger
}

// DefaultKeyFunc usa o principal autenticado quando existe; senão "ip:<addr>".
//
// Com trustXFF os headers de proxy (primeiro hop do X-Forwarded-For, depois
// X-Real-IP) têm prioridade sobre o RemoteAddr.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) Identity {
		if p, ok := auth.FromContext(r.Context()); ok && strings.TrimSpace(p.Name) != "" {
			return Identity{Key: domain.Key(p.Name), Kind: KindUser}
		}
		return Identity{Key: domain.Key("ip:" + clientIP(r, trustXFF)), Kind: KindIP}
	}
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// X-Forwarded-For: cliente, proxy1, proxy2
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); looksLikeIP(ip) {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); looksLikeIP(ip) {
			return ip
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if looksLikeIP(addr) {
		return addr
	}
	return "unknown"
}

// validação grosseira: IPv4 tem '.', IPv6 tem ':'
func looksLikeIP(s string) bool {
	return s != "" && strings.ContainsAny(s, ".:")
}

// SkipPrefixes monta um Options.Skip a partir de prefixos de path.
func SkipPrefixes(prefixes ...string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}

type errorBody struct {
	Status        int    `json:"status"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	RateLimitType string `json:"rateLimitType"`
	Hint          string `json:"hint"`
}

func hintFor(kind string) string {
	if kind == KindUser {
		return "Rate limit por usuario excedido. Aguarde a janela de tempo expirar."
	}
	return "Rate limit por IP excedido. Autentique-se para ter seu proprio limite."
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}
	lg := logging.Or(opts.Logger)

	svc := application.Service{Limiter: opts.Limiter}

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Skip != nil && opts.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			id := opts.KeyFn(r)
			dec := svc.Decide(id.Key)

			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     id.Key,
					KeyKind: id.Kind,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
				if err != nil {
					lg.Debug("ratelimit stats record failed", "err", err)
				}
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
			h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
			h.Set("X-RateLimit-Window", formatSeconds(dec.Window))

			if dec.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			lg.Info("rate limit exceeded",
				"key", string(id.Key),
				"kind", id.Kind,
				"method", r.Method,
				"path", r.URL.Path,
			)

			h.Set("X-RateLimit-Type", id.Kind)
			h.Set("Retry-After", formatSeconds(dec.RetryAfter))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errorBody{
				Status: http.StatusTooManyRequests,
				Error:  "TOO_MANY_REQUESTS",
				Message: fmt.Sprintf("Limite de %d requisicoes por %s segundos excedido. Tente novamente mais tarde.",
					dec.Limit, formatSeconds(dec.Window)),
				RateLimitType: id.Kind,
				Hint:          hintFor(id.Kind),
			})
		})
	}
}
