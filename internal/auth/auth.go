// Package auth extrai o principal autenticado de tokens bearer HS256.
//
// O formato do token não é responsabilidade deste serviço; aqui só se valida
// assinatura/expiração e se coloca o Principal no contexto para o rate limit
// (identidade) e para o broker de tickets (dono + papéis).
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type Principal struct {
	Name  string
	Roles []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type claims struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups,omitempty"`
}

type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type VerifierOption func(*Verifier)

func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = strings.TrimSpace(iss) }
}

func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must have at least 16 characters")
	}
	v := &Verifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify valida o token e devolve o principal (sub + groups).
func (v *Verifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return Principal{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return Principal{Name: c.Subject, Roles: append([]string(nil), c.Groups...)}, nil
}

// Issue assina um token para p. Usado pelo comando `token` da CLI e pelos testes.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := v.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Name,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Groups: p.Roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.Name != ""
}

func bearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Middleware anexa o principal quando há um bearer válido.
// Requests sem token seguem anônimos; token inválido recebe 401.
func Middleware(v *Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearer(r)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Verify(tok)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRoles exige principal autenticado (401) com ao menos um dos papéis (403).
// Sem papéis informados, basta estar autenticado.
func RequireRoles(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if len(roles) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if p.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
