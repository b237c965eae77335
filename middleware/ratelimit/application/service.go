package application

import (
	"time"

	"ephemeral-core/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Limiter domain.Limiter
	// MinRetryAfter é o piso do retry-after devolvido em bloqueios (padrão 1s).
	MinRetryAfter time.Duration
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true}
	}
	if s.MinRetryAfter <= 0 {
		s.MinRetryAfter = 1 * time.Second
	}

	dec := s.Limiter.Admit(key)
	if !dec.Allowed && dec.RetryAfter < s.MinRetryAfter {
		dec.RetryAfter = s.MinRetryAfter
	}
	return dec
}

// Remaining consulta o saldo sem consumir; sem limiter configurado é ilimitado (-1).
func (s Service) Remaining(key domain.Key) int {
	if s.Limiter == nil {
		return -1
	}
	return s.Limiter.Remaining(key)
}
