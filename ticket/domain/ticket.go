package domain

import (
	"errors"
	"time"
)

// State é o ciclo de vida de um ticket. Só existem duas transições:
// active -> consumed (redeem) e active -> expired (TTL).
type State int32

const (
	StateActive State = iota
	StateConsumed
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateConsumed:
		return "consumed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Ticket é uma credencial de uso único e vida curta que liga uma request
// autenticada a uma conexão de push ainda não autenticada.
type Ticket struct {
	ID           string
	Identity     string
	Capabilities []string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// ExpiredAt diz se o ticket já passou do prazo em `now` (expiresAt é exclusivo).
func (t Ticket) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Stats são os contadores expostos para observabilidade.
type Stats struct {
	Active   int
	Issued   int64
	Redeemed int64
	Expired  int64
	Rejected int64
	TTL      time.Duration
}

// ErrCredentialRejected cobre ticket ausente, desconhecido, expirado ou já usado.
// Só se recupera emitindo um ticket novo.
var ErrCredentialRejected = errors.New("ticket invalido, expirado ou ja utilizado")

// Broker emite e consome tickets.
type Broker interface {
	Issue(identity string, capabilities []string) Ticket
	Redeem(id string) (Ticket, bool)
	Peek(id string) bool
	Stats() Stats
}
