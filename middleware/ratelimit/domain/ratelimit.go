package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"errors"
	"fmt"
	"time"
)

// Key identifica quem está sendo limitado: o principal autenticado
// ou um token de endereço do cliente ("ip:10.0.0.1").
type Key string

// Limiter decide, por chave, se uma ação é admitida agora.
//
// Operações sobre a mesma chave são linearizáveis; chaves diferentes
// não disputam lock entre si.
// A implementação pode ser janela fixa, token-bucket, etc.
type Limiter interface {
	Admit(Key) Decision
	// Remaining é somente leitura: não cria nem altera a janela.
	Remaining(Key) int
	Limit() int
	Window() time.Duration
}

type Decision struct {
	Allowed bool

	Limit     int
	Remaining int
	Window    time.Duration

	// RetryAfter é o tempo até a janela da chave reabrir quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Err devolve um *ThrottledError quando a decisão é de bloqueio.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ThrottledError{Limit: d.Limit, Window: d.Window, RetryAfter: d.RetryAfter}
}

var ErrThrottled = errors.New("rate limit exceeded")

// ThrottledError é a única "falha" do rate limit: não é fatal e carrega
// limite e janela para o chamador montar o retry-after.
type ThrottledError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %ds", e.Limit, int(e.Window.Seconds()))
}

func (e *ThrottledError) Unwrap() error { return ErrThrottled }
