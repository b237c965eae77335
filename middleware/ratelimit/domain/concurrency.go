package domain

import "context"

// SlotPool é o semáforo do limite de requests em voo.
//
// Acquire bloqueia até obter vaga ou o ctx encerrar; release deve ser chamado
// exatamente uma vez. InUse/Cap alimentam o /healthz.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
	Cap() int
}
