package infra

import "time"

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

// startJanitor chama fn a cada `every` numa goroutine própria até ctx encerrar.
// every <= 0 desliga a limpeza.
func startJanitor(ctx DoneContext, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}
