package application

import (
	"context"
	"errors"
	"log/slog"

	"ephemeral-core/internal/clock"
	"ephemeral-core/internal/logging"
	"ephemeral-core/reconcile/domain"
)

// EventSynced é o tipo da notificação publicada ao fim de uma passada confirmada.
const EventSynced = "REGIONAIS_SINCRONIZADAS"

// Notifier recebe o resultado de cada passada confirmada. Falha aqui não
// desfaz nada; só vai para o log.
type Notifier interface {
	Publish(ctx context.Context, kind string, data any) error
}

// Reconciler funde a lista externa no store local, uma passada por vez por processo.
type Reconciler struct {
	source domain.Source
	store  domain.Store

	// sem tem uma vaga: chamadas sobrepostas esperam (ou desistem pelo ctx).
	sem chan struct{}

	notifier    Notifier
	refuseEmpty bool
	clock       clock.Clock
	log         *slog.Logger
}

type Option func(*Reconciler)

func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithRefuseEmpty faz uma lista externa vazia virar ErrSuspiciousEmpty em vez
// de desativar tudo.
func WithRefuseEmpty(refuse bool) Option {
	return func(r *Reconciler) { r.refuseEmpty = refuse }
}

func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) { r.clock = clock.Or(c) }
}

func WithLogger(lg *slog.Logger) Option {
	return func(r *Reconciler) { r.log = logging.Or(lg) }
}

func New(source domain.Source, store domain.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		source: source,
		store:  store,
		sem:    make(chan struct{}, 1),
		clock:  clock.System{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile executa uma passada completa:
//
//  1. busca a lista externa
//  2. carrega os registros locais (dentro da transação)
//  3. aplica o merge registro a registro
//  4. desativa quem não apareceu, num único comando
//
// O ctx é verificado entre 1 e 2 e entre 3 e 4; qualquer erro desfaz a transação.
func (r *Reconciler) Reconcile(ctx context.Context) (domain.Result, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}
	defer func() { <-r.sem }()

	start := r.clock.Now()
	r.log.Info("reconcile started")

	external, err := r.source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			err = &domain.UpstreamError{Cause: err}
		}
		r.log.Error("reconcile fetch failed", "err", err)
		return domain.Result{}, err
	}
	r.log.Info("external records received", "count", len(external))

	if len(external) == 0 {
		if r.refuseEmpty {
			r.log.Warn("external list is empty; refusing to deactivate all records")
			return domain.Result{}, domain.ErrSuspiciousEmpty
		}
		r.log.Warn("external list is empty; every active record will be deactivated")
	}

	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	res := domain.Result{Processed: len(external)}
	began := false
	err = r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		began = true
		local, err := tx.LoadAll(ctx)
		if err != nil {
			return &domain.StoreError{Op: "load", Cause: err}
		}
		r.log.Debug("local records loaded", "count", len(local))

		now := r.clock.Now()
		seen := make(map[int]struct{}, len(external))
		for _, ext := range external {
			seen[ext.ID] = struct{}{}

			cur, found := local[ext.ID]
			next, outcome := domain.Merge(cur, found, ext, now)
			if outcome != domain.Unchanged {
				if err := tx.Save(ctx, next); err != nil {
					return &domain.StoreError{Op: "save", Cause: err}
				}
				// id repetido na mesma lista compara com o que acabou de ser gravado
				local[ext.ID] = next
				r.log.Debug("regional merged", "id", ext.ID, "outcome", outcome.String())
			}
			res.Add(outcome)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := tx.DeactivateMissing(ctx, seen, now)
		if err != nil {
			return &domain.StoreError{Op: "deactivate", Cause: err}
		}
		res.Inactivated = n
		res.Active = len(seen)
		return nil
	})
	if err != nil {
		var se *domain.StoreError
		if !errors.As(err, &se) && ctx.Err() == nil {
			op := "commit"
			if !began {
				// fn nunca rodou: a transação nem abriu
				op = "begin"
			}
			err = &domain.StoreError{Op: op, Cause: err}
		}
		r.log.Error("reconcile aborted", "err", err)
		return domain.Result{}, err
	}

	res.Duration = r.clock.Now().Sub(start)
	r.log.Info("reconcile finished",
		"processed", res.Processed,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"reactivated", res.Reactivated,
		"inactivated", res.Inactivated,
		"unchanged", res.Unchanged,
		"duration_ms", res.Duration.Milliseconds(),
	)

	if r.notifier != nil {
		if err := r.notifier.Publish(ctx, EventSynced, res); err != nil {
			r.log.Warn("reconcile notification failed", "err", err)
		}
	}
	return res, nil
}

// Store expõe o store local para as consultas de leitura.
func (r *Reconciler) Store() domain.Store { return r.store }
