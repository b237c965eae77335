// Package reconcile expõe o reconciliador de regionais via HTTP (chi).
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"ephemeral-core/internal/auth"
	"ephemeral-core/internal/logging"
	"ephemeral-core/internal/respond"
	"ephemeral-core/reconcile/domain"

	"github.com/go-chi/chi/v5"
)

const unavailableMessage = "servico temporariamente indisponivel"

// Runner é o que o handler precisa do reconciliador.
type Runner interface {
	Reconcile(ctx context.Context) (domain.Result, error)
}

type Handler struct {
	Reconciler Runner
	Store      domain.Store
	Logger     *slog.Logger
}

type regionalResponse struct {
	ID    int    `json:"id"`
	Name  string `json:"nome"`
	Ativo bool   `json:"ativo"`
}

type syncResponse struct {
	domain.Result
	Message string `json:"mensagem"`
}

// Routes monta as rotas relativas a /api/v1/regionais.
// A sincronização manual exige o papel ADMIN.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/estatisticas", h.Stats)
	r.With(auth.RequireRoles("ADMIN")).Post("/sincronizar", h.Sync)
	r.Get("/{id}", h.Get)
	return r
}

// List atende GET /?apenasAtivas= (padrão true).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v := strings.TrimSpace(r.URL.Query().Get("apenasAtivas")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "apenasAtivas deve ser true ou false")
			return
		}
		activeOnly = b
	}

	rows, err := h.Store.List(r.Context(), activeOnly)
	if err != nil {
		h.unavailable(w, r, "list regionais", err)
		return
	}
	out := make([]regionalResponse, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toResponse(rec))
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "id invalido")
		return
	}

	rec, err := h.Store.Get(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "regional nao encontrada: "+strconv.Itoa(id))
	case err != nil:
		h.unavailable(w, r, "get regional", err)
	default:
		respond.JSON(w, http.StatusOK, toResponse(rec))
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.Counts(r.Context())
	if err != nil {
		h.unavailable(w, r, "count regionais", err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

// Sync dispara uma passada e devolve o resumo.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reconciler.Reconcile(r.Context())
	switch {
	case errors.Is(err, domain.ErrSuspiciousEmpty):
		respond.Error(w, http.StatusConflict, "lista externa vazia; sincronizacao recusada")
	case err != nil:
		h.unavailable(w, r, "reconcile", err)
	default:
		respond.JSON(w, http.StatusOK, syncResponse{Result: res, Message: "Sincronizacao concluida com sucesso"})
	}
}

// detalhes só no log; o cliente recebe a mensagem genérica
func (h *Handler) unavailable(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.Or(h.Logger).Error("regionais request failed", "op", op, "path", r.URL.Path, "err", err)
	respond.Error(w, http.StatusServiceUnavailable, unavailableMessage)
}

func toResponse(rec domain.LocalRecord) regionalResponse {
	return regionalResponse{ID: rec.ID, Name: rec.Name, Ativo: rec.Active}
}
