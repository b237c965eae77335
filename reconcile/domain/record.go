package domain

import (
	"context"
	"time"
)

// ExternalRecord é um item da lista remota (fonte da verdade).
type ExternalRecord struct {
	ID   int    `json:"id"`
	Name string `json:"nome"`
}

// LocalRecord é a cópia local. Nunca é apagada: sai de cena com Active=false.
type LocalRecord struct {
	ID        int
	Name      string
	Active    bool
	UpdatedAt time.Time
}

// Outcome é o que o merge fez com um registro externo.
type Outcome int

const (
	Unchanged Outcome = iota
	Inserted
	Updated
	Reactivated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Reactivated:
		return "reactivated"
	default:
		return "unchanged"
	}
}

// Merge decide o novo estado local para um registro externo.
//
//   - ausente: insere ativo
//   - inativo: reativa (com nome diferente conta como Updated)
//   - ativo com nome diferente: Updated
//   - igual: Unchanged, sem escrita
//
// O nome externo sempre vence.
func Merge(local LocalRecord, found bool, ext ExternalRecord, now time.Time) (LocalRecord, Outcome) {
	if !found {
		return LocalRecord{ID: ext.ID, Name: ext.Name, Active: true, UpdatedAt: now}, Inserted
	}

	renamed := local.Name != ext.Name
	switch {
	case !local.Active:
		local.Active = true
		local.Name = ext.Name
		local.UpdatedAt = now
		if renamed {
			return local, Updated
		}
		return local, Reactivated
	case renamed:
		local.Name = ext.Name
		local.UpdatedAt = now
		return local, Updated
	default:
		return local, Unchanged
	}
}

// Result resume uma passada de reconciliação.
type Result struct {
	Processed   int           `json:"totalProcessadas"`
	Inserted    int           `json:"inseridas"`
	Updated     int           `json:"atualizadas"`
	Reactivated int           `json:"reativadas"`
	Inactivated int           `json:"inativadas"`
	Unchanged   int           `json:"semAlteracao"`
	Active      int           `json:"ativas"`
	Duration    time.Duration `json:"-"`
}

func (r *Result) Add(o Outcome) {
	switch o {
	case Inserted:
		r.Inserted++
	case Updated:
		r.Updated++
	case Reactivated:
		r.Reactivated++
	default:
		r.Unchanged++
	}
}

// Counts são os totais do store local.
type Counts struct {
	Total    int `json:"total"`
	Active   int `json:"ativas"`
	Inactive int `json:"inativas"`
}

// Source busca a lista externa completa. Sem retry: quem quiser, coloca no transporte.
type Source interface {
	Fetch(ctx context.Context) ([]ExternalRecord, error)
}

// Tx é a unidade de trabalho de uma passada; tudo ou nada.
type Tx interface {
	LoadAll(ctx context.Context) (map[int]LocalRecord, error)
	// Save faz upsert pelo ID.
	Save(ctx context.Context, rec LocalRecord) error
	// DeactivateMissing desativa, num único comando, os ativos fora de seen,
	// carimbando now em UpdatedAt. seen vazio desativa todos.
	DeactivateMissing(ctx context.Context, seen map[int]struct{}, now time.Time) (int, error)
}

type Store interface {
	// WithinTx confirma se fn devolver nil e desfaz caso contrário.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	List(ctx context.Context, activeOnly bool) ([]LocalRecord, error)
	Get(ctx context.Context, id int) (LocalRecord, error)
	Counts(ctx context.Context) (Counts, error)
}
