// Package ticket expõe o broker de tickets via HTTP: emissão para usuários
// autenticados e estatísticas para administradores.
package ticket

import (
	"log/slog"
	"net/http"
	"strings"

	"ephemeral-core/internal/auth"
	"ephemeral-core/internal/logging"
	"ephemeral-core/internal/respond"
	"ephemeral-core/ticket/domain"
)

// ConnectionStats é o que o canal de push informa para /stats.
type ConnectionStats interface {
	Connections() int
	UniqueUsers() int
}

type Handler struct {
	Broker domain.Broker
	// WSPath é o path do endpoint de upgrade (padrão /ws/regionais).
	WSPath string
	Conns  ConnectionStats
	Logger *slog.Logger
}

type issueResponse struct {
	Ticket       string `json:"ticket"`
	ExpiresIn    int    `json:"expiresIn"`
	WebsocketURL string `json:"websocketUrl"`
	Username     string `json:"username"`
}

type statsResponse struct {
	ActiveTickets     int   `json:"activeTickets"`
	TotalCreated      int64 `json:"totalCreated"`
	TotalConsumed     int64 `json:"totalConsumed"`
	TotalExpired      int64 `json:"totalExpired"`
	TotalRejected     int64 `json:"totalRejected"`
	TicketTTLSeconds  int   `json:"ticketTtlSeconds"`
	ActiveConnections *int  `json:"activeConnections,omitempty"`
	UniqueUsers       *int  `json:"uniqueUsers,omitempty"`
}

// Issue atende POST /api/v1/ws/ticket.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "autenticacao necessaria para gerar ticket")
		return
	}

	t := h.Broker.Issue(p.Name, p.Roles)
	logging.Or(h.Logger).Info("websocket ticket issued", "username", p.Name, "ticket", logging.ShortID(t.ID))

	respond.JSON(w, http.StatusOK, issueResponse{
		Ticket:       t.ID,
		ExpiresIn:    int(t.ExpiresAt.Sub(t.CreatedAt).Seconds()),
		WebsocketURL: h.websocketURL(r, t.ID),
		Username:     p.Name,
	})
}

// Stats atende GET /api/v1/ws/stats (o papel ADMIN é exigido no roteador).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st := h.Broker.Stats()
	out := statsResponse{
		ActiveTickets:    st.Active,
		TotalCreated:     st.Issued,
		TotalConsumed:    st.Redeemed,
		TotalExpired:     st.Expired,
		TotalRejected:    st.Rejected,
		TicketTTLSeconds: int(st.TTL.Seconds()),
	}
	if h.Conns != nil {
		conns, users := h.Conns.Connections(), h.Conns.UniqueUsers()
		out.ActiveConnections = &conns
		out.UniqueUsers = &users
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) websocketURL(r *http.Request, id string) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	path := h.WSPath
	if path == "" {
		path = "/ws/regionais"
	}
	return scheme + "://" + r.Host + path + "?ticket=" + id
}
