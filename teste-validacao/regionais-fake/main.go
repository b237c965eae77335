// Servidor falso da API de regionais para validar o coordenador à mão.
//
//	FAKE_MODE=ok (padrão) | empty | fail | slow
//	FAKE_REGIONAIS=1:Cuiaba,2:Sinop   sobrescreve a lista
//
// Aponte REGIONAIS_API_URL=http://localhost:8081 no coordenador.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"ephemeral-core/internal/respond"
	"ephemeral-core/reconcile/domain"
)

var defaultRegionais = []domain.ExternalRecord{
	{ID: 1, Name: "Cuiaba"},
	{ID: 2, Name: "Varzea Grande"},
	{ID: 3, Name: "Rondonopolis"},
	{ID: 4, Name: "Sinop"},
	{ID: 5, Name: "Barra do Garcas"},
}

func main() {
	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	list := parseList(os.Getenv("FAKE_REGIONAIS"))
	if list == nil {
		list = defaultRegionais
	}

	slog.Info("regionais fake listening", "addr", addr, "mode", os.Getenv("FAKE_MODE"), "count", len(list))
	if err := http.ListenAndServe(addr, newHandler(os.Getenv("FAKE_MODE"), list)); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func newHandler(mode string, list []domain.ExternalRecord) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/regionais", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("GET /v1/regionais", "mode", mode)
		switch mode {
		case "empty":
			respond.JSON(w, http.StatusOK, []domain.ExternalRecord{})
		case "fail":
			respond.Error(w, http.StatusBadGateway, "falha simulada")
		case "slow":
			select {
			case <-time.After(30 * time.Second):
			case <-r.Context().Done():
				return
			}
			respond.JSON(w, http.StatusOK, list)
		default:
			respond.JSON(w, http.StatusOK, list)
		}
	})
	return mux
}

// "1:Cuiaba,2:Sinop"; entradas malformadas são ignoradas.
func parseList(s string) []domain.ExternalRecord {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := []domain.ExternalRecord{}
	for _, part := range strings.Split(s, ",") {
		idStr, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		id, err := strconv.Atoi(idStr)
		if !ok || err != nil {
			continue
		}
		out = append(out, domain.ExternalRecord{ID: id, Name: strings.TrimSpace(name)})
	}
	return out
}
