// Package logging configura o slog usado por todos os componentes.
//
// Os componentes recebem *slog.Logger via opções; nil significa slog.Default().
package logging

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// ParseLevel normaliza o nível ("debug", "info", "warn", "error").
// Valor desconhecido devolve Info com erro.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level")
	}
}

type Options struct {
	Level      string
	JSON       bool
	Writer     io.Writer // padrão: stderr
	SetDefault bool
}

func New(opt Options) (*slog.Logger, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, err
	}
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	ho := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var h slog.Handler
	if opt.JSON {
		h = slog.NewJSONHandler(w, ho)
	} else {
		h = slog.NewTextHandler(w, ho)
	}
	lg := slog.New(h)
	if opt.SetDefault {
		slog.SetDefault(lg)
	}
	return lg, nil
}

// Or devolve lg, ou slog.Default() quando lg é nil.
func Or(lg *slog.Logger) *slog.Logger {
	if lg == nil {
		return slog.Default()
	}
	return lg
}

// Discard é útil em testes.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ShortID trunca identificadores sensíveis (ex: tickets) para log.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack é necessário para o upgrade de websocket passar por este middleware.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

// RequestLog registra método, path, status e duração de cada request.
// 5xx sai em ERROR, 4xx em WARN, o resto em INFO.
func RequestLog(lg *slog.Logger) func(next http.Handler) http.Handler {
	lg = Or(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(sr, r)

			lvl := slog.LevelInfo
			switch {
			case sr.status >= 500:
				lvl = slog.LevelError
			case sr.status >= 400:
				lvl = slog.LevelWarn
			}
			lg.Log(r.Context(), lvl, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
