package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ephemeral-core/reconcile/domain"
)

// HTTPSource busca GET {baseURL}/v1/regionais.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

var _ domain.Source = (*HTTPSource)(nil)

type HTTPSourceOption func(*HTTPSource)

func WithHTTPClient(c *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPSource usa timeout padrão de 10s quando timeout <= 0.
func NewHTTPSource(baseURL string, timeout time.Duration, opts ...HTTPSourceOption) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) URL() string { return s.baseURL + "/v1/regionais" }

// Fetch não faz retry. Qualquer falha volta como *domain.UpstreamError.
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.ExternalRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return nil, &domain.UpstreamError{Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drena um pouco para reaproveitar a conexão
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &domain.UpstreamError{Cause: fmt.Errorf("GET %s: status %d", s.URL(), resp.StatusCode)}
	}

	var out []domain.ExternalRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domain.UpstreamError{Cause: fmt.Errorf("decode regionais: %w", err)}
	}
	return out, nil
}
