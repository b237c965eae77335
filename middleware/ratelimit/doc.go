// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Limiter, Decision, ThrottledError), sem net/http
//   - application: casos de uso (decisão allow/deny, acquire/timeout)
//   - infra: janela fixa, token bucket, semáforo, estatísticas em memória/Redis
//   - ratelimit (este pacote): middlewares HTTP, extração de chave, headers e corpo 429
//
// Fluxo no coordinator:
//
//  1. Resolve a identidade (usuário autenticado ou "ip:<addr>")
//  2. Pede a decisão para a camada application
//  3. Se bloqueado, responde 429 (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler
//
// Os knobs vêm de internal/config: RATE_LIMIT_MAX_REQUESTS, RATE_LIMIT_WINDOW_SECONDS,
// RATE_ALGORITHM, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
