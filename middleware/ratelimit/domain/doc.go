// Package domain define contratos e tipos de domínio do rate limit e do limite
// de concorrência: Key, Limiter, Decision, ThrottledError, StatsStore e SlotPool.
//
// Não depende de net/http nem de implementações concretas, o que permite
// testar as regras com fakes e trocar a infraestrutura (janela fixa,
// token-bucket, Redis) sem tocar no middleware.
package domain
