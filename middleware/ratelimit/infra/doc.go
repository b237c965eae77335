// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - WindowStore: janela fixa por chave (padrão)
//   - Store: token bucket por chave usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões
//   - ChanPool: semáforo para limite de concorrência
package infra
