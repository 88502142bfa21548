// Package infra contém implementações concretas para os contratos do pacote domain.
//
// Exemplos:
//   - LimiterStore: token bucket por chave usando golang.org/x/time/rate
//   - SessionPool: semáforo em channel para limitar sessões simultâneas
//   - MemoryStatsStore, RedisStatsStore, PromStats: destinos de estatística de admissão
//   - MultiStats: fan-out para vários destinos
package infra
