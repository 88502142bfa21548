// Package transport é o adapter de rede do agendador de admissão.
//
// Visão geral (camadas):
//
//   - domain: tipos e contratos (sem net/http)
//   - application: State, Scheduler e Gateway
//   - infra: limiter, pool de sessões, destinos de estatística
//   - transport (este pacote): websocket + HTTP, tradução evento <-> JSON
//
// Fluxo de uma sessão:
//
//  1. GET /ws passa pelo throttle (por IP) e pelo limite de sessões
//  2. O upgrade gera um sid (uuid), chama Gateway.Connect e responde "connected"
//  3. Cada mensagem {"event": ..., "data": ...} vira submit/reserve no Gateway
//  4. O Hub implementa domain.Notifier: tx_result e block_tick entram numa fila
//     limitada por sessão; fila cheia não bloqueia o tick, só perde aquele envio
package transport
