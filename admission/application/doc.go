// Package application contém os casos de uso do agendador de admissão por bloco.
//
// Ele depende apenas do pacote domain e não conhece HTTP nem websocket.
//
//   - State: a única seção crítica (altura, reservas, pendentes e contas)
//   - Scheduler: o tick periódico que fecha o bloco e decide quem entra
//   - Gateway: connect/submit/reserve, chamados pela camada de transporte
//
// Notificação, estatística e log acontecem sempre depois de liberar o lock.
package application
