// Package domain define os tipos e contratos do agendador de admissão por bloco.
//
// Este pacote não depende de net/http, websocket nem de implementações concretas.
// Ledger, ReservationTable e PendingQueue são estruturas de dados puras: não fazem
// lock. Quem chama (application.State) serializa o acesso às quatro estruturas
// (altura, reservas, pendentes e contas) numa única seção crítica.
package domain
