package domain

// ClientID identifica um cliente conectado (ex: o sid da sessão websocket).
type ClientID string

// Height é a altura do bloco. Começa em 0 e só cresce.
type Height uint64

type Account struct {
	Tokens int `json:"tokens"`
	Score  int `json:"score"`
}

// NormalizeCost trata o custo vindo do cliente como entrada não confiável.
// Valores não positivos caem no custo padrão.
func NormalizeCost(cost, def int) int {
	if cost <= 0 {
		return def
	}
	return cost
}

// Ledger guarda saldo de tokens e pontuação por cliente.
//
// Não há operação de reembolso: tokens cobrados por uma reserva que depois
// é "bumped" são perdidos.
type Ledger struct {
	accounts       map[ClientID]*Account
	startingTokens int
}

func NewLedger(startingTokens int) *Ledger {
	if startingTokens < 0 {
		startingTokens = 0
	}
	return &Ledger{
		accounts:       make(map[ClientID]*Account),
		startingTokens: startingTokens,
	}
}

func (l *Ledger) account(id ClientID) *Account {
	acc, ok := l.accounts[id]
	if !ok {
		acc = &Account{Tokens: l.startingTokens}
		l.accounts[id] = acc
	}
	return acc
}

// GetOrCreate retorna a conta existente ou cria a padrão {Score: 0, Tokens: startingTokens}.
func (l *Ledger) GetOrCreate(id ClientID) Account {
	return *l.account(id)
}

func (l *Ledger) Get(id ClientID) (Account, bool) {
	acc, ok := l.accounts[id]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// TryCharge debita cost se houver saldo. Sem saldo, nada muda e ok=false.
// Um cost negativo é tratado como 0.
func (l *Ledger) TryCharge(id ClientID, cost int) (Account, bool) {
	if cost < 0 {
		cost = 0
	}
	acc := l.account(id)
	if acc.Tokens < cost {
		return *acc, false
	}
	acc.Tokens -= cost
	return *acc, true
}

// Award soma points ao score. Pontos negativos são ignorados.
func (l *Ledger) Award(id ClientID, points int) Account {
	acc := l.account(id)
	if points > 0 {
		acc.Score += points
	}
	return *acc
}

func (l *Ledger) Len() int { return len(l.accounts) }
