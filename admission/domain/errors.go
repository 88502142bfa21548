package domain

import (
	"errors"
	"fmt"
)

// ErrInsufficientTokens é a única falha de domínio: reserva com saldo < custo.
var ErrInsufficientTokens = errors.New("not enough tokens")

// InsufficientTokensError carrega o saldo no momento da recusa, para a resposta
// reserve_failed.
type InsufficientTokensError struct {
	Tokens int
	Cost   int
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("%v: have %d, need %d", ErrInsufficientTokens, e.Tokens, e.Cost)
}

func (e *InsufficientTokensError) Is(target error) bool {
	return target == ErrInsufficientTokens
}
