package infra

import "context"

// SessionPool é um semáforo em channel com capacidade max.
type SessionPool struct {
	sem chan struct{}
}

func NewSessionPool(max int) *SessionPool {
	return &SessionPool{sem: make(chan struct{}, max)}
}

func (p *SessionPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse é quantas vagas estão ocupadas agora.
func (p *SessionPool) InUse() int { return len(p.sem) }

func (p *SessionPool) Cap() int { return cap(p.sem) }
