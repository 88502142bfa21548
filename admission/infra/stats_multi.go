package infra

import (
	"context"
	"errors"

	"blockslot/admission/domain"
)

// MultiStats repassa cada evento para todos os stores. Um store com erro não
// impede os outros; os erros voltam juntos.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiStats) RecordTick(ctx context.Context, r domain.TickReport) error {
	var errs []error
	for _, s := range m {
		tr, ok := s.(domain.TickRecorder)
		if !ok {
			continue
		}
		if err := tr.RecordTick(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
