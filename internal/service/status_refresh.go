package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/nurpe/rto-permits/internal/repository"
	"github.com/nurpe/rto-permits/internal/validity"
)

type RefreshResult struct {
	PartAChecked int
	PartBChecked int
	PartAUpdated int64
	PartBUpdated int64
}

// RefreshStatuses reclassifies every in-force row from its validity end and
// writes only the rows whose status changed. Superseded rows stay expired.
func (s *PermitService) RefreshStatuses(ctx context.Context) (*RefreshResult, error) {
	now := s.now().UTC()

	partAs, err := s.store.Permits().ListInForcePartA(ctx)
	if err != nil {
		return nil, err
	}
	partBs, err := s.store.Permits().ListInForcePartB(ctx)
	if err != nil {
		return nil, err
	}

	changedA := make(map[validity.Status][]uuid.UUID)
	for _, row := range partAs {
		if row.ValidTo.IsZero() {
			continue
		}
		if next := validity.Classify(row.ValidTo.Time, now, s.expiringWindow); next != row.Status {
			changedA[next] = append(changedA[next], row.ID)
		}
	}
	changedB := make(map[validity.Status][]uuid.UUID)
	for _, row := range partBs {
		if row.ValidTo.IsZero() {
			continue
		}
		if next := validity.Classify(row.ValidTo.Time, now, s.expiringWindow); next != row.Status {
			changedB[next] = append(changedB[next], row.ID)
		}
	}

	result := &RefreshResult{PartAChecked: len(partAs), PartBChecked: len(partBs)}
	if len(changedA) == 0 && len(changedB) == 0 {
		return result, nil
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		for status, ids := range changedA {
			n, err := tx.Permits().UpdatePartAStatus(ctx, ids, status, now)
			if err != nil {
				return err
			}
			result.PartAUpdated += n
		}
		for status, ids := range changedB {
			n, err := tx.Permits().UpdatePartBStatus(ctx, ids, status, now)
			if err != nil {
				return err
			}
			result.PartBUpdated += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("part_a_updated", result.PartAUpdated).
		Int64("part_b_updated", result.PartBUpdated).
		Msg("permit statuses refreshed")
	return result, nil
}
