package storage

import (
	"context"
	"errors"

	"swapRelay/internal/model"
)

// Journal defines a sink for swap records.
type Journal interface {
	PutSwap(ctx context.Context, rec model.SwapRecord) error
}

// Tee writes every record to all journals and joins their errors.
type Tee []Journal

func (t Tee) PutSwap(ctx context.Context, rec model.SwapRecord) error {
	var errs []error
	for _, j := range t {
		if j == nil {
			continue
		}
		if err := j.PutSwap(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
