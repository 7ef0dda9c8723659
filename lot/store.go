package lot

import (
	"context"

	"github.com/xraph/feeledger/id"
)

type Store interface {
	SaveLot(ctx context.Context, l *Lot) error
	GetLot(ctx context.Context, lotID id.LotID) (*Lot, error)
	ListLots(ctx context.Context, opts ListOpts) ([]*Lot, error)
}

// ListOpts filters ListLots. Results are ordered by creation time.
type ListOpts struct {
	Kind   Kind
	State  State
	Limit  int
	Offset int
}
