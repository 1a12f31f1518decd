package product

import (
	"context"

	"github.com/xraph/pullpay/id"
)

type Store interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, productID id.ProductID) (*Product, error)
	List(ctx context.Context, opts ListOpts) ([]*Product, error)
}

type ListOpts struct {
	Owner  string
	Limit  int
	Offset int
}
