package service

import "errors"

var (
	ErrNotFound       = errors.New("error not found")
	ErrStockNotActive = errors.New("error stock is not trading")

	// ErrSaleConflict means every sale attempt hit a concurrent update of
	// the same lots. The user can simply retry.
	ErrSaleConflict = errors.New("error sale conflicts with concurrent updates")
)
