package repository

import "errors"

var (
	ErrAlreadyExists = errors.New("error already exists")
	ErrNotFound      = errors.New("error not found")

	// ErrStaleLot means a conditional lot update matched no row: the lot's
	// remaining quantity changed between snapshot and commit. The caller
	// should retry the sale from a fresh snapshot.
	ErrStaleLot = errors.New("error lot changed since snapshot")
)
