package domain

import "errors"

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientTreats = errors.New("insufficient treats")
	ErrSelfGift           = errors.New("cannot gift treats to self")
)
