package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyFinal = errors.New("generation already finalized")
	ErrDuplicateID  = errors.New("duplicate generation id")
)
