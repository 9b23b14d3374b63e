package models

import "errors"

var (
	ErrParse             = errors.New("unreadable document")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrPartialUpsert     = errors.New("partial upsert")
)
