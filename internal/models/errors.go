package models

import "errors"

// Custom errors
var (
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrMalformedCandle   = errors.New("malformed candle")
	ErrNotFound          = errors.New("record not found")
)
