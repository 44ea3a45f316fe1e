package config

import "errors"

// Validation errors
var (
	// ErrInvalidDimensions indicates width or height is not a positive multiple of 64
	ErrInvalidDimensions = errors.New("width and height must be positive multiples of 64")

	// ErrInvalidAmount indicates the image count is below 1
	ErrInvalidAmount = errors.New("amount must be at least 1")

	// ErrInvalidSteps indicates the step count is below 1
	ErrInvalidSteps = errors.New("steps must be at least 1")

	// ErrMaskWithoutImage indicates a mask was given with no source image
	ErrMaskWithoutImage = errors.New("source mask requires a source image")
)
