package apperrors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoAnalysis   = errors.New("no completed analysis for dataset")
	ErrEmptyDataset = errors.New("dataset has no sheets")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)
