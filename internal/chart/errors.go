package chart

import "errors"

// Chart errors.
var (
	// ErrWrongAnnotationMode is returned when an annotation operation is not
	// allowed in the chart's current annotation mode.
	ErrWrongAnnotationMode = errors.New("wrong annotation mode")

	// ErrAnnotationNotFound is returned when an annotation id does not exist.
	ErrAnnotationNotFound = errors.New("annotation not found")

	// ErrSeriesNotFound is returned when no series has the given title.
	ErrSeriesNotFound = errors.New("series not found")

	// ErrInvalidMode is returned when parsing an unknown annotation mode.
	ErrInvalidMode = errors.New("invalid annotation mode")
)
