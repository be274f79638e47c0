package classifier

import "errors"

var (
	// ErrInvalidInput is returned for mismatched text/label counts or unknown labels.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotTrained is returned when scoring a classifier that has never completed training.
	ErrNotTrained = errors.New("model not trained")
	// ErrModelMismatch is returned when a snapshot does not fit the current extractor.
	ErrModelMismatch = errors.New("model does not match feature extractor")
)
