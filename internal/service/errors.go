package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("import job %s not found", id)}
}

type ErrInvalidSourceURL struct {
	error
}

func NewErrInvalidSourceURL(sourceURL, reason string) *ErrInvalidSourceURL {
	return &ErrInvalidSourceURL{fmt.Errorf("invalid source url %q: %s", sourceURL, reason)}
}

// ErrValidation marks a listing that cannot become an event. Jobs failing
// validation are terminal: retrying does not add a missing start time.
type ErrValidation struct {
	error
}

func NewErrValidation(field string) *ErrValidation {
	return &ErrValidation{fmt.Errorf("listing has no %s", field)}
}

type ErrJobNotRetryable struct {
	error
}

func NewErrJobNotRetryable(id uuid.UUID, status string) *ErrJobNotRetryable {
	return &ErrJobNotRetryable{fmt.Errorf("import job %s is %s; only failed jobs can be reset", id, status)}
}
