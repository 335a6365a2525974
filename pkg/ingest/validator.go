package ingest

import (
	"errors"
	"fmt"

	"github.com/healthharbor/prevcare/pkg/clinical"
)

var (
	errMissingCode      = errors.New("missing code")
	errMissingTimestamp = errors.New("missing timestamp")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

func validateLabResult(in clinical.LabResultInput) error {
	if in.Code == "" {
		return ValidationError{reason: fmt.Errorf("lab result: %w", errMissingCode)}
	}
	if in.CollectedAt.IsZero() {
		return ValidationError{reason: fmt.Errorf("lab result collected_at: %w", errMissingTimestamp)}
	}
	return nil
}

func validateImmunization(in clinical.ImmunizationInput) error {
	if in.Code == "" {
		return ValidationError{reason: fmt.Errorf("immunization: %w", errMissingCode)}
	}
	if in.AdministeredAt.IsZero() {
		return ValidationError{reason: fmt.Errorf("immunization administered_at: %w", errMissingTimestamp)}
	}
	return nil
}
