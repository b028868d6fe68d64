package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidVehicle    = errors.New("invalid vehicle")
	ErrInvalidPreference = errors.New("invalid preference")
	ErrInvalidVIN        = errors.New("invalid VIN")
	ErrUnknownMake       = errors.New("unknown make")
	ErrUnknownFuelType   = errors.New("unknown fuel type")
	ErrUnknownBodyClass  = errors.New("unknown body class")
	ErrYearOutOfRange    = errors.New("year out of range")
	ErrBudgetOutOfRange  = errors.New("budget out of range")
	ErrBudgetInverted    = errors.New("minimum budget exceeds maximum")
	ErrMileageOutOfRange = errors.New("mileage out of range")
	ErrMPGOutOfRange     = errors.New("mpg out of range")
	ErrSafetyOutOfRange  = errors.New("safety rating out of range")
	ErrTooManyFeatures   = errors.New("too many features")
	ErrEmptyText         = errors.New("empty text")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// UserMessage renders err for an end user. Non-validation errors get a generic text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return "Sorry, I couldn't understand that."
	}
	switch {
	case errors.Is(ve, ErrBudgetOutOfRange):
		return fmt.Sprintf("A budget of %s doesn't look right. Please give an amount between $1 and $1,000,000.", ve.Value)
	case errors.Is(ve, ErrBudgetInverted):
		return "Your minimum budget is higher than your maximum. Could you restate your price range?"
	case errors.Is(ve, ErrYearOutOfRange):
		return fmt.Sprintf("The year %s is outside the range I can search (%d-%d).", ve.Value, MinModelYear, MaxModelYear)
	case errors.Is(ve, ErrMileageOutOfRange):
		return fmt.Sprintf("A mileage limit of %s is outside the supported range (0-%d miles).", ve.Value, MaxMileage)
	case errors.Is(ve, ErrUnknownMake):
		return fmt.Sprintf("I don't recognise the make %q.", ve.Value)
	case errors.Is(ve, ErrUnknownFuelType):
		return fmt.Sprintf("I don't recognise the fuel type %q.", ve.Value)
	case errors.Is(ve, ErrEmptyText):
		return "Tell me a bit about the car you're looking for."
	case errors.Is(ve, ErrUnknownBodyClass):
		return fmt.Sprintf("I don't recognise the vehicle type %q.", ve.Value)
	}
	return fmt.Sprintf("The %s value %q is not valid.", ve.Field, ve.Value)
}
