package cri

import (
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const isoDate = "2006-01-02"

func newUUID() string {
	return uuid.NewString()
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// FieldError is one violated constraint on a named input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects every violation found in one input so the caller
// sees them all at once.
type FieldErrors []FieldError

func (fe *FieldErrors) add(field, message string) {
	*fe = append(*fe, FieldError{Field: field, Message: message})
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

func (fe FieldErrors) empty() bool {
	return len(fe) == 0
}

// lettersOnly rejects whitespace, digits and symbols
func lettersOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func validateClaimedIdentity(req ClaimedIdentityRequest, now time.Time) FieldErrors {
	var errs FieldErrors

	if len(req.GivenNames) == 0 {
		errs.add("given_names", "must not be empty")
	}
	for _, name := range req.GivenNames {
		if strings.TrimSpace(name) == "" {
			errs.add("given_names", "must not contain empty names")
		} else if !lettersOnly(name) {
			errs.add("given_names", "must contain letters only")
		}
	}

	if strings.TrimSpace(req.FamilyNames) == "" {
		errs.add("family_names", "must not be empty")
	} else if !lettersOnly(req.FamilyNames) {
		errs.add("family_names", "must contain letters only")
	}

	if req.DateOfBirth == "" {
		errs.add("date_of_birth", "must not be empty")
	} else if dob, err := time.Parse(isoDate, req.DateOfBirth); err != nil {
		errs.add("date_of_birth", "must be a date in YYYY-MM-DD format")
	} else if dob.After(now) {
		errs.add("date_of_birth", "must not be in the future")
	}
	return errs
}

// redirectURIMatches accepts the stored value or a percent-encoded form of it.
// A '+' is a literal plus, never a space.
func redirectURIMatches(stored, supplied string) bool {
	if supplied == stored || url.QueryEscape(stored) == supplied {
		return true
	}
	decoded, err := url.PathUnescape(supplied)
	return err == nil && decoded == stored
}
