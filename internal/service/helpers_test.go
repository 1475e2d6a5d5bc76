package service

import (
	"errors"
	"testing"

	"github.com/persistorai/cadence/internal/models"
)

// wantInvalid fails unless err is a validation error naming field.
func wantInvalid(t *testing.T, err error, field string) {
	t.Helper()

	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error on %q", err, field)
	}
	for _, is := range ve.Issues {
		if is.Field == field {
			return
		}
	}
	t.Fatalf("validation issues %v do not name %q", ve.Issues, field)
}
