package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwraps(t *testing.T) {
	err := fmt.Errorf("loading analytics: %w", NotFound("qr code", "abc"))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestValidationCarriesField(t *testing.T) {
	err := Validation("endDate", "must not be before startDate")

	assert.True(t, IsValidation(err))
	assert.Equal(t, []string{"must not be before startDate"}, err.Fields["endDate"])
	assert.Contains(t, err.Error(), "validation")
}

func TestForbidden(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(Forbidden()))
	assert.Equal(t, "forbidden", KindForbidden.String())
}
