package validator

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewInput struct {
	OrderID string `json:"order_id" validate:"required"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=10"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(reviewInput{OrderID: "AVA-BOLD-1", Rating: 5}))
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(reviewInput{Rating: 9, Comment: "far too long a comment", Email: "nope"})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := verr.Fields()
	assert.Equal(t, "is required", fields["order_id"])
	assert.Equal(t, "must be at most 5", fields["rating"])
	assert.Equal(t, "must be at most 10 characters", fields["comment"])
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Contains(t, verr.Error(), "field 'order_id' is required")
}

func TestDecodeAndValidate(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"order_id":"AVA-BOLD-1","rating":4}`))
	var in reviewInput
	require.NoError(t, DecodeAndValidate(r, &in))
	assert.Equal(t, 4, in.Rating)

	bad := httptest.NewRequest("POST", "/", strings.NewReader(`{"order_id":`))
	err := DecodeAndValidate(bad, &in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
