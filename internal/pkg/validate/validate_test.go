package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email string `json:"email" validate:"omitempty,email"`
	Age   int    `json:"age,omitempty" validate:"omitempty,min=17"`
	Note  string `validate:"max=3"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(sample{Email: "a@b.co", Age: 20, Note: "hi"}))
}

func TestStruct_ReportsJSONNames(t *testing.T) {
	err := Struct(sample{Email: "nope", Age: 12, Note: "long"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email must satisfy email")
	assert.Contains(t, err.Error(), "age must satisfy min=17")
	assert.Contains(t, err.Error(), "Note must satisfy max=3")
}
