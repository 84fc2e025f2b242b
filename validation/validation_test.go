package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/police-dispatch-api/models"
)

func TestNewCompilesAllSchemas(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	assert.Len(t, v.compiled, len(schemas))
}

func TestDecodeCall(t *testing.T) {
	v := MustNew()

	var req models.CallRequest
	err := v.Decode(Call, []byte(`{"location":"Main St","name":"Jane","description":"fire","assignedUnits":["u1","u2"]}`), &req)

	require.NoError(t, err)
	assert.Equal(t, "Main St", req.Location)
	assert.Equal(t, []string{"u1", "u2"}, req.AssignedUnits)
}

func TestDecodeCallNullDescription(t *testing.T) {
	v := MustNew()

	var req models.CallRequest
	err := v.Decode(Call, []byte(`{"location":"Main St","name":"Jane","description":null}`), &req)

	require.NoError(t, err)
	assert.Empty(t, req.Description)
	assert.Nil(t, req.AssignedUnits)
}

func TestDecodeRejects(t *testing.T) {
	v := MustNew()

	tests := []struct {
		name   string
		schema string
		body   string
	}{
		{"missing location", Call, `{"name":"Jane"}`},
		{"short name", Call, `{"location":"Main St","name":"J"}`},
		{"units not strings", Call, `{"location":"Main St","name":"Jane","assignedUnits":[1]}`},
		{"not json", Call, `{"location":`},
		{"end call without description", EndCall, `{}`},
		{"unit without department", Unit, `{"name":"Officer","division":"Patrol"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst map[string]interface{}
			err := v.Decode(tt.schema, []byte(tt.body), &dst)
			assert.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestDecodeUnknownSchema(t *testing.T) {
	var dst map[string]interface{}
	err := MustNew().Decode("nope", []byte(`{}`), &dst)

	assert.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestIsValidationErrorWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Schema: Call, Reason: "bad"})
	assert.True(t, IsValidationError(err))
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.Equal(t, "invalid call body: bad", (&Error{Schema: Call, Reason: "bad"}).Error())
}
