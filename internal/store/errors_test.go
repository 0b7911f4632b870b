package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ClassNone},
		{name: "not found", err: ErrNotFound, want: ClassNotFound},
		{name: "wrapped not found", err: fmt.Errorf("get: %w", ErrNotFound), want: ClassNotFound},
		{name: "validation", err: &ValidationError{Field: "a", Reason: MissingRequiredField}, want: ClassValidation},
		{name: "invalid config", err: ErrInvalidConfig, want: ClassValidation},
		{name: "duplicate", err: &DuplicateIndexError{Field: "a"}, want: ClassConflict},
		{
			name: "duplicate inside create",
			err:  &CreateError{Phase: PhaseBatching, Err: &DuplicateIndexError{Field: "a"}},
			want: ClassConflict,
		},
		{name: "association", err: &AssociationError{Hook: "h", Err: errors.New("x")}, want: ClassAssociation},
		{
			name: "association not found",
			err:  &AssociationError{Hook: "h", Err: ErrNotFound},
			want: ClassAssociation,
		},
		{name: "backend", err: &BackendError{Op: "get", Err: errors.New("io")}, want: ClassBackend},
		{name: "unknown", err: errors.New("??"), want: ClassBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "entity not found", ErrNotFound.Error())
	assert.Equal(t, "missing required field [name]",
		(&ValidationError{Field: "name", Reason: MissingRequiredField}).Error())
	assert.Equal(t, "invalid field [email]: bad email",
		(&ValidationError{Field: "email", Reason: InvalidField, Message: "bad email"}).Error())
	assert.Equal(t, `create widget: index checking: duplicate index for widget: name="a" is already taken`,
		(&CreateError{
			ResourceType: "widget",
			Phase:        PhaseIndexChecking,
			Err:          &DuplicateIndexError{ResourceType: "widget", Field: "name", Value: "a"},
		}).Error())
}
