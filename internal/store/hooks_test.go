package store

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	pattern, err := NewPattern(`^\d+$`)
	require.NoError(t, err)

	tests := []struct {
		name  string
		v     Validator
		value any
		want  bool
	}{
		{name: "nonEmpty string", v: NonEmpty{}, value: "x", want: true},
		{name: "nonEmpty empty", v: NonEmpty{}, value: "", want: false},
		{name: "nonEmpty nil", v: NonEmpty{}, value: nil, want: false},
		{name: "nonEmpty empty list", v: NonEmpty{}, value: []any{}, want: false},
		{name: "nonEmpty number", v: NonEmpty{}, value: 0.0, want: true},
		{name: "pattern match", v: pattern, value: "123", want: true},
		{name: "pattern mismatch", v: pattern, value: "12a", want: false},
		{name: "pattern non-string", v: pattern, value: 12.0, want: false},
		{name: "oneOf hit", v: OneOf{"active", "revoked"}, value: "active", want: true},
		{name: "oneOf miss", v: OneOf{"active", "revoked"}, value: "pending", want: false},
		{name: "length ok", v: Length{Min: 2, Max: 4}, value: "abc", want: true},
		{name: "length short", v: Length{Min: 2, Max: 4}, value: "a", want: false},
		{name: "length long", v: Length{Min: 2, Max: 4}, value: "abcde", want: false},
		{name: "length unbounded", v: Length{Min: 1}, value: "abcdefgh", want: true},
		{name: "length counts runes", v: Length{Max: 2}, value: "éé", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Validate(tt.value))
		})
	}
}

func TestNewValidator(t *testing.T) {
	_, err := NewValidator("pattern", "(", nil, 0, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewValidator("oneOf", "", nil, 0, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewValidator("length", "", nil, 5, 2)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewValidator("magic", "", nil, 0, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)

	v, err := NewValidator("oneOf", "", []string{"a"}, 0, 0)
	require.NoError(t, err)
	assert.True(t, v.Validate("a"))
}

func TestGenerators(t *testing.T) {
	v, err := UUIDGenerator{}.Generate(nil)
	require.NoError(t, err)
	assert.Len(t, v, 36)

	v, err = UUIDGenerator{}.Generate("existing")
	require.NoError(t, err)
	assert.Equal(t, "existing", v)

	v, err = TokenGenerator{}.Generate("")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(v.(string))
	require.NoError(t, err)
	assert.Len(t, raw, DefaultTokenBytes)

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err = TimestampGenerator{Now: func() time.Time { return fixed }}.Generate("old")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05Z", v)

	_, err = NewGenerator("sequence", 0)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
