package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validator checks a single field value.
type Validator interface {
	Validate(value any) bool
}

// Validation pairs a Validator with the message reported when it fails.
type Validation struct {
	Check   Validator
	Message string
}

// Generator computes a field value from its current value before a resource
// is validated and stored.
type Generator interface {
	Generate(current any) (any, error)
}

// ---------- validators ----------

// NonEmpty rejects nil, empty strings and empty collections.
type NonEmpty struct{}

func (NonEmpty) Validate(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

// Pattern accepts strings matching a regular expression.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles expr into a Pattern validator.
func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidConfig, expr, err)
	}
	return &Pattern{re: re}, nil
}

func (p *Pattern) Validate(value any) bool {
	s, ok := value.(string)
	return ok && p.re.MatchString(s)
}

// OneOf accepts a fixed set of string values.
type OneOf []string

func (o OneOf) Validate(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	for _, allowed := range o {
		if s == allowed {
			return true
		}
	}
	return false
}

// Length bounds the rune length of a string. Max of zero means unbounded.
type Length struct {
	Min, Max int
}

func (l Length) Validate(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	n := utf8.RuneCountInString(s)
	return n >= l.Min && (l.Max == 0 || n <= l.Max)
}

// NewValidator builds a validator by kind name: nonEmpty, pattern, oneOf or
// length.
func NewValidator(kind, pattern string, values []string, min, max int) (Validator, error) {
	switch kind {
	case "nonEmpty":
		return NonEmpty{}, nil
	case "pattern":
		return NewPattern(pattern)
	case "oneOf":
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: oneOf needs at least one value", ErrInvalidConfig)
		}
		return OneOf(values), nil
	case "length":
		if min < 0 || (max != 0 && max < min) {
			return nil, fmt.Errorf("%w: length bounds %d..%d", ErrInvalidConfig, min, max)
		}
		return Length{Min: min, Max: max}, nil
	default:
		return nil, fmt.Errorf("%w: unknown validator kind %q", ErrInvalidConfig, kind)
	}
}

// ---------- generators ----------

// DefaultTokenBytes is the entropy of generated tokens.
const DefaultTokenBytes = 256 / 8

// UUIDGenerator fills an empty field with a random UUID.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate(current any) (any, error) {
	if s, ok := fieldValue(current); ok {
		return s, nil
	}
	return uuid.NewString(), nil
}

// TokenGenerator fills an empty field with a random base64 token, as used
// for credential keys and secrets.
type TokenGenerator struct {
	Bytes int
}

func (g TokenGenerator) Generate(current any) (any, error) {
	if s, ok := fieldValue(current); ok {
		return s, nil
	}
	n := g.Bytes
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// TimestampGenerator always sets the current UTC time in RFC 3339 format.
type TimestampGenerator struct {
	Now func() time.Time
}

func (g TimestampGenerator) Generate(any) (any, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return now().UTC().Format(time.RFC3339Nano), nil
}

// NewGenerator builds a generator by kind name: uuid, token or timestamp.
func NewGenerator(kind string, bytes int) (Generator, error) {
	switch kind {
	case "uuid":
		return UUIDGenerator{}, nil
	case "token":
		return TokenGenerator{Bytes: bytes}, nil
	case "timestamp":
		return TimestampGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown generator kind %q", ErrInvalidConfig, kind)
	}
}
