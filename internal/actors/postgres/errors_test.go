package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/stretchr/testify/assert"
)

type fakePGError struct {
	fields map[byte]string
}

func (e fakePGError) Error() string            { return "ERROR: " + e.fields['M'] }
func (e fakePGError) Field(field byte) string  { return e.fields[field] }
func (e fakePGError) IntegrityViolation() bool { return true }

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "unique violation",
			err:      fakePGError{fields: map[byte]string{'C': "23505", 'M': "duplicate key"}},
			expected: model.ErrAlreadyExists,
		},
		{
			name:     "wrapped unique violation",
			err:      fmt.Errorf("insert: %w", fakePGError{fields: map[byte]string{'C': "23505"}}),
			expected: model.ErrAlreadyExists,
		},
		{
			name: "check violation is kept as is",
			err:  fakePGError{fields: map[byte]string{'C': "23514"}},
		},
		{
			name: "generic error",
			err:  errors.New("connection reset"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError("error saving", tt.err)
			assert.ErrorIs(t, got, tt.err)
			if tt.expected != nil {
				assert.ErrorIs(t, got, tt.expected)
			} else {
				assert.NotErrorIs(t, got, model.ErrAlreadyExists)
			}
		})
	}
}

func TestTranslateDBToModel(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	got := translateDBToModel(userDB{ID: 3, Name: "Jane", Email: "jane@example.com", Age: 0, CreatedAt: at, UpdatedAt: at})
	assert.Equal(t, model.User{
		ID:        3,
		Name:      "Jane",
		Email:     "jane@example.com",
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}, got)
}
