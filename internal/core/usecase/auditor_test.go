package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditor_Handle(t *testing.T) {
	tests := []struct {
		name            string
		userEvent       model.UserEvent
		expectedLevel   logrus.Level
		expectedMessage string
	}{
		{
			name: "user creation",
			userEvent: model.UserEvent{
				ID: "1", UserID: 7, Email: "john@example.com", Username: "John", Type: model.UserCreated, Timestamp: time.Now(),
			},
			expectedLevel:   logrus.InfoLevel,
			expectedMessage: "user account created",
		},
		{
			name: "user deletion",
			userEvent: model.UserEvent{
				ID: "2", UserID: 7, Email: "john@example.com", Type: model.UserDeleted, Timestamp: time.Now(),
			},
			expectedLevel:   logrus.InfoLevel,
			expectedMessage: "user account deleted",
		},
		{
			name:            "unknown event type is dropped",
			userEvent:       model.UserEvent{ID: "3", Email: "john@example.com", Type: "USER_UPDATED"},
			expectedLevel:   logrus.WarnLevel,
			expectedMessage: "ignoring unattributable user event",
		},
		{
			name:            "event without email is dropped",
			userEvent:       model.UserEvent{ID: "4", Type: model.UserCreated},
			expectedLevel:   logrus.WarnLevel,
			expectedMessage: "ignoring unattributable user event",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			auditor := NewAuditor(logger)

			require.NoError(t, auditor.Handle(context.Background(), tt.userEvent))

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.expectedLevel, entry.Level)
			assert.Equal(t, tt.expectedMessage, entry.Message)
			assert.Equal(t, tt.userEvent.ID, entry.Data["event_id"])
		})
	}
}
