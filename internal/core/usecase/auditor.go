package usecase

import (
	"context"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	log "github.com/sirupsen/logrus"
)

// NewAuditor builds a new Auditor writing to logger. A nil logger means the standard logrus logger.
func NewAuditor(logger log.FieldLogger) *Auditor {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Auditor{logger: logger}
}

// Auditor consumes public user events and records them in a structured audit trail.
type Auditor struct {
	logger log.FieldLogger
}

// Handle records a single user event. Events that cannot be attributed to a user
// are dropped with a warning, redelivering them would not make them valid.
func (a *Auditor) Handle(ctx context.Context, userEvent model.UserEvent) error {
	entry := a.logger.WithFields(log.Fields{
		"event_id":   userEvent.ID,
		"event_type": userEvent.Type,
		"user_id":    userEvent.UserID,
		"email":      userEvent.Email,
	})

	if !userEvent.Type.Valid() || userEvent.Email == "" {
		entry.Warn("ignoring unattributable user event")
		return nil
	}

	entry = entry.WithField("occurred_at", userEvent.Timestamp)
	switch userEvent.Type {
	case model.UserCreated:
		entry.WithField("username", userEvent.Username).Info("user account created")
	case model.UserDeleted:
		entry.Info("user account deleted")
	}
	return nil
}
