package logsender

import (
	"context"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

var _ ports.Sender = (*LogSender)(nil)

// LogSender writes events to the log instead of a broker. Used for local runs.
type LogSender struct {
	logger log.FieldLogger
}

// NewLogSender creates a LogSender. A nil logger means the standard logger.
func NewLogSender(logger log.FieldLogger) *LogSender {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogSender{logger: logger}
}

// Send logs the event. It never fails.
func (s *LogSender) Send(_ context.Context, event model.UserEvent) error {
	s.logger.WithFields(log.Fields{
		"event_id":      event.ID,
		"event_type":    event.Type,
		"user_id":       event.UserID,
		"partition_key": event.PartitionKey(),
		"timestamp":     event.Timestamp,
	}).Info("user event")
	return nil
}
