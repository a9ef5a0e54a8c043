package model

import "errors"

var (
	// ErrNotFound is returned when an entity is required to exist and does not.
	ErrNotFound = errors.New("entity was not found")

	// ErrAlreadyExists is returned when an entity would violate a uniqueness constraint.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrEventDelivery marks an event that could not be handed to the event channel.
	// It is only ever logged, never returned to the caller of a lifecycle operation.
	ErrEventDelivery = errors.New("event delivery failed")
)
