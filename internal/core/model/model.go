package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system.
type User struct {
	// ID unique identifier of the user. Assigned by the store on creation.
	ID int64 `json:"id"`

	// Name is the user name.
	Name string `json:"name"`

	// Email is the user email. Unique among all users.
	Email string `json:"email"`

	// Age is the user age.
	Age int `json:"age"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the time at which the user was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// EventType is the kind of state transition a UserEvent describes.
type EventType string

const (
	// UserCreated is emitted once a user has been persisted.
	UserCreated EventType = "USER_CREATED"

	// UserDeleted is emitted when a user is removed.
	UserDeleted EventType = "USER_DELETED"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == UserCreated || t == UserDeleted
}

// UserEvent is an immutable fact about a state transition of exactly one user.
type UserEvent struct {
	// ID is the event id.
	ID string `json:"eventId"`

	// UserID is the id of the user the event refers to.
	UserID int64 `json:"userId"`

	// Email is the user email at the time of the event.
	Email string `json:"email"`

	// Username is the user name at the time of the event.
	Username string `json:"username"`

	// Type is the event kind.
	Type EventType `json:"eventType"`

	// Timestamp is the time at which the event was produced.
	Timestamp time.Time `json:"timestamp"`
}

// NewUserEvent builds an event of the given type out of the user state.
func NewUserEvent(eventType EventType, user User, at time.Time) UserEvent {
	return UserEvent{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Name,
		Type:      eventType,
		Timestamp: at,
	}
}

// PartitionKey is the key events are distributed by on the event channel.
func (e UserEvent) PartitionKey() string {
	return e.Email
}
