package ports

import (
	"context"

	"github.com/rbroggi/userlifecycle/internal/core/model"
)

// Repository is the interface for the persistence layer.
type Repository interface {
	// ExistsByEmail reports whether a user with the given email is stored.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ExistsByEmailExcludingID reports whether a user other than id owns the given email.
	ExistsByEmailExcludingID(ctx context.Context, email string, id int64) (bool, error)

	// ExistsByID reports whether a user with the given id is stored.
	ExistsByID(ctx context.Context, id int64) (bool, error)

	// FindByID returns the user with the given id or model.ErrNotFound.
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindAll returns every stored user.
	FindAll(ctx context.Context) ([]model.User, error)

	// Save inserts the user when its ID is zero and updates it otherwise.
	// On insert the store assigns ID, CreatedAt and UpdatedAt; on update UpdatedAt is refreshed.
	// Both are written back into user. A uniqueness violation yields model.ErrAlreadyExists and
	// updating a missing user yields model.ErrNotFound.
	Save(ctx context.Context, user *model.User) error

	// DeleteByID removes the user with the given id. It returns model.ErrNotFound if there is none.
	DeleteByID(ctx context.Context, id int64) error

	// RunInTx runs fn inside one unit of work. The Repository handed to fn is bound to that unit
	// of work; every mutation done through it commits if fn returns nil and is rolled back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// Pinger checks the reachability of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
