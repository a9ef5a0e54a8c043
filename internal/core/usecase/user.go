package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
)

// UserServiceArgs contains the mandatory arguments for the UserService.
type UserServiceArgs struct {
	// Repository is the repository for persistance operations.
	Repository ports.Repository

	// Emitter hands user events over to the event channel.
	Emitter ports.EventEmitter
}

// UserServiceOptArgs are the optional arguments for building a UserService.
type UserServiceOptArgs = func(*UserService)

// WithNowFunc overrides the clock used to timestamp events. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) UserServiceOptArgs {
	return func(s *UserService) {
		s.nowFunc = nowFunc
	}
}

// NewUserService creates a new UserService.
func NewUserService(args UserServiceArgs, optArgs ...UserServiceOptArgs) *UserService {
	s := &UserService{
		repository: args.Repository,
		emitter:    args.Emitter,
		nowFunc:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

// UserService gathers the functionality around the user-lifecycle. It is the only component
// mutating users, enforcing email uniqueness and emitting user events.
// It keeps no state between calls and is safe for concurrent use.
type UserService struct {
	repository ports.Repository
	emitter    ports.EventEmitter
	nowFunc    func() time.Time
}

// CreateUser creates a user. It returns model.ErrAlreadyExists if the email is already taken.
func (s *UserService) CreateUser(ctx context.Context, args model.CreateUserArgs) (*model.CreateUserResponse, error) {
	user := &model.User{
		Name:  args.Name,
		Email: args.Email,
		Age:   args.Age,
	}

	err := s.repository.RunInTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		exists, err := repo.ExistsByEmail(ctx, args.Email)
		if err != nil {
			return fmt.Errorf("error checking email uniqueness: %w", err)
		}
		if exists {
			return emailTaken(args.Email)
		}
		if err := repo.Save(ctx, user); err != nil {
			// the store constraint catches creations racing past the check above
			if errors.Is(err, model.ErrAlreadyExists) {
				return emailTaken(args.Email)
			}
			return fmt.Errorf("error saving user in repository: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(model.NewUserEvent(model.UserCreated, *user, s.nowFunc()))
	return &model.CreateUserResponse{User: *user}, nil
}

// GetUser returns a user. It returns model.ErrNotFound if the ID does not correspond to an existing user.
func (s *UserService) GetUser(ctx context.Context, args model.GetUserArgs) (*model.GetUserResponse, error) {
	user, err := s.repository.FindByID(ctx, args.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, userNotFound(args.ID)
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}
	return &model.GetUserResponse{User: *user}, nil
}

// ListUsers lists every stored user.
func (s *UserService) ListUsers(ctx context.Context) (*model.ListUsersResponse, error) {
	users, err := s.repository.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing users on the repository: %w", err)
	}
	return &model.ListUsersResponse{Users: users}, nil
}

// UpdateUser merges the non-nil fields of args into a user. It returns model.ErrNotFound if the ID
// does not correspond to an existing user and model.ErrAlreadyExists if the new email belongs to
// another user. No event is emitted for updates.
func (s *UserService) UpdateUser(ctx context.Context, args model.UpdateUserArgs) (*model.UpdateUserResponse, error) {
	var updated model.User
	err := s.repository.RunInTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		existing, err := repo.FindByID(ctx, args.ID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return userNotFound(args.ID)
			}
			return fmt.Errorf("error finding user: %w", err)
		}

		merged := mergeUser(*existing, args)
		if merged.Email != existing.Email {
			taken, err := repo.ExistsByEmailExcludingID(ctx, merged.Email, args.ID)
			if err != nil {
				return fmt.Errorf("error checking email uniqueness: %w", err)
			}
			if taken {
				return emailTaken(merged.Email)
			}
		}

		if err := repo.Save(ctx, &merged); err != nil {
			switch {
			case errors.Is(err, model.ErrAlreadyExists):
				return emailTaken(merged.Email)
			case errors.Is(err, model.ErrNotFound):
				return userNotFound(args.ID)
			}
			return fmt.Errorf("error updating user: %w", err)
		}
		updated = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &model.UpdateUserResponse{User: updated}, nil
}

// DeleteUser hard-deletes a user. It returns model.ErrNotFound if the ID does not correspond to an
// existing user. The deletion event carries the state the user had right before removal.
func (s *UserService) DeleteUser(ctx context.Context, args model.DeleteUserArgs) error {
	var event model.UserEvent
	err := s.repository.RunInTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		exists, err := repo.ExistsByID(ctx, args.ID)
		if err != nil {
			return fmt.Errorf("error checking user existence: %w", err)
		}
		if !exists {
			return userNotFound(args.ID)
		}

		user, err := repo.FindByID(ctx, args.ID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return userNotFound(args.ID)
			}
			return fmt.Errorf("error finding user: %w", err)
		}
		event = model.NewUserEvent(model.UserDeleted, *user, s.nowFunc())

		if err := repo.DeleteByID(ctx, args.ID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return userNotFound(args.ID)
			}
			return fmt.Errorf("error deleting user from repository: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(event)
	return nil
}

// mergeUser applies the partial update in args on top of user. Zero values are legitimate
// replacements; only nil fields are left untouched.
func mergeUser(user model.User, args model.UpdateUserArgs) model.User {
	if args.Name != nil {
		user.Name = *args.Name
	}
	if args.Email != nil {
		user.Email = *args.Email
	}
	if args.Age != nil {
		user.Age = *args.Age
	}
	return user
}

func userNotFound(id int64) error {
	return fmt.Errorf("user with id %d: %w", id, model.ErrNotFound)
}

func emailTaken(email string) error {
	return fmt.Errorf("user with email %s: %w", email, model.ErrAlreadyExists)
}
