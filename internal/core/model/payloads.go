package model

// CreateUserArgs contain the arguments of the CreateUser method.
type CreateUserArgs struct {
	// Name is the user name.
	Name string

	// Email is the user email
	Email string

	// Age is the user age
	Age int
}

// CreateUserResponse contains the response of the CreateUser method.
type CreateUserResponse struct {
	// User
	User User
}

// GetUserArgs contain the arguments of the GetUser method.
type GetUserArgs struct {
	// ID is the id of the user to fetch.
	ID int64
}

// GetUserResponse contains the response of the GetUser method.
type GetUserResponse struct {
	// User
	User User
}

// ListUsersResponse contains every stored user.
type ListUsersResponse struct {
	// Users are all the users in the store.
	Users []User
}

// UpdateUserArgs contain the arguments of the UpdateUser method.
// A nil field means "no change"; a non-nil field replaces the stored value, zero values included.
type UpdateUserArgs struct {
	// ID is the id of the user to be updated.
	ID int64

	// Name is the new user name.
	Name *string

	// Email is the new user email.
	Email *string

	// Age is the new user age.
	Age *int
}

// UpdateUserResponse contains the response of the UpdateUser method.
type UpdateUserResponse struct {
	// User
	User User
}

// DeleteUserArgs contains the arguments for deleting a user.
type DeleteUserArgs struct {
	// ID is the id of the user to be deleted.
	ID int64
}
