package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
)

var _ ports.Repository = (*PostgresDB)(nil)

// uniqueViolation is the SQLSTATE postgres reports when a unique constraint is violated.
const uniqueViolation = "23505"

// PostgresDB is a postgress adapter for persistance.
type PostgresDB struct {
	// db is nil for instances bound to a transaction.
	db      *pg.DB
	conn    orm.DB
	nowFunc func() time.Time
}

// PostgresDBArgs are the mandatory arguments for the creation of a PostgresDB
type PostgresDBArgs struct {
	// DB is a postgres database handle
	DB *pg.DB
}

// PostgresDBOptArgs are the optional arguments for building a PostgresDB
type PostgresDBOptArgs = func(*PostgresDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) PostgresDBOptArgs {
	return func(p *PostgresDB) {
		p.nowFunc = nowFunc
	}
}

// NewPostgresDB creates a new PostgresDB.
func NewPostgresDB(args PostgresDBArgs, optArgs ...PostgresDBOptArgs) (*PostgresDB, error) {
	if args.DB == nil {
		return nil, errors.New("nil postgres database handle")
	}
	p := &PostgresDB{db: args.DB, conn: args.DB, nowFunc: func() time.Time { return time.Now().UTC() }}
	for _, opt := range optArgs {
		opt(p)
	}
	return p, nil
}

// Ping checks the database is reachable.
func (p *PostgresDB) Ping(ctx context.Context) error {
	if p.db == nil {
		return errors.New("ping issued inside a transaction")
	}
	return p.db.Ping(ctx)
}

// RunInTx runs fn in a database transaction. Nested calls join the ongoing transaction.
func (p *PostgresDB) RunInTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	if p.db == nil {
		return fn(ctx, p)
	}
	return p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		return fn(ctx, &PostgresDB{conn: tx, nowFunc: p.nowFunc})
	})
}

// ExistsByEmail reports whether some user owns email.
func (p *PostgresDB) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	exists, err := p.conn.ModelContext(ctx, (*userDB)(nil)).Where("email = ?", email).Exists()
	if err != nil {
		return false, fmt.Errorf("error querying user by email: %w", err)
	}
	return exists, nil
}

// ExistsByEmailExcludingID reports whether a user other than id owns email.
func (p *PostgresDB) ExistsByEmailExcludingID(ctx context.Context, email string, id int64) (bool, error) {
	exists, err := p.conn.ModelContext(ctx, (*userDB)(nil)).
		Where("email = ?", email).
		Where("id <> ?", id).
		Exists()
	if err != nil {
		return false, fmt.Errorf("error querying user by email: %w", err)
	}
	return exists, nil
}

// ExistsByID reports whether the user exists.
func (p *PostgresDB) ExistsByID(ctx context.Context, id int64) (bool, error) {
	exists, err := p.conn.ModelContext(ctx, (*userDB)(nil)).Where("id = ?", id).Exists()
	if err != nil {
		return false, fmt.Errorf("error querying user by id: %w", err)
	}
	return exists, nil
}

// FindByID returns the user or model.ErrNotFound.
func (p *PostgresDB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	dbUser := &userDB{ID: id}
	if err := p.conn.ModelContext(ctx, dbUser).WherePK().Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("error selecting user: %w", err)
	}
	user := translateDBToModel(*dbUser)
	return &user, nil
}

// FindAll lists every user.
func (p *PostgresDB) FindAll(ctx context.Context) ([]model.User, error) {
	var users []userDB
	if err := p.conn.ModelContext(ctx, &users).Order("id ASC").Select(); err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, fmt.Errorf("error selecting users: %w", err)
	}
	return translateDBToModels(users), nil
}

// Save will insert the user when it has no ID yet and update it otherwise.
func (p *PostgresDB) Save(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}
	if user.ID == 0 {
		return p.insert(ctx, user)
	}
	return p.update(ctx, user)
}

func (p *PostgresDB) insert(ctx context.Context, user *model.User) error {
	now := p.nowFunc()
	dbUser := &userDB{
		Name:      user.Name,
		Email:     user.Email,
		Age:       user.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := p.conn.ModelContext(ctx, dbUser).Returning("*").Insert(); err != nil {
		return translateError("error inserting user", err)
	}

	*user = translateDBToModel(*dbUser)
	return nil
}

func (p *PostgresDB) update(ctx context.Context, user *model.User) error {
	dbUser := &userDB{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Age:       user.Age,
		UpdatedAt: p.nowFunc(),
	}
	res, err := p.conn.ModelContext(ctx, dbUser).
		Column("name", "email", "age", "updated_at").
		WherePK().
		Returning("*").
		Update()
	if err != nil {
		return translateError("error updating user", err)
	}
	if res.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	*user = translateDBToModel(*dbUser)
	return nil
}

// DeleteByID hard-deletes the user.
func (p *PostgresDB) DeleteByID(ctx context.Context, id int64) error {
	res, err := p.conn.ModelContext(ctx, &userDB{ID: id}).WherePK().Delete()
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// translateError maps constraint violations to model errors and wraps everything else.
func translateError(msg string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", msg, model.ErrAlreadyExists, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueViolation(err error) bool {
	var pgErr pg.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == uniqueViolation
	}
	return false
}

func translateDBToModels(dbUsers []userDB) []model.User {
	models := make([]model.User, len(dbUsers))
	for i, dbUser := range dbUsers {
		models[i] = translateDBToModel(dbUser)
	}
	return models
}

func translateDBToModel(dbUser userDB) model.User {
	return model.User{
		ID:        dbUser.ID,
		Name:      dbUser.Name,
		Email:     dbUser.Email,
		Age:       dbUser.Age,
		CreatedAt: dbUser.CreatedAt.UTC(),
		UpdatedAt: dbUser.UpdatedAt.UTC(),
	}
}

type userDB struct {
	tableName struct{} `pg:"users"`

	// ID unique identifier of the user, from the table sequence.
	ID int64 `pg:"id,pk"`

	// Name is the user name.
	Name string `pg:"name,use_zero"`

	// Email is the user email
	Email string `pg:"email,use_zero"`

	// Age is the user age. Zero is a valid age.
	Age int `pg:"age,use_zero"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `pg:"created_at"`

	// UpdatedAt is the time at which the user was last updated
	UpdatedAt time.Time `pg:"updated_at"`
}
