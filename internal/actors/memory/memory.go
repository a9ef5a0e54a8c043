package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
)

var _ ports.Repository = (*MemoryDB)(nil)

// MemoryDB is an in-process adapter for persistance. It enforces the same email uniqueness
// constraint a relational store would and supports rollback of units of work.
type MemoryDB struct {
	mu      sync.Mutex
	users   map[int64]model.User
	lastID  int64
	nowFunc func() time.Time
}

// MemoryDBOptArgs are the optional arguments for building a MemoryDB
type MemoryDBOptArgs = func(*MemoryDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) MemoryDBOptArgs {
	return func(m *MemoryDB) {
		m.nowFunc = nowFunc
	}
}

// NewMemoryDB creates an empty MemoryDB.
func NewMemoryDB(optArgs ...MemoryDBOptArgs) *MemoryDB {
	m := &MemoryDB{
		users:   make(map[int64]model.User),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(m)
	}
	return m
}

// Ping always succeeds.
func (m *MemoryDB) Ping(ctx context.Context) error { return nil }

// ExistsByEmail reports whether some user owns email.
func (m *MemoryDB) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existsByEmail(email, 0), nil
}

// ExistsByEmailExcludingID reports whether a user other than id owns email.
func (m *MemoryDB) ExistsByEmailExcludingID(ctx context.Context, email string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existsByEmail(email, id), nil
}

// ExistsByID reports whether the user exists.
func (m *MemoryDB) ExistsByID(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok, nil
}

// FindByID returns the user or model.ErrNotFound.
func (m *MemoryDB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByID(id)
}

// FindAll lists every user ordered by id.
func (m *MemoryDB) FindAll(ctx context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findAll(), nil
}

// Save will insert the user when it has no ID yet and update it otherwise.
func (m *MemoryDB) Save(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(user)
}

// DeleteByID hard-deletes the user.
func (m *MemoryDB) DeleteByID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteByID(id)
}

// RunInTx serializes units of work. Changes made through the repository handed to fn
// are discarded if fn fails or panics.
func (m *MemoryDB) RunInTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[int64]model.User, len(m.users))
	for id, u := range m.users {
		snapshot[id] = u
	}
	// lastID is not restored: ids are never handed out twice, like a sequence.
	committed := false
	defer func() {
		if !committed {
			m.users = snapshot
		}
	}()
	if err := fn(ctx, &tx{db: m}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *MemoryDB) existsByEmail(email string, excludedID int64) bool {
	for id, u := range m.users {
		if u.Email == email && id != excludedID {
			return true
		}
	}
	return false
}

func (m *MemoryDB) findByID(id int64) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

func (m *MemoryDB) findAll() []model.User {
	users := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (m *MemoryDB) save(user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}
	if m.existsByEmail(user.Email, user.ID) {
		return model.ErrAlreadyExists
	}

	now := m.nowFunc()
	if user.ID == 0 {
		m.lastID++
		user.ID = m.lastID
		user.CreatedAt = now
		user.UpdatedAt = now
		m.users[user.ID] = *user
		return nil
	}

	existing, ok := m.users[user.ID]
	if !ok {
		return model.ErrNotFound
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = now
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryDB) deleteByID(id int64) error {
	if _, ok := m.users[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// tx is the view of a MemoryDB handed to a unit of work. The lock is already held by RunInTx.
type tx struct {
	db *MemoryDB
}

func (t *tx) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return t.db.existsByEmail(email, 0), nil
}

func (t *tx) ExistsByEmailExcludingID(ctx context.Context, email string, id int64) (bool, error) {
	return t.db.existsByEmail(email, id), nil
}

func (t *tx) ExistsByID(ctx context.Context, id int64) (bool, error) {
	_, ok := t.db.users[id]
	return ok, nil
}

func (t *tx) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return t.db.findByID(id)
}

func (t *tx) FindAll(ctx context.Context) ([]model.User, error) {
	return t.db.findAll(), nil
}

func (t *tx) Save(ctx context.Context, user *model.User) error {
	return t.db.save(user)
}

func (t *tx) DeleteByID(ctx context.Context, id int64) error {
	return t.db.deleteByID(id)
}

func (t *tx) RunInTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	return fn(ctx, t)
}
