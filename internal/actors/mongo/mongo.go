package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ ports.Repository = (*MongoDB)(nil)

const (
	// userSequence is the counter document holding the last issued user id.
	userSequence   = "users"
	emailIndexName = "users_email_key"
)

// MongoDB is a mongo adapter for persistance. Multi-document transactions require a replica set.
type MongoDB struct {
	userCollection    *mongo.Collection
	counterCollection *mongo.Collection
	nowFunc           func() time.Time
}

// MongoDBArgs are the mandatory arguments for the creation of a MongoDB
type MongoDBArgs struct {
	// UserCollection is the collection holding the user documents.
	UserCollection *mongo.Collection

	// CounterCollection holds the sequences used to issue numeric ids.
	CounterCollection *mongo.Collection
}

// MongoDBOptArgs are the optional arguments for building a MongoDB
type MongoDBOptArgs = func(*MongoDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) MongoDBOptArgs {
	return func(p *MongoDB) {
		p.nowFunc = nowFunc
	}
}

// NewMongoDB creates a new MongoDB.
func NewMongoDB(args MongoDBArgs, optArgs ...MongoDBOptArgs) (*MongoDB, error) {
	if args.UserCollection == nil || args.CounterCollection == nil {
		return nil, errors.New("nil mongo collection")
	}
	m := &MongoDB{
		userCollection:    args.UserCollection,
		counterCollection: args.CounterCollection,
		nowFunc:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(m)
	}
	return m, nil
}

// EnsureSchema creates the unique email index and the id sequence. It is idempotent.
func (m *MongoDB) EnsureSchema(ctx context.Context) error {
	_, err := m.userCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(emailIndexName),
	})
	if err != nil {
		return fmt.Errorf("error creating email index: %w", err)
	}
	_, err = m.counterCollection.UpdateByID(ctx, userSequence,
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "seq", Value: int64(0)}}}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error creating user sequence: %w", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.userCollection.Database().Client().Ping(ctx, readpref.Primary())
}

// RunInTx runs fn in a multi-document transaction. Nested calls join the ongoing session.
func (m *MongoDB) RunInTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, m)
	}
	session, err := m.userCollection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("error starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, m)
	})
	return err
}

// ExistsByEmail reports whether some user owns email.
func (m *MongoDB) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return m.exists(ctx, bson.D{{Key: "email", Value: email}})
}

// ExistsByEmailExcludingID reports whether a user other than id owns email.
func (m *MongoDB) ExistsByEmailExcludingID(ctx context.Context, email string, id int64) (bool, error) {
	return m.exists(ctx, bson.D{
		{Key: "email", Value: email},
		{Key: "_id", Value: bson.D{{Key: "$ne", Value: id}}},
	})
}

// ExistsByID reports whether the user exists.
func (m *MongoDB) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return m.exists(ctx, bson.D{{Key: "_id", Value: id}})
}

func (m *MongoDB) exists(ctx context.Context, filter bson.D) (bool, error) {
	n, err := m.userCollection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("error counting users: %w", err)
	}
	return n > 0, nil
}

// FindByID returns the user or model.ErrNotFound.
func (m *MongoDB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	dbUser := new(userDB)
	if err := m.userCollection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(dbUser); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}
	user := translateDBToModel(*dbUser)
	return &user, nil
}

// FindAll lists every user ordered by id.
func (m *MongoDB) FindAll(ctx context.Context) ([]model.User, error) {
	cursor, err := m.userCollection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error finding users: %w", err)
	}
	var users []userDB
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("error decoding users: %w", err)
	}
	return translateDBToModels(users), nil
}

// Save will insert the user when it has no ID yet and update it otherwise.
func (m *MongoDB) Save(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}
	if user.ID == 0 {
		return m.insert(ctx, user)
	}
	return m.update(ctx, user)
}

func (m *MongoDB) insert(ctx context.Context, user *model.User) error {
	id, err := m.nextID(ctx)
	if err != nil {
		return err
	}
	now := m.nowFunc()
	dbUser := userDB{
		ID:        id,
		Name:      user.Name,
		Email:     user.Email,
		Age:       user.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := m.userCollection.InsertOne(ctx, dbUser); err != nil {
		return translateError("error inserting user", err)
	}
	*user = translateDBToModel(dbUser)
	return nil
}

func (m *MongoDB) update(ctx context.Context, user *model.User) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: user.Name},
		{Key: "email", Value: user.Email},
		{Key: "age", Value: user.Age},
		{Key: "updated_at", Value: m.nowFunc()},
	}}}
	dbUser := new(userDB)
	err := m.userCollection.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: user.ID}}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(dbUser)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.ErrNotFound
		}
		return translateError("error updating user", err)
	}
	*user = translateDBToModel(*dbUser)
	return nil
}

// DeleteByID hard-deletes the user.
func (m *MongoDB) DeleteByID(ctx context.Context, id int64) error {
	res, err := m.userCollection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	if res.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// nextID increments the user sequence. Inside a transaction the increment is rolled back with it.
func (m *MongoDB) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counterCollection.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: userSequence}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("error issuing user id: %w", err)
	}
	return counter.Seq, nil
}

func translateError(msg string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w: %w", msg, model.ErrAlreadyExists, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
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
	// ID unique identifier of the user, issued by the users sequence.
	ID int64 `bson:"_id"`

	// Name is the user name.
	Name string `bson:"name"`

	// Email is the user email
	Email string `bson:"email"`

	// Age is the user age.
	Age int `bson:"age"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `bson:"created_at"`

	// UpdatedAt is the time at which the user was last updated
	UpdatedAt time.Time `bson:"updated_at"`
}
