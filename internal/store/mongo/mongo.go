// Package mongo persists users, teams, projects and tasks in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

const (
	usersCollection    = "users"
	teamsCollection    = "teams"
	projectsCollection = "projects"
	tasksCollection    = "tasks"
)

// Store implements auth.UserStore, auth.TeamDirectory and work.Store.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	teams    *mongo.Collection
	projects *mongo.Collection
	tasks    *mongo.Collection
	now      func() time.Time
}

var (
	_ auth.UserStore     = (*Store)(nil)
	_ auth.TeamDirectory = (*Store)(nil)
	_ work.Store         = (*Store)(nil)
)

// Open connects, pings with a bounded timeout and ensures indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logrus.WithField("database", database).Info("connected to mongodb")
	return s, nil
}

// New wraps an already connected client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		teams:    db.Collection(teamsCollection),
		projects: db.Collection(projectsCollection),
		tasks:    db.Collection(tasksCollection),
		now:      time.Now,
	}
}

// EnsureIndexes creates the unique email index and the lookup indexes used by the filters.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "passwordResetToken", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "emailVerificationToken", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		s.teams: {
			{Keys: bson.D{{Key: "leader", Value: 1}}},
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		s.projects: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "members", Value: 1}}},
			{Keys: bson.D{{Key: "teams", Value: 1}}},
		},
		s.tasks: {
			{Keys: bson.D{{Key: "project", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Ping reports whether the deployment is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// objectID parses a hex id. Malformed ids cannot name a stored document.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, auth.ErrNotFound
	}
	return oid, nil
}

// objectIDs parses references supplied by callers. A malformed reference is a validation error.
func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, &auth.Error{Kind: auth.ErrValidation, Message: fmt.Sprintf("Invalid id: %s", id)}
		}
		out = append(out, oid)
	}
	return out, nil
}

func hexIDs(oids []primitive.ObjectID) []string {
	out := make([]string, 0, len(oids))
	for _, oid := range oids {
		out = append(out, oid.Hex())
	}
	return out
}

func optionalRef(id string) (primitive.ObjectID, error) {
	if id == "" {
		return primitive.NilObjectID, nil
	}
	oids, err := objectIDs([]string{id})
	if err != nil {
		return primitive.NilObjectID, err
	}
	return oids[0], nil
}

func refHex(oid primitive.ObjectID) string {
	if oid.IsZero() {
		return ""
	}
	return oid.Hex()
}

// mapErr translates driver errors into the auth error kinds.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return auth.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return auth.ErrConflict
	}
	return err
}

func afterUpdate() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}
