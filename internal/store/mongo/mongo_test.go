package mongo

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

func TestUserDocKeepsSecretsAndClock(t *testing.T) {
	lock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	u := &auth.User{
		ID:              primitive.NewObjectID().Hex(),
		Email:           "a@example.com",
		Role:            auth.RoleManager,
		Active:          true,
		PasswordHash:    "hash",
		TwoFactorSecret: "SECRET",
		LoginAttempts:   3,
		LockUntil:       &lock,
		Settings:        auth.DefaultSettings(),
	}
	back := userToDoc(u).user()
	if back.ID != u.ID || back.PasswordHash != "hash" || back.TwoFactorSecret != "SECRET" {
		t.Fatalf("fields lost: %+v", back)
	}
	if back.LockUntil.Location() != time.UTC || !back.LockUntil.Equal(lock) {
		t.Fatalf("lock not normalised to UTC: %v", back.LockUntil)
	}
	if back.Settings.Appearance.Theme != "system" {
		t.Fatalf("settings lost: %+v", back.Settings)
	}
}

func TestSettingsEncodeWithCamelCaseKeys(t *testing.T) {
	raw, err := bson.Marshal(auth.DefaultSettings())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := bson.Raw(raw).LookupErr("security", "twoFactorAuth"); err != nil {
		t.Fatalf("twoFactorAuth key missing: %v", err)
	}
	if _, err := bson.Raw(raw).LookupErr("notifications", "taskAssigned"); err != nil {
		t.Fatalf("taskAssigned key missing: %v", err)
	}
}

func TestObjectIDParsing(t *testing.T) {
	if _, err := objectID("nope"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("malformed id should be not found, got %v", err)
	}
	_, err := objectIDs([]string{primitive.NewObjectID().Hex(), "bad"})
	if !errors.Is(err, auth.ErrValidation) {
		t.Fatalf("malformed reference should be validation, got %v", err)
	}
	if refHex(primitive.NilObjectID) != "" {
		t.Fatal("zero ref should be empty")
	}
}

func TestProjectFilter(t *testing.T) {
	uid := primitive.NewObjectID()
	team := primitive.NewObjectID()

	f, err := projectFilter(work.ProjectFilter{UserID: uid.Hex(), TeamIDs: []string{team.Hex()}, Status: "active"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if f["status"] != "active" {
		t.Fatalf("status filter missing: %v", f)
	}
	or, ok := f["$or"].(bson.A)
	if !ok || len(or) != 3 {
		t.Fatalf("expected owner/member/team clauses, got %v", f["$or"])
	}

	all, err := projectFilter(work.ProjectFilter{All: true})
	if err != nil || len(all) != 0 {
		t.Fatalf("admin filter should be empty: %v %v", all, err)
	}

	if _, err := projectFilter(work.ProjectFilter{UserID: "x"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found for malformed user, got %v", err)
	}
}

func TestMapErr(t *testing.T) {
	if !errors.Is(mapErr(mongo.ErrNoDocuments), auth.ErrNotFound) {
		t.Fatal("no documents should map to not found")
	}
	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	if !errors.Is(mapErr(dup), auth.ErrConflict) {
		t.Fatal("duplicate key should map to conflict")
	}
	if mapErr(nil) != nil {
		t.Fatal("nil stays nil")
	}
}
