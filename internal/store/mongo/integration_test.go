//go:build integration

package mongo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	s, err := Open(ctx, uri, "opsfloww_test")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func seedUser(t *testing.T, s *Store, email string) *auth.User {
	t.Helper()
	u := &auth.User{Name: "Seed", Email: email, Role: auth.RoleUser, Active: true, PasswordHash: "x", Settings: auth.DefaultSettings()}
	if err := s.Create(context.Background(), u); err != nil {
		t.Fatalf("create: %v", err)
	}
	return u
}

func TestIntegrationUniqueEmail(t *testing.T) {
	s := setupStore(t)
	seedUser(t, s, "dup@example.com")
	err := s.Create(context.Background(), &auth.User{Email: "dup@example.com", Active: true})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestIntegrationConcurrentFailuresLock(t *testing.T) {
	s := setupStore(t)
	u := seedUser(t, s, "lock@example.com")
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordFailedLogin(context.Background(), u.ID, 5, 15*time.Minute, now); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.FindByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.LoginAttempts != 5 || !got.IsLocked(now) {
		t.Fatalf("expected 5 attempts and a lock, got %d lock=%v", got.LoginAttempts, got.LockUntil)
	}
}

func TestIntegrationTokenDigestSingleUse(t *testing.T) {
	s := setupStore(t)
	u := seedUser(t, s, "reset@example.com")
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.SetTokenDigest(ctx, u.ID, auth.TokenPasswordReset, "digest", now.Add(time.Hour)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := s.ConsumeTokenDigest(ctx, auth.TokenEmailVerification, "digest", now); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("token kinds must not cross, got %v", err)
	}
	if _, err := s.ConsumeTokenDigest(ctx, auth.TokenPasswordReset, "digest", now); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := s.ConsumeTokenDigest(ctx, auth.TokenPasswordReset, "digest", now); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("second consume should fail, got %v", err)
	}
}

func TestIntegrationProjectVisibilityAndCascade(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "owner@example.com")
	member := seedUser(t, s, "member@example.com")
	stranger := seedUser(t, s, "stranger@example.com")

	team := &work.Team{Name: "Core", LeaderID: owner.ID, MemberIDs: []string{member.ID}, CreatedBy: owner.ID}
	if err := s.CreateTeam(ctx, team); err != nil {
		t.Fatalf("team: %v", err)
	}
	ids, err := s.TeamIDsForUser(ctx, member.ID)
	if err != nil || len(ids) != 1 || ids[0] != team.ID {
		t.Fatalf("team lookup: %v %v", ids, err)
	}

	p := &work.Project{Name: "Apollo", Status: "active", Priority: "high", OwnerID: owner.ID, TeamIDs: []string{team.ID}}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("project: %v", err)
	}
	got, err := s.ListProjects(ctx, work.ProjectFilter{UserID: member.ID, TeamIDs: ids})
	if err != nil || len(got) != 1 {
		t.Fatalf("member should see team project: %v %v", got, err)
	}
	got, err = s.ListProjects(ctx, work.ProjectFilter{UserID: stranger.ID})
	if err != nil || len(got) != 0 {
		t.Fatalf("stranger should see nothing: %v %v", got, err)
	}

	task := &work.Task{ProjectID: p.ID, Title: "Ship", Status: "todo", Priority: "medium", ReporterID: owner.ID}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := s.CreateTask(ctx, &work.Task{ProjectID: primitive.NewObjectID().Hex(), Title: "orphan"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("task without project should fail, got %v", err)
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("task should be removed with its project, got %v", err)
	}
}
