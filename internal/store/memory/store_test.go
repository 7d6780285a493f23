package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

func seedUser(t *testing.T, s *Store, email string) *auth.User {
	t.Helper()
	u := &auth.User{Name: "Seed", Email: email, Role: auth.RoleUser, Active: true, PasswordHash: "x"}
	if err := s.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return u
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	s := New()
	seedUser(t, s, "a@example.com")
	err := s.Create(context.Background(), &auth.User{Email: "a@example.com", Active: true})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInactiveUsersAreHidden(t *testing.T) {
	s := New()
	u := seedUser(t, s, "gone@example.com")
	if err := s.Deactivate(context.Background(), u.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := s.FindByID(context.Background(), u.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by id, got %v", err)
	}
	if _, err := s.FindByEmail(context.Background(), "gone@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by email, got %v", err)
	}
}

func TestRecordFailedLoginConcurrentKeepsEveryIncrement(t *testing.T) {
	s := New()
	u := seedUser(t, s, "race@example.com")
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordFailedLogin(context.Background(), u.ID, 5, 15*time.Minute, now); err != nil {
				t.Errorf("RecordFailedLogin: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.FindByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.LoginAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", got.LoginAttempts)
	}
	if !got.IsLocked(now) {
		t.Fatal("expected account to be locked after crossing the threshold")
	}
}

func TestConsumeTokenDigestIsSingleUse(t *testing.T) {
	s := New()
	u := seedUser(t, s, "tok@example.com")
	ctx := context.Background()
	now := time.Now()
	if err := s.SetTokenDigest(ctx, u.ID, auth.TokenPasswordReset, "digest", now.Add(time.Hour)); err != nil {
		t.Fatalf("SetTokenDigest: %v", err)
	}
	if _, err := s.ConsumeTokenDigest(ctx, auth.TokenEmailVerification, "digest", now); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("token namespaces must not overlap, got %v", err)
	}
	if _, err := s.ConsumeTokenDigest(ctx, auth.TokenPasswordReset, "digest", now); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := s.ConsumeTokenDigest(ctx, auth.TokenPasswordReset, "digest", now); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("second consume should fail, got %v", err)
	}
}

func TestPurgeExpiredClearsElapsedState(t *testing.T) {
	s := New()
	u := seedUser(t, s, "purge@example.com")
	ctx := context.Background()
	now := time.Now()
	_ = s.SetTokenDigest(ctx, u.ID, auth.TokenEmailVerification, "d", now.Add(-time.Minute))
	if _, err := s.RecordFailedLogin(ctx, u.ID, 1, time.Second, now.Add(-time.Hour)); err != nil {
		t.Fatalf("RecordFailedLogin: %v", err)
	}

	n, err := s.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record touched, got %d", n)
	}
	got, _ := s.FindByID(ctx, u.ID)
	if got.EmailVerificationToken != "" || got.LockUntil != nil || got.LoginAttempts != 0 {
		t.Fatalf("expected cleared state, got %+v", got)
	}
}

func TestTeamIDsForUserAndProjectVisibility(t *testing.T) {
	s := New()
	ctx := context.Background()
	team := &work.Team{Name: "Core", LeaderID: "lead", MemberIDs: []string{"m1"}}
	if err := s.CreateTeam(ctx, team); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	ids, _ := s.TeamIDsForUser(ctx, "m1")
	if len(ids) != 1 || ids[0] != team.ID {
		t.Fatalf("unexpected team ids %v", ids)
	}

	mustProject := func(p *work.Project) {
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatalf("CreateProject: %v", err)
		}
	}
	mustProject(&work.Project{Name: "owned", OwnerID: "m1", Status: "active"})
	mustProject(&work.Project{Name: "team", OwnerID: "x", TeamIDs: []string{team.ID}, Status: "active"})
	mustProject(&work.Project{Name: "hidden", OwnerID: "x", Status: "active"})

	list, err := s.ListProjects(ctx, work.ProjectFilter{UserID: "m1", TeamIDs: ids})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 visible projects, got %d", len(list))
	}
	all, _ := s.ListProjects(ctx, work.ProjectFilter{All: true})
	if len(all) != 3 {
		t.Fatalf("expected 3 projects for admin listing, got %d", len(all))
	}
}

func TestDeleteProjectCascadesTasks(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &work.Project{Name: "p", OwnerID: "o"}
	_ = s.CreateProject(ctx, p)
	task := &work.Task{ProjectID: p.ID, Title: "t", ReporterID: "o"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected task to be removed, got %v", err)
	}
}
