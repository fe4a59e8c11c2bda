package domain

import (
	"errors"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewSessionValidates(t *testing.T) {
	now := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	tests := []struct {
		name      string
		subjectID string
		surfaceID string
		stage     Stage
		wantErr   error
	}{
		{"missing subject", "", "surface-1", StageAwaitingSecret, ErrEmptySubjectID},
		{"missing surface", "subject-1", "  ", StageAwaitingSecret, ErrEmptySurfaceID},
		{"bad entry stage", "subject-1", "surface-1", StageAwaitingTeam, ErrInvalidStartStage},
		{"secret entry", "subject-1", "surface-1", StageAwaitingSecret, nil},
		{"name entry", "subject-1", "surface-1", StageAwaitingName, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess, err := NewSession(tc.subjectID, tc.surfaceID, tc.stage, 3, now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("new session: %v", err)
			}
			if sess.Stage != tc.stage {
				t.Fatalf("expected stage %v, got %v", tc.stage, sess.Stage)
			}
			if sess.AttemptsRemaining != 3 {
				t.Fatalf("expected 3 attempts, got %d", sess.AttemptsRemaining)
			}
			if !sess.CreatedAt.Equal(now()) {
				t.Fatalf("expected created at %v, got %v", now(), sess.CreatedAt)
			}
		})
	}
}

func TestNewSessionClampsAttempts(t *testing.T) {
	sess, err := NewSession("subject-1", "surface-1", StageAwaitingSecret, 0, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if sess.AttemptsRemaining != 1 {
		t.Fatalf("expected clamped attempts 1, got %d", sess.AttemptsRemaining)
	}
}

func TestSessionStageAdvancesMonotonically(t *testing.T) {
	sess, err := NewSession("subject-1", "surface-1", StageAwaitingSecret, 3, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	sess, err = sess.WithSecretAccepted()
	if err != nil {
		t.Fatalf("accept secret: %v", err)
	}
	if sess.Stage != StageAwaitingName {
		t.Fatalf("expected awaiting-name, got %v", sess.Stage)
	}
	if _, err := sess.WithSecretAccepted(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	sess, err = sess.WithName("Noor")
	if err != nil {
		t.Fatalf("record name: %v", err)
	}
	if sess.Stage != StageAwaitingTeam {
		t.Fatalf("expected awaiting-team, got %v", sess.Stage)
	}
	if sess.CollectedName != "Noor" {
		t.Fatalf("expected collected name, got %q", sess.CollectedName)
	}
	if _, err := sess.WithName("again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	sess, err = sess.WithTeam("Falcons")
	if err != nil {
		t.Fatalf("record team: %v", err)
	}
	if sess.CollectedTeam != "Falcons" {
		t.Fatalf("expected collected team, got %q", sess.CollectedTeam)
	}
}

func TestSessionRejectsEmptyCollectedValues(t *testing.T) {
	sess, err := NewSession("subject-1", "surface-1", StageAwaitingName, 3, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := sess.WithName("   "); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected empty name error, got %v", err)
	}
	if sess.CollectedName != "" {
		t.Fatalf("expected name untouched, got %q", sess.CollectedName)
	}

	sess, err = sess.WithName("Noor")
	if err != nil {
		t.Fatalf("record name: %v", err)
	}
	if _, err := sess.WithTeam(""); !errors.Is(err, ErrEmptyTeam) {
		t.Fatalf("expected empty team error, got %v", err)
	}
}

func TestSessionAttemptsNeverNegative(t *testing.T) {
	sess, err := NewSession("subject-1", "surface-1", StageAwaitingSecret, 2, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	sess, exhausted := sess.WithFailedAttempt()
	if exhausted {
		t.Fatal("expected attempts to remain")
	}
	sess, exhausted = sess.WithFailedAttempt()
	if !exhausted {
		t.Fatal("expected exhaustion")
	}
	sess, _ = sess.WithFailedAttempt()
	if sess.AttemptsRemaining != 0 {
		t.Fatalf("expected attempts floored at 0, got %d", sess.AttemptsRemaining)
	}
}

func TestSessionExpiry(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess, err := NewSession("subject-1", "surface-1", StageAwaitingSecret, 3, fixedClock(created))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if sess.Expired(created.Add(time.Minute), 10*time.Minute) {
		t.Fatal("session should be live within ttl")
	}
	if !sess.Expired(created.Add(11*time.Minute), 10*time.Minute) {
		t.Fatal("session should be expired past ttl")
	}
	if sess.Expired(created.Add(1000*time.Hour), 0) {
		t.Fatal("zero ttl disables expiry")
	}
}

func TestSessionBoundTo(t *testing.T) {
	sess, err := NewSession("subject-1", "surface-1", StageAwaitingSecret, 3, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if !sess.BoundTo("surface-1") {
		t.Fatal("expected bound surface match")
	}
	if sess.BoundTo("surface-2") {
		t.Fatal("expected mismatch for other surface")
	}
}

func TestStripHandle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Noor", "Noor"},
		{"  Noor  ", "Noor"},
		{"@Noor", "Noor"},
		{"@@Noor", "Noor"},
		{"  @ Noor ", "Noor"},
		{"   ", ""},
		{"@", ""},
		{"No@r", "No@r"},
	}
	for _, tc := range tests {
		if got := StripHandle(tc.raw); got != tc.want {
			t.Fatalf("StripHandle(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
