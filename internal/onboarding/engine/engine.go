// Package engine drives the per-member onboarding state machine. It consumes
// dispatcher events, advances sessions through the secret/name/team stages,
// and performs the ordered side effects: redaction before replies, nickname
// assignment, role grant, and surface teardown.
package engine

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/gatehouse/internal/audit"
	"github.com/louisbranch/gatehouse/internal/onboarding/domain"
	"github.com/louisbranch/gatehouse/internal/onboarding/render"
	"github.com/louisbranch/gatehouse/internal/onboarding/store"
)

const (
	defaultMaxAttempts       = 3
	defaultConfirmationDelay = 10 * time.Second
	sideEffectTimeout        = 5 * time.Second
)

// Config holds the onboarding flow parameters.
type Config struct {
	GuildID         string
	VerifyChannelID string
	// TriggerPhrase starts the full verification flow on a case-insensitive
	// exact match in the verify channel.
	TriggerPhrase string
	// CommandPhrase starts the nickname-only flow, e.g. "!setnick".
	CommandPhrase string
	// Secret is the shared onboarding secret, compared by plain equality.
	Secret           string
	MaxAttempts      int
	AccessRoleName   string
	VerifiedRoleName string
	// MaxNicknameLength caps composed nicknames; zero means the platform
	// default of 32.
	MaxNicknameLength int
	// ConfirmationDelay is how long the success confirmation stays visible
	// before thread teardown.
	ConfirmationDelay time.Duration
	// IsolateThreads runs the verification dialogue in an invitee-only
	// thread instead of the shared channel.
	IsolateThreads bool
	// StartOnJoin begins the verification flow when a member joins.
	StartOnJoin bool
}

// Engine is the onboarding session state machine. Safe for concurrent use;
// same-subject events are serialized through the session store.
type Engine struct {
	cfg       Config
	sessions  *store.Store
	directory Directory
	notifier  Notifier
	redactor  Redactor
	loc       render.Localizer
	recorder  *audit.Recorder
	clock     func() time.Time
	tracer    trace.Tracer
	schedule  func(delay time.Duration, fn func())

	roleMu     sync.Mutex
	rolesByKey map[string]RoleRef

	threadMu    sync.Mutex
	openThreads map[string]string
}

// New creates an Engine. The recorder may be nil; outcomes are then not
// persisted.
func New(cfg Config, sessions *store.Store, directory Directory, notifier Notifier, redactor Redactor, loc render.Localizer, recorder *audit.Recorder) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MaxNicknameLength <= 0 {
		cfg.MaxNicknameLength = domain.DefaultMaxNicknameLength
	}
	if cfg.ConfirmationDelay <= 0 {
		cfg.ConfirmationDelay = defaultConfirmationDelay
	}
	return &Engine{
		cfg:       cfg,
		sessions:  sessions,
		directory: directory,
		notifier:  notifier,
		redactor:  redactor,
		loc:       loc,
		recorder:  recorder,
		clock:     time.Now,
		tracer:    otel.Tracer("gatehouse/onboarding"),
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
		rolesByKey:  make(map[string]RoleRef),
		openThreads: make(map[string]string),
	}
}

// WithClock overrides the time source. Test hook.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// WithScheduler overrides the delayed-teardown scheduler. Test hook.
func (e *Engine) WithScheduler(schedule func(delay time.Duration, fn func())) *Engine {
	if schedule != nil {
		e.schedule = schedule
	}
	return e
}

// HandleEvent routes one inbound event through the state machine. It never
// returns an error: terminal failures are reported to the member and end the
// session, everything else is logged and swallowed.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) {
	if ev.SubjectID == "" {
		return
	}
	ctx, span := e.tracer.Start(ctx, "onboarding.handle_event",
		trace.WithAttributes(attribute.Int("event.kind", int(ev.Kind))))
	defer span.End()

	switch ev.Kind {
	case KindMessage:
		e.handleMessage(ctx, ev)
	case KindRoleAdded:
		e.handleRoleAdded(ctx, ev)
	case KindMemberJoin:
		e.handleMemberJoin(ctx, ev)
	}
}

func (e *Engine) handleMessage(ctx context.Context, ev Event) {
	content := strings.TrimSpace(ev.Content)

	e.sessions.Do(ev.SubjectID, func(current *domain.Session) *domain.Session {
		// The manual command starts a fresh nickname-only session even when
		// one is already live.
		if e.isCommand(content) && e.inVerifyChannel(ev.SurfaceID) {
			return e.startNicknameFlow(ctx, ev)
		}

		if current == nil {
			if e.isTrigger(content) && e.inVerifyChannel(ev.SurfaceID) {
				return e.startVerification(ctx, ev)
			}
			return nil
		}

		if !current.BoundTo(ev.SurfaceID) {
			// Input on another surface belongs to someone else's conversation.
			return current
		}

		// Privacy outranks ordering: the raw input disappears before any
		// reply, whatever the validation outcome.
		e.redact(ctx, ev)

		switch current.Stage {
		case domain.StageAwaitingSecret:
			return e.handleSecret(ctx, ev, *current)
		case domain.StageAwaitingName:
			return e.handleName(ctx, ev, *current)
		case domain.StageAwaitingTeam:
			return e.handleTeam(ctx, ev, *current)
		default:
			return current
		}
	})
}

func (e *Engine) handleRoleAdded(ctx context.Context, ev Event) {
	if !slices.Contains(ev.AddedRoleNames, e.cfg.VerifiedRoleName) {
		return
	}

	e.sessions.Do(ev.SubjectID, func(current *domain.Session) *domain.Session {
		if current != nil {
			if current.Stage == domain.StageAwaitingSecret {
				// Someone verified the member for us; consistency outranks
				// finishing the challenge. Drop the session without a word,
				// and before any further I/O.
				e.sessions.Remove(ev.SubjectID)
				e.record(ctx, audit.Record{
					SubjectID: ev.SubjectID,
					Outcome:   audit.OutcomeCancelled,
					Detail:    "verified role granted mid-challenge",
				})
				return nil
			}
			return current
		}

		if e.subjectHoldsAccessRole(ctx, ev.SubjectID) {
			return nil
		}
		surfaceID := e.cfg.VerifyChannelID
		if surfaceID == "" {
			surfaceID = ev.SurfaceID
		}
		sess, err := domain.NewSession(ev.SubjectID, surfaceID, domain.StageAwaitingName, e.cfg.MaxAttempts, e.clock)
		if err != nil {
			log.Printf("onboarding: start name collection subject=%q: %v", ev.SubjectID, err)
			return nil
		}
		e.send(ctx, surfaceID, ev.SubjectID, render.VerifiedNamePrompt(e.loc))
		return &sess
	})
}

func (e *Engine) handleMemberJoin(ctx context.Context, ev Event) {
	if !e.cfg.StartOnJoin {
		return
	}
	e.sessions.Do(ev.SubjectID, func(current *domain.Session) *domain.Session {
		if current != nil {
			return current
		}
		joinEv := ev
		if joinEv.SurfaceID == "" {
			joinEv.SurfaceID = e.cfg.VerifyChannelID
		}
		return e.startVerification(ctx, joinEv)
	})
}

func (e *Engine) startVerification(ctx context.Context, ev Event) *domain.Session {
	if e.subjectHoldsAccessRole(ctx, ev.SubjectID) {
		// Already onboarded; re-entry is a silent no-op.
		return nil
	}

	surfaceID := ev.SurfaceID
	if e.cfg.IsolateThreads {
		threadID, err := e.isolatedSurface(ctx, ev.SurfaceID, ev.SubjectID)
		if err != nil {
			log.Printf("onboarding: create thread subject=%q: %v", ev.SubjectID, err)
			return nil
		}
		surfaceID = threadID
	}

	sess, err := domain.NewSession(ev.SubjectID, surfaceID, domain.StageAwaitingSecret, e.cfg.MaxAttempts, e.clock)
	if err != nil {
		log.Printf("onboarding: start verification subject=%q: %v", ev.SubjectID, err)
		return nil
	}
	e.send(ctx, surfaceID, ev.SubjectID, render.SecretPrompt(e.loc))
	return &sess
}

func (e *Engine) startNicknameFlow(ctx context.Context, ev Event) *domain.Session {
	sess, err := domain.NewSession(ev.SubjectID, ev.SurfaceID, domain.StageAwaitingName, e.cfg.MaxAttempts, e.clock)
	if err != nil {
		log.Printf("onboarding: start nickname flow subject=%q: %v", ev.SubjectID, err)
		return nil
	}
	e.send(ctx, ev.SurfaceID, ev.SubjectID, render.CommandStartPrompt(e.loc))
	return &sess
}

func (e *Engine) handleSecret(ctx context.Context, ev Event, current domain.Session) *domain.Session {
	// An administrator may have verified the member while the challenge was
	// pending; the dialogue must not outlive that decision.
	if e.subjectHoldsVerifiedRole(ctx, ev.SubjectID) {
		e.sessions.Remove(ev.SubjectID)
		e.record(ctx, audit.Record{
			SubjectID: ev.SubjectID,
			Outcome:   audit.OutcomeCancelled,
			Detail:    "verified role observed mid-challenge",
		})
		return nil
	}

	if strings.TrimSpace(ev.Content) == e.cfg.Secret {
		next, err := current.WithSecretAccepted()
		if err != nil {
			log.Printf("onboarding: accept secret subject=%q: %v", ev.SubjectID, err)
			return &current
		}
		e.send(ctx, current.SurfaceID, ev.SubjectID, render.NamePrompt(e.loc))
		return &next
	}

	next, exhausted := current.WithFailedAttempt()
	if !exhausted {
		e.send(ctx, current.SurfaceID, ev.SubjectID, render.SecretRetryNotice(e.loc, next.AttemptsRemaining))
		return &next
	}

	// Dead before any further I/O: a near-simultaneous message for this
	// subject must not find the session live.
	e.sessions.Remove(ev.SubjectID)
	e.send(ctx, current.SurfaceID, ev.SubjectID, render.SecretExhaustedNotice(e.loc))
	e.record(ctx, audit.Record{
		SubjectID: ev.SubjectID,
		Outcome:   audit.OutcomeExhausted,
		Detail:    "secret attempts exhausted",
	})
	e.teardownSurface(ev.SubjectID, current.SurfaceID, nil)
	return nil
}

func (e *Engine) handleName(ctx context.Context, ev Event, current domain.Session) *domain.Session {
	name := domain.StripHandle(ev.Content)
	if name == "" {
		e.send(ctx, current.SurfaceID, ev.SubjectID, render.InvalidNameNotice(e.loc))
		return &current
	}

	next, err := current.WithName(name)
	if err != nil {
		log.Printf("onboarding: record name subject=%q: %v", ev.SubjectID, err)
		return &current
	}
	e.send(ctx, current.SurfaceID, ev.SubjectID, render.TeamPrompt(e.loc))
	return &next
}

func (e *Engine) handleTeam(ctx context.Context, ev Event, current domain.Session) *domain.Session {
	team := domain.StripHandle(ev.Content)
	if team == "" {
		e.send(ctx, current.SurfaceID, ev.SubjectID, render.InvalidTeamNotice(e.loc))
		return &current
	}

	next, err := current.WithTeam(team)
	if err != nil {
		log.Printf("onboarding: record team subject=%q: %v", ev.SubjectID, err)
		return &current
	}

	nickname := domain.ComposeNickname(next.CollectedName, next.CollectedTeam, e.cfg.MaxNicknameLength)

	// Both privileged steps run exactly once, independently, so the member
	// learns precisely which one an administrator has to fix.
	nickErr := e.directory.SetNickname(ctx, ev.SubjectID, nickname)

	role, roleErr := e.ensureRole(ctx, e.cfg.AccessRoleName)
	if roleErr == nil {
		roleErr = e.directory.GrantRole(ctx, ev.SubjectID, role)
	}

	// Whatever happened, the session is over before anyone hears about it.
	e.sessions.Remove(ev.SubjectID)

	if nickErr == nil && roleErr == nil {
		confirmation := e.send(ctx, next.SurfaceID, ev.SubjectID, render.SuccessNotice(e.loc, nickname, role.Name))
		e.record(ctx, audit.Record{
			SubjectID: ev.SubjectID,
			Outcome:   audit.OutcomeCompleted,
			Nickname:  nickname,
		})
		e.teardownSurface(ev.SubjectID, next.SurfaceID, confirmation)
		return nil
	}

	outcome := audit.OutcomeFailed
	detail := ""
	if nickErr != nil {
		log.Printf("onboarding: set nickname subject=%q: %v", ev.SubjectID, nickErr)
		detail = "nickname: " + nickErr.Error()
		if errors.Is(nickErr, ErrPermissionDenied) {
			outcome = audit.OutcomeDenied
			e.send(ctx, next.SurfaceID, ev.SubjectID, render.NicknameDeniedNotice(e.loc))
		} else {
			e.send(ctx, next.SurfaceID, ev.SubjectID, render.NicknameFailedNotice(e.loc))
		}
	}
	if roleErr != nil {
		log.Printf("onboarding: grant role subject=%q: %v", ev.SubjectID, roleErr)
		if detail != "" {
			detail += "; "
		}
		detail += "role: " + roleErr.Error()
		if errors.Is(roleErr, ErrPermissionDenied) {
			outcome = audit.OutcomeDenied
			e.send(ctx, next.SurfaceID, ev.SubjectID, render.RoleDeniedNotice(e.loc))
		} else {
			e.send(ctx, next.SurfaceID, ev.SubjectID, render.RoleFailedNotice(e.loc))
		}
	}
	e.record(ctx, audit.Record{
		SubjectID: ev.SubjectID,
		Outcome:   outcome,
		Nickname:  nickname,
		Detail:    detail,
	})
	e.teardownSurface(ev.SubjectID, next.SurfaceID, nil)
	return nil
}

func (e *Engine) isTrigger(content string) bool {
	return e.cfg.TriggerPhrase != "" && strings.EqualFold(content, e.cfg.TriggerPhrase)
}

func (e *Engine) isCommand(content string) bool {
	if e.cfg.CommandPhrase == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(content), strings.ToLower(e.cfg.CommandPhrase))
}

func (e *Engine) inVerifyChannel(surfaceID string) bool {
	return e.cfg.VerifyChannelID == "" || surfaceID == e.cfg.VerifyChannelID
}

func (e *Engine) subjectHoldsAccessRole(ctx context.Context, subjectID string) bool {
	return e.subjectHoldsRole(ctx, subjectID, e.cfg.AccessRoleName)
}

func (e *Engine) subjectHoldsVerifiedRole(ctx context.Context, subjectID string) bool {
	return e.subjectHoldsRole(ctx, subjectID, e.cfg.VerifiedRoleName)
}

// subjectHoldsRole reports a definite yes; lookup failures count as "no" so
// directory trouble degrades to running the flow rather than blocking it.
func (e *Engine) subjectHoldsRole(ctx context.Context, subjectID, roleName string) bool {
	if roleName == "" {
		return false
	}
	role, err := e.ensureRole(ctx, roleName)
	if err != nil {
		log.Printf("onboarding: resolve role %q: %v", roleName, err)
		return false
	}
	has, err := e.directory.SubjectHasRole(ctx, subjectID, role)
	if err != nil {
		log.Printf("onboarding: check role %q subject=%q: %v", roleName, subjectID, err)
		return false
	}
	return has
}

// ensureRole resolves a role by name once per guild and memoizes the result.
func (e *Engine) ensureRole(ctx context.Context, name string) (RoleRef, error) {
	key := e.cfg.GuildID + "/" + name
	e.roleMu.Lock()
	defer e.roleMu.Unlock()
	if role, ok := e.rolesByKey[key]; ok {
		return role, nil
	}
	role, err := e.directory.EnsureRole(ctx, e.cfg.GuildID, name)
	if err != nil {
		return RoleRef{}, err
	}
	e.rolesByKey[key] = role
	return role, nil
}

// isolatedSurface returns the subject's open thread or creates one.
func (e *Engine) isolatedSurface(ctx context.Context, parentSurfaceID, subjectID string) (string, error) {
	e.threadMu.Lock()
	threadID, ok := e.openThreads[subjectID]
	e.threadMu.Unlock()
	if ok {
		return threadID, nil
	}

	threadID, err := e.notifier.CreateIsolatedSurface(ctx, parentSurfaceID, subjectID)
	if err != nil {
		return "", err
	}
	e.threadMu.Lock()
	e.openThreads[subjectID] = threadID
	e.threadMu.Unlock()
	return threadID, nil
}

// teardownSurface schedules the post-dialogue cleanup of an isolated thread:
// wait for the member to read the last notice, delete the confirmation, then
// archive and lock the thread. Fire-and-forget; failures are swallowed.
func (e *Engine) teardownSurface(subjectID, surfaceID string, confirmation *MessageRef) {
	if !e.cfg.IsolateThreads {
		return
	}
	e.schedule(e.cfg.ConfirmationDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		if confirmation != nil {
			if err := e.notifier.DeleteMessage(ctx, *confirmation); err != nil {
				log.Printf("onboarding: delete confirmation surface=%q: %v", surfaceID, err)
			}
		}
		if err := e.notifier.ArchiveSurface(ctx, surfaceID); err != nil {
			log.Printf("onboarding: archive surface=%q: %v", surfaceID, err)
		}
		e.threadMu.Lock()
		delete(e.openThreads, subjectID)
		e.threadMu.Unlock()
	})
}

func (e *Engine) redact(ctx context.Context, ev Event) {
	if e.redactor == nil || ev.MessageID == "" {
		return
	}
	e.redactor.DeleteOriginatingMessage(ctx, ev)
}

// send delivers one localized notice addressed to the subject. Send failures
// are logged and swallowed; the dialogue carries on.
func (e *Engine) send(ctx context.Context, surfaceID, subjectID, body string) *MessageRef {
	text := body
	if mention := e.notifier.Mention(subjectID); mention != "" {
		text = mention + " " + body
	}
	ref, err := e.notifier.Send(ctx, surfaceID, text)
	if err != nil {
		log.Printf("onboarding: send notice surface=%q subject=%q: %v", surfaceID, subjectID, err)
		return nil
	}
	return &ref
}

func (e *Engine) record(ctx context.Context, record audit.Record) {
	if err := e.recorder.Record(ctx, record); err != nil {
		log.Printf("onboarding: audit record subject=%q: %v", record.SubjectID, err)
	}
}
