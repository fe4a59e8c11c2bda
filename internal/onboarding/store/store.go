// Package store keeps live onboarding sessions in memory with per-subject
// serialized access. Sessions are ephemeral: they live for the process
// lifetime only and are evicted when older than the configured TTL.
package store

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/louisbranch/gatehouse/internal/onboarding/domain"
)

const shardCount = 64

// Store maps subject ids to their live session. Operations on different
// subjects proceed in parallel; operations on the same subject are
// linearized so two concurrent handlers can never both observe and then
// advance the same stage.
type Store struct {
	ttl    time.Duration
	clock  func() time.Time
	shards [shardCount]shard
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	locks    map[string]*subjectLock
}

type subjectLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a session store. A non-positive ttl disables staleness
// eviction.
func New(ttl time.Duration) *Store {
	s := &Store{ttl: ttl, clock: time.Now}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]domain.Session)
		s.shards[i].locks = make(map[string]*subjectLock)
	}
	return s
}

// WithClock overrides the time source. Test hook.
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *Store) shard(subjectID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))
	return &s.shards[h.Sum32()%shardCount]
}

// Get returns the live session for subjectID. Expired sessions are evicted
// and reported as absent.
func (s *Store) Get(subjectID string) (domain.Session, bool) {
	sh := s.shard(subjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return s.liveLocked(sh, subjectID)
}

// Put stores the session under its subject id, replacing any previous one.
func (s *Store) Put(sess domain.Session) {
	sh := s.shard(sess.SubjectID)
	sh.mu.Lock()
	sh.sessions[sess.SubjectID] = sess
	sh.mu.Unlock()
}

// Remove deletes the subject's session if present.
func (s *Store) Remove(subjectID string) {
	sh := s.shard(subjectID)
	sh.mu.Lock()
	delete(sh.sessions, subjectID)
	sh.mu.Unlock()
}

// Do runs fn while holding the subject's lock. fn receives the live session,
// or nil when the subject has none, and returns the session to keep; a nil
// return removes the session. The subject lock is held for the full duration
// of fn, including any side effects fn performs, so a concurrent event for
// the same subject observes either the state before fn or after it, never an
// intermediate stage. Different subjects do not block each other.
func (s *Store) Do(subjectID string, fn func(current *domain.Session) *domain.Session) {
	sh := s.shard(subjectID)

	sh.mu.Lock()
	lock := sh.locks[subjectID]
	if lock == nil {
		lock = &subjectLock{}
		sh.locks[subjectID] = lock
	}
	lock.refs++
	sh.mu.Unlock()

	lock.mu.Lock()

	sh.mu.Lock()
	var current *domain.Session
	if sess, ok := s.liveLocked(sh, subjectID); ok {
		copied := sess
		current = &copied
	}
	sh.mu.Unlock()

	next := fn(current)

	sh.mu.Lock()
	if next != nil {
		sh.sessions[subjectID] = *next
	} else {
		delete(sh.sessions, subjectID)
	}
	lock.refs--
	if lock.refs == 0 {
		delete(sh.locks, subjectID)
	}
	sh.mu.Unlock()

	lock.mu.Unlock()
}

// Len reports the number of live sessions. Expired entries still count until
// observed; Len is for diagnostics only.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		total += len(sh.sessions)
		sh.mu.Unlock()
	}
	return total
}

func (s *Store) liveLocked(sh *shard, subjectID string) (domain.Session, bool) {
	sess, ok := sh.sessions[subjectID]
	if !ok {
		return domain.Session{}, false
	}
	if sess.Expired(s.clock(), s.ttl) {
		delete(sh.sessions, subjectID)
		return domain.Session{}, false
	}
	return sess, true
}
