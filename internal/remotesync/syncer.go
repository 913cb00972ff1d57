package remotesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/logger"
	"github.com/verte-zerg/arcade/internal/model"
)

// Remote document fields.
const (
	FieldProfile  = "profile"
	FieldCourse   = "course"
	FieldLessons  = "lessons"
	FieldHomework = "homework"
	FieldBadges   = "badges"
)

// Defaults for remote reads.
const (
	DefaultReadAttempts = 3
	DefaultReadBackoff  = time.Second
	pushTimeout         = 15 * time.Second
)

// SyncError reports a failed remote operation. It is informational: local state
// stays authoritative.
type SyncError struct {
	Op     string
	UserID string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("remote sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Options tunes a Syncer.
type Options struct {
	ReadAttempts int
	ReadBackoff  time.Duration
}

// Syncer pushes local snapshots and pulls remote copies. A Syncer without a
// DocumentStore does nothing.
type Syncer struct {
	ledger   *ledger.Ledger
	remote   DocumentStore
	log      *logger.Logger
	attempts int
	backoff  time.Duration

	warnings chan error
	wg       sync.WaitGroup

	// pushMu orders remote writes and keeps pulls from interleaving with them.
	pushMu  sync.Mutex
	mu      sync.Mutex
	idle    *sync.Cond
	pending map[string]int
}

// New builds a Syncer over the local ledger. remote may be nil.
func New(l *ledger.Ledger, remote DocumentStore, log *logger.Logger, opts Options) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	attempts := opts.ReadAttempts
	if attempts <= 0 {
		attempts = DefaultReadAttempts
	}
	backoff := opts.ReadBackoff
	if backoff <= 0 {
		backoff = DefaultReadBackoff
	}
	s := &Syncer{
		ledger:   l,
		remote:   remote,
		log:      log.With("service", "RemoteSync"),
		attempts: attempts,
		backoff:  backoff,
		warnings: make(chan error, 16),
		pending:  make(map[string]int),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Enabled reports whether a remote store is configured.
func (s *Syncer) Enabled() bool {
	return s != nil && s.remote != nil
}

// Warnings delivers failed pushes. Warnings are dropped when nobody drains the channel.
func (s *Syncer) Warnings() <-chan error {
	if s == nil {
		return nil
	}
	return s.warnings
}

// Push writes the local state to the remote store in the background. Pushes run
// one at a time and each takes its snapshot when it runs, so the last write
// carries the newest state. Failures are logged and sent to Warnings, never retried.
func (s *Syncer) Push(ctx context.Context, userID string) {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	s.pending[userID]++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.done(userID)
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()

		s.pushMu.Lock()
		defer s.pushMu.Unlock()
		if err := s.merge(pctx, userID); err != nil {
			s.warn(err, userID)
			return
		}
		s.log.Debug("pushed snapshot", "user_id", userID)
	}()
}

// PushNow writes the local state and waits for the result.
func (s *Syncer) PushNow(ctx context.Context, userID string) error {
	if !s.Enabled() {
		return nil
	}
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	return s.merge(ctx, userID)
}

func (s *Syncer) merge(ctx context.Context, userID string) error {
	fields, err := s.fields(ctx, userID)
	if err != nil {
		return &SyncError{Op: "push", UserID: userID, Err: err}
	}
	if err := s.remote.Merge(ctx, userID, fields); err != nil {
		return &SyncError{Op: "push", UserID: userID, Err: err}
	}
	return nil
}

func (s *Syncer) done(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID]--
	if s.pending[userID] <= 0 {
		delete(s.pending, userID)
	}
	s.idle.Broadcast()
}

// waitPushed blocks until no background push for userID is outstanding.
func (s *Syncer) waitPushed(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending[userID] > 0 {
		s.idle.Wait()
	}
}

// DrainWarnings returns the failed pushes queued so far.
func (s *Syncer) DrainWarnings() []error {
	if s == nil {
		return nil
	}
	var out []error
	for {
		select {
		case err := <-s.warnings:
			out = append(out, err)
		default:
			return out
		}
	}
}

// Wait blocks until background pushes finish.
func (s *Syncer) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Pull fetches the remote document and, when it exists, replaces the matching local
// parts with it. Outstanding pushes for the user land first so local writes are not
// replaced by an older remote copy. Reads are retried with a fixed backoff. It
// reports whether local state was replaced.
func (s *Syncer) Pull(ctx context.Context, userID string) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	s.waitPushed(userID)
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	var (
		doc    map[string][]byte
		exists bool
		err    error
	)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		doc, exists, err = s.remote.Fetch(ctx, userID)
		if err == nil {
			break
		}
		s.log.Warn("remote read failed", "user_id", userID, "attempt", attempt, "error", err)
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, &SyncError{Op: "pull", UserID: userID, Err: ctx.Err()}
		case <-time.After(s.backoff):
		}
	}
	if err != nil {
		return false, &SyncError{Op: "pull", UserID: userID, Err: err}
	}
	if !exists {
		return false, nil
	}
	snap := s.decode(userID, doc)
	if err := s.ledger.Restore(ctx, userID, snap); err != nil {
		return false, fmt.Errorf("restore remote copy: %w", err)
	}
	return true, nil
}

func (s *Syncer) fields(ctx context.Context, userID string) (map[string][]byte, error) {
	snap, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	parts := map[string]any{
		FieldLessons:  snap.Lessons,
		FieldHomework: snap.Homework,
		FieldBadges:   snap.Badges,
	}
	// Unsaved defaults stay local.
	if ok, err := s.ledger.Profiles.Exists(ctx, userID); err != nil {
		return nil, err
	} else if ok {
		parts[FieldProfile] = snap.Profile
	}
	if ok, err := s.ledger.Courses.Exists(ctx, userID); err != nil {
		return nil, err
	} else if ok {
		parts[FieldCourse] = snap.Course
	}
	fields := make(map[string][]byte, len(parts))
	for name, v := range parts {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		fields[name] = raw
	}
	return fields, nil
}

// decode turns remote fields into a snapshot. Corrupt fields are skipped so the
// matching local part is kept.
func (s *Syncer) decode(userID string, doc map[string][]byte) model.Snapshot {
	var snap model.Snapshot
	decodeField(s, userID, doc, FieldProfile, &snap.Profile)
	decodeField(s, userID, doc, FieldCourse, &snap.Course)
	decodeField(s, userID, doc, FieldLessons, &snap.Lessons)
	decodeField(s, userID, doc, FieldHomework, &snap.Homework)
	decodeField(s, userID, doc, FieldBadges, &snap.Badges)
	return snap
}

func decodeField[T any](s *Syncer, userID string, doc map[string][]byte, name string, dst *T) {
	raw, ok := doc[name]
	if !ok || len(raw) == 0 {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.Warn("skipping corrupt remote field", "user_id", userID, "field", name, "error", err)
		return
	}
	*dst = v
}

func (s *Syncer) warn(err error, userID string) {
	s.log.Warn("remote write failed", "user_id", userID, "error", err)
	select {
	case s.warnings <- err:
	default:
	}
}

// IsSyncError reports whether err came from the remote store.
func IsSyncError(err error) bool {
	var syncErr *SyncError
	return errors.As(err, &syncErr)
}
