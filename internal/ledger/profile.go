package ledger

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/arcade/internal/model"
)

// Profile defaults used before setup is saved.
const (
	DefaultLevel  = model.LevelA1
	DefaultAge    = 18
	DefaultReason = "personal growth"
)

// DailyQuota is the number of lesson API calls allowed per calendar day.
const DailyQuota = 5

const dateLayout = "2006-01-02"

type quotaDoc struct {
	Remaining     int    `json:"remaining"`
	LastResetDate string `json:"last_reset_date"`
}

// ProfileStore owns the user profile and the cached daily quota.
type ProfileStore struct {
	repo    Repository
	courses *CourseLedger
	now     func() time.Time
}

// Load returns the stored profile, or the default profile when none was saved.
// The default is not persisted.
func (p *ProfileStore) Load(ctx context.Context, userID string) (model.Profile, error) {
	profile := defaultProfile(userID)
	var stored model.Profile
	ok, err := loadJSON(ctx, p.repo, userID, keyProfile, &stored)
	if err != nil {
		return model.Profile{}, err
	}
	if ok && stored.Level.Valid() {
		profile.Level = stored.Level
		profile.Age = stored.Age
		profile.Reason = stored.Reason
	}
	q, err := p.loadQuota(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	profile.DailyQuota = q.Remaining
	profile.LastResetDate = q.LastResetDate
	return profile, nil
}

// Exists reports whether setup has been saved for the user.
func (p *ProfileStore) Exists(ctx context.Context, userID string) (bool, error) {
	var stored model.Profile
	ok, err := loadJSON(ctx, p.repo, userID, keyProfile, &stored)
	if err != nil {
		return false, err
	}
	return ok && stored.Level.Valid(), nil
}

// SaveSetup validates the form, persists the profile, and starts a fresh course.
// Re-running setup overwrites the previous profile and course and clears badges.
func (p *ProfileStore) SaveSetup(ctx context.Context, userID string, in SetupInput) (model.Profile, error) {
	if err := ValidateSetup(in); err != nil {
		return model.Profile{}, err
	}
	age, _ := strconv.Atoi(strings.TrimSpace(in.Age))
	profile := model.Profile{
		UserID: userID,
		Level:  model.Level(in.Level),
		Age:    age,
		Reason: strings.TrimSpace(in.Reason),
	}
	if err := putJSON(ctx, p.repo, userID, keyProfile, profile); err != nil {
		return model.Profile{}, err
	}
	if _, err := p.courses.reset(ctx, userID, profile); err != nil {
		return model.Profile{}, err
	}
	if err := p.repo.Delete(ctx, userID, keyBadges); err != nil {
		return model.Profile{}, err
	}
	return p.Load(ctx, userID)
}

// Restore overwrites the static profile fields without touching the course.
func (p *ProfileStore) Restore(ctx context.Context, userID string, profile model.Profile) error {
	profile.UserID = userID
	profile.DailyQuota = 0
	profile.LastResetDate = ""
	return putJSON(ctx, p.repo, userID, keyProfile, profile)
}

// Remaining returns the quota left today without consuming any.
func (p *ProfileStore) Remaining(ctx context.Context, userID string) (int, error) {
	q, err := p.loadQuota(ctx, userID)
	if err != nil {
		return 0, err
	}
	return q.Remaining, nil
}

// ConsumeQuota resets the counter on the first call of a new local day, then takes one call.
// It returns ErrQuotaExceeded when nothing is left. The server keeps the authoritative
// count; this is the optimistic local mirror.
func (p *ProfileStore) ConsumeQuota(ctx context.Context, userID string) (int, error) {
	today := p.today()
	var remaining int
	err := p.repo.Update(ctx, userID, keyQuota, func(old []byte) ([]byte, error) {
		q := decodeQuota(old)
		if q.LastResetDate != today {
			q = quotaDoc{Remaining: DailyQuota, LastResetDate: today}
		}
		if q.Remaining <= 0 {
			return nil, ErrQuotaExceeded
		}
		q.Remaining--
		remaining = q.Remaining
		return json.Marshal(q)
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// SyncQuota stores a remaining count reported by the server, clamped to [0, DailyQuota].
func (p *ProfileStore) SyncQuota(ctx context.Context, userID string, remaining int) (int, error) {
	q := quotaDoc{Remaining: clampQuota(remaining), LastResetDate: p.today()}
	if err := putJSON(ctx, p.repo, userID, keyQuota, q); err != nil {
		return 0, err
	}
	return q.Remaining, nil
}

func (p *ProfileStore) loadQuota(ctx context.Context, userID string) (quotaDoc, error) {
	raw, err := p.repo.Get(ctx, userID, keyQuota)
	if err != nil && !isNotFound(err) {
		return quotaDoc{}, err
	}
	q := decodeQuota(raw)
	if q.LastResetDate != p.today() {
		// A stale counter reads as a fresh day; the reset is written on the next consume.
		q.Remaining = DailyQuota
	}
	return q, nil
}

func (p *ProfileStore) today() string {
	return p.now().Local().Format(dateLayout)
}

func decodeQuota(raw []byte) quotaDoc {
	var q quotaDoc
	if !decodeJSON(raw, &q) {
		return quotaDoc{Remaining: DailyQuota}
	}
	q.Remaining = clampQuota(q.Remaining)
	return q
}

func clampQuota(n int) int {
	switch {
	case n < 0:
		return 0
	case n > DailyQuota:
		return DailyQuota
	default:
		return n
	}
}

func defaultProfile(userID string) model.Profile {
	return model.Profile{
		UserID:     userID,
		Level:      DefaultLevel,
		Age:        DefaultAge,
		Reason:     DefaultReason,
		DailyQuota: DailyQuota,
	}
}
