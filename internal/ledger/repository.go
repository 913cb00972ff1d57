// Package ledger owns the per-user profile, course progress, and lesson archives.
package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/verte-zerg/arcade/internal/store"
)

// Repository persists JSON documents keyed by user and document key.
type Repository interface {
	Get(ctx context.Context, userID, key string) ([]byte, error)
	Put(ctx context.Context, userID, key string, value []byte) error
	Delete(ctx context.Context, userID, key string) error
	Update(ctx context.Context, userID, key string, fn func(old []byte) ([]byte, error)) error
	Append(ctx context.Context, userID, key string, item []byte, limit int) (int, error)
}

// Document keys.
const (
	keyProfile  = "profile"
	keyQuota    = "quota"
	keyCourse   = "course"
	keyLessons  = "lessons"
	keyHomework = "homework"
	keyBadges   = "badges"
)

// loadJSON decodes the document into dst. It reports false when the document is
// missing or corrupt.
func loadJSON(ctx context.Context, repo Repository, userID, key string, dst any) (bool, error) {
	raw, err := repo.Get(ctx, userID, key)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return decodeJSON(raw, dst), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func decodeJSON(raw []byte, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func putJSON(ctx context.Context, repo Repository, userID, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return repo.Put(ctx, userID, key, raw)
}
