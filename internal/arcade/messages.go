package arcade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/lessonapi"
	"github.com/verte-zerg/arcade/internal/remotesync"
)

// User-facing messages.
const (
	MsgQuotaExceeded   = "You've reached your daily lesson limit (5). Try again tomorrow!"
	MsgUnauthorized    = "Please log in to generate lessons."
	MsgEndpointMissing = "Lesson service endpoint not found. Contact support."
	MsgCORS            = "CORS error: Backend not allowing requests. Contact support or check ad blockers."
	MsgNetwork         = "Network error: Check your internet connection or ad blockers."
	MsgStorageFull     = "Storage full."
	MsgNoLesson        = "No lesson found to update progress."
	MsgInvalidActivity = "Invalid action or skill focus."
	MsgPullFailed      = "Failed to load data from server. Using local data."
	MsgPushFailed      = "Could not save to server. Your progress is kept on this device."
)

// UserMessage converts any failure into the message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		verr    *ledger.ValidationError
		skill   *ledger.UnknownSkillError
		cached  *CachedQuotaError
		apiErr  *lessonapi.APIError
		syncErr *remotesync.SyncError
	)
	switch {
	case errors.As(err, &verr):
		parts := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			parts = append(parts, f.Error)
		}
		return "Please fix: " + strings.Join(parts, "; ")
	case errors.Is(err, ledger.ErrQuotaExceeded):
		return MsgQuotaExceeded
	case errors.As(err, &skill):
		return fmt.Sprintf("Skill %s not found in course", skill.Skill)
	case errors.Is(err, ledger.ErrStorageFull):
		return MsgStorageFull
	case errors.Is(err, ledger.ErrNotFound):
		return MsgNoLesson
	case errors.Is(err, ErrInvalidActivity):
		return MsgInvalidActivity
	case errors.As(err, &cached):
		return fmt.Sprintf("Request timed out. Using cached credits: %d", cached.Remaining)
	case errors.As(err, &apiErr):
		return apiMessage(apiErr)
	case errors.As(err, &syncErr):
		if syncErr.Op == "pull" {
			return MsgPullFailed
		}
		return MsgPushFailed
	}
	return "Something went wrong: " + err.Error()
}

func apiMessage(e *lessonapi.APIError) string {
	switch e.Kind {
	case lessonapi.KindQuotaExhausted:
		return MsgQuotaExceeded
	case lessonapi.KindUnauthorized:
		return MsgUnauthorized
	case lessonapi.KindEndpointMissing:
		return MsgEndpointMissing
	case lessonapi.KindCORS:
		return MsgCORS
	case lessonapi.KindTimeout:
		return "Request timed out. Try again."
	case lessonapi.KindNetwork:
		return MsgNetwork
	}
	return "Lesson service error: " + e.Detail
}
