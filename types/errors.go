package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTier        = errors.New("tier must be 'pro' or 'ultimate'")
	ErrInvalidDuration    = errors.New("duration must be at least 1 month")
	ErrNoActiveLicense    = errors.New("no active license")
	ErrUnsupportedCommand = errors.New("command is not permission-managed")
	ErrInvalidID          = errors.New("invalid id: expected 17-22 digits")
	ErrInvalidStationKey  = errors.New("invalid station key")
	ErrInvalidStationURL  = errors.New("station url must start with http:// or https://")
	ErrDuplicateStation   = errors.New("station key already exists")
	ErrQuotaExceeded      = errors.New("custom station limit reached")
	ErrStationNotFound    = errors.New("unknown station")
	ErrNoVoiceChannel     = errors.New("caller is not in a voice channel")
	ErrConnectTimeout     = errors.New("voice connection timed out")
	ErrStreamUnavailable  = errors.New("stream could not be loaded")
	ErrNotPlaying         = errors.New("nothing is playing")
)

// TierRequiredError reports a station or feature gated above the caller's tier.
type TierRequiredError struct {
	Required Tier
}

func (e *TierRequiredError) Error() string {
	return fmt.Sprintf("requires tier %s or higher", e.Required)
}

// ConflictError reports duplicate configuration detected at load time.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Field, e.Value)
}
