// Package preferences reads per-user notification preferences.
//
// Missing values are not errors: callers get ok=false and are expected to
// fall back to "no sound".
package preferences

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	KeySoundVolume         = "notificationsSoundVolume"
	KeyNewRoomNotification = "newRoomNotification"

	// NotificationNone disables the new-room sound.
	NotificationNone = "none"
)

type Provider interface {
	GetUserPreference(ctx context.Context, userID, key string) (string, bool, error)
}

// SoundVolume returns the user's notification volume clamped to 0..100.
func SoundVolume(ctx context.Context, p Provider, userID string) (int, bool, error) {
	if p == nil {
		return 0, false, nil
	}
	raw, ok, err := p.GetUserPreference(ctx, userID, KeySoundVolume)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("preference %s=%q: %w", KeySoundVolume, raw, err)
	}
	return min(max(v, 0), 100), true, nil
}

// NewRoomNotification returns the sound id played for new inquiries.
func NewRoomNotification(ctx context.Context, p Provider, userID string) (string, bool, error) {
	if p == nil {
		return "", false, nil
	}
	raw, ok, err := p.GetUserPreference(ctx, userID, KeyNewRoomNotification)
	if err != nil || !ok {
		return "", false, err
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != "", nil
}

// Static is an in-memory provider keyed by user id, then preference key.
type Static map[string]map[string]string

func (s Static) GetUserPreference(_ context.Context, userID, key string) (string, bool, error) {
	v, ok := s[userID][key]
	return v, ok, nil
}

// Defaults wraps a provider and answers from fallback when it has no value.
type Defaults struct {
	Provider Provider
	Fallback map[string]string
}

func (d Defaults) GetUserPreference(ctx context.Context, userID, key string) (string, bool, error) {
	if d.Provider != nil {
		v, ok, err := d.Provider.GetUserPreference(ctx, userID, key)
		if err != nil || ok {
			return v, ok, err
		}
	}
	v, ok := d.Fallback[key]
	return v, ok, nil
}
