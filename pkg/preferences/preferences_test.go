package preferences

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSoundVolume(t *testing.T) {
	ctx := context.Background()
	p := Static{
		"u1": {KeySoundVolume: "55"},
		"u2": {KeySoundVolume: "250"},
		"u3": {KeySoundVolume: "loud"},
	}

	v, ok, err := SoundVolume(ctx, p, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 55, v)

	v, ok, err = SoundVolume(ctx, p, "u2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 100, v)

	_, ok, err = SoundVolume(ctx, p, "u3")
	require.Error(t, err)
	require.False(t, ok)

	_, ok, err = SoundVolume(ctx, p, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = SoundVolume(ctx, nil, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewRoomNotification(t *testing.T) {
	ctx := context.Background()
	p := Static{"u1": {KeyNewRoomNotification: "door"}, "u2": {KeyNewRoomNotification: "  "}}

	s, ok, err := NewRoomNotification(ctx, p, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "door", s)

	_, ok, err = NewRoomNotification(ctx, p, "u2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDefaults(t *testing.T) {
	ctx := context.Background()
	p := Defaults{
		Provider: Static{"u1": {KeySoundVolume: "10"}},
		Fallback: map[string]string{KeySoundVolume: "100", KeyNewRoomNotification: "chime"},
	}
	v, ok, err := p.GetUserPreference(ctx, "u1", KeySoundVolume)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10", v)

	v, ok, err = p.GetUserPreference(ctx, "u1", KeyNewRoomNotification)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "chime", v)

	_, ok, err = p.GetUserPreference(ctx, "u1", "other")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedis(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), DisableIndentity: true})
	defer client.Close()
	ctx := context.Background()

	p := NewRedis(client, "")
	require.NoError(t, p.Set(ctx, "u1", KeyNewRoomNotification, "chime"))
	m.HSet(DefaultKeyPrefix+"u1", KeySoundVolume, "40")

	s, ok, err := NewRoomNotification(ctx, p, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "chime", s)

	v, ok, err := SoundVolume(ctx, p, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 40, v)

	_, ok, err = p.GetUserPreference(ctx, "u2", KeySoundVolume)
	require.NoError(t, err)
	require.False(t, ok)

	m.Close()
	_, _, err = p.GetUserPreference(ctx, "u1", KeySoundVolume)
	require.Error(t, err)
}
