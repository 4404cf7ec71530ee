package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/touchbridge/internal/broker"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestCollectStatus(t *testing.T) {
	t.Run("live helper", func(t *testing.T) {
		h := newRecordingHandle()
		h.shared = protocol.SharedConfig{SwipeDelayMs: 80, Paused: true}

		b := broker.New(broker.Options{Tiers: broker.Tiers{
			Probe: func(context.Context) (protocol.Handle, error) { return h, nil },
		}})

		status := collectStatus(context.Background(), b, time.Second)
		assert.True(t, status.Live)
		assert.True(t, status.Paused)
		assert.Equal(t, 80, status.SwipeDelay)
		assert.Equal(t, broker.TierCachedHandle.String(), status.Tier)
		assert.Equal(t, broker.ElevationUnknown.String(), status.Elevation)
		assert.NoError(t, status.Err)
	})

	t.Run("elevation refused", func(t *testing.T) {
		b := broker.New(broker.Options{Tiers: broker.Tiers{
			Probe: func(context.Context) (protocol.Handle, error) { return nil, errors.New("no socket") },
			Spawn: func(context.Context) error { return broker.ErrElevationDenied },
		}})

		status := collectStatus(context.Background(), b, time.Second)
		assert.False(t, status.Live)
		assert.Equal(t, broker.TierNone.String(), status.Tier)
		assert.Equal(t, broker.ElevationDenied.String(), status.Elevation)
		assert.ErrorIs(t, status.Err, protocol.ErrAcquisitionAbandoned)
	})
}

func TestHandleStatusDeadPeer(t *testing.T) {
	h := newRecordingHandle()
	h.dead.Store(true)

	status := handleStatus(h, broker.TierCachedHandle)
	assert.False(t, status.Live)
	assert.ErrorIs(t, status.Err, protocol.ErrPeerUnavailable)
}
