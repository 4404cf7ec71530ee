package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/touchbridge/internal/aim"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/bnema/touchbridge/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *aim.Engine {
	return aim.New(aim.Config{
		XCenter: 500, YCenter: 500,
		XSensitivity: 1, YSensitivity: 1,
		LimitedBounds: true,
		Width:         100, Height: 100,
		XLeftClick: 50, YLeftClick: 50,
	}, nil)
}

// waitForDown waits for the delayed half of a recenter on h
func waitForDown(t *testing.T, h *recordingHandle) {
	t.Helper()
	require.Eventually(t, func() bool {
		last, ok := h.last()
		return ok && last.action == protocol.ActionDown && last.pointer == protocol.PointerAim
	}, time.Second, 5*time.Millisecond)
}

func TestAimSessionBindPlacesContactOnCenter(t *testing.T) {
	h := newRecordingHandle()
	b := &queueBroker{handles: []protocol.Handle{h}}
	session := newAimSession(b, testEngine())

	var msgs []tea.Msg
	session.notify = func(msg tea.Msg) { msgs = append(msgs, msg) }

	require.NoError(t, session.bind(context.Background()))
	waitForDown(t, h)

	assert.Equal(t, []injection{
		{500, 500, protocol.ActionUp, protocol.PointerAim},
		{500, 500, protocol.ActionDown, protocol.PointerAim},
	}, h.injections())
	assert.Contains(t, msgs, ui.HandleAcquiredMsg{Tier: "running helper"})
	assert.Contains(t, msgs, ui.PausedMsg{Paused: false})
}

func TestAimSessionFeedsEngine(t *testing.T) {
	h := newRecordingHandle()
	b := &queueBroker{handles: []protocol.Handle{h}}
	session := newAimSession(b, testEngine())

	var positions []ui.PositionMsg
	session.notify = func(msg tea.Msg) {
		if p, ok := msg.(ui.PositionMsg); ok {
			positions = append(positions, p)
		}
	}

	src := scriptedSource{
		events: []event{
			{aim.CodeRelX, 50},
			{aim.CodeRelY, 30},
			{aim.CodeBtnLeft, 1},
			{aim.CodeBtnLeft, 0},
			{aim.CodeBtnRight, 1},
		},
		before: func(i int) {
			if i == 0 {
				waitForDown(t, h)
			}
		},
	}
	require.NoError(t, session.run(context.Background(), src))

	got := h.injections()[2:]
	assert.Equal(t, []injection{
		{550, 500, protocol.ActionMove, protocol.PointerAim},
		{550, 530, protocol.ActionMove, protocol.PointerAim},
		{50, 50, protocol.ActionDown, protocol.PointerClick},
		{50, 50, protocol.ActionUp, protocol.PointerClick},
	}, got)
	assert.Equal(t, []ui.PositionMsg{{X: 550, Y: 500}, {X: 550, Y: 530}}, positions)
}

func TestAimSessionRebindsWhenHelperDies(t *testing.T) {
	first := newRecordingHandle()
	second := newRecordingHandle()
	b := &queueBroker{handles: []protocol.Handle{first, second}}
	session := newAimSession(b, testEngine())

	var lost int
	session.notify = func(msg tea.Msg) {
		if _, ok := msg.(ui.HandleLostMsg); ok {
			lost++
		}
	}

	src := scriptedSource{
		events: []event{
			{aim.CodeRelX, 10},
			{aim.CodeRelX, 10},
		},
		before: func(i int) {
			switch i {
			case 0:
				waitForDown(t, first)
				first.dead.Store(true)
			case 1:
				waitForDown(t, second)
			}
		},
	}
	require.NoError(t, session.run(context.Background(), src))

	assert.Equal(t, 2, b.calls)
	assert.Equal(t, 1, lost)

	// The failed event moved the pointer before the helper died
	got := second.injections()
	require.Len(t, got, 3)
	assert.Equal(t, injection{510, 500, protocol.ActionUp, protocol.PointerAim}, got[0])
	assert.Equal(t, injection{500, 500, protocol.ActionDown, protocol.PointerAim}, got[1])
	assert.Equal(t, injection{510, 500, protocol.ActionMove, protocol.PointerAim}, got[2])
}

func TestAimSessionFailedRebindEndsSession(t *testing.T) {
	h := newRecordingHandle()
	b := &queueBroker{handles: []protocol.Handle{h}}
	session := newAimSession(b, testEngine())

	src := scriptedSource{
		events: []event{{aim.CodeRelX, 10}},
		before: func(int) {
			waitForDown(t, h)
			h.dead.Store(true)
		},
	}
	err := session.run(context.Background(), src)
	assert.ErrorIs(t, err, protocol.ErrAcquisitionAbandoned)
}

func TestAimSessionStopsWithEngine(t *testing.T) {
	h := newRecordingHandle()
	b := &queueBroker{handles: []protocol.Handle{h}}
	engine := testEngine()
	session := newAimSession(b, engine)

	src := scriptedSource{
		events: []event{{aim.CodeRelX, 10}, {aim.CodeRelX, 10}},
		before: func(i int) {
			if i == 1 {
				require.NoError(t, engine.Stop())
			}
		},
	}
	assert.NoError(t, session.run(context.Background(), src))
}

func TestAimSessionCancelledIsCleanExit(t *testing.T) {
	b := &queueBroker{}
	session := newAimSession(b, testEngine())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, session.run(ctx, scriptedSource{}))
}
