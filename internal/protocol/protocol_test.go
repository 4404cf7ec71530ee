package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		value   int32
		want    Action
		wantErr bool
	}{
		{name: "release", value: 0, want: ActionUp},
		{name: "press", value: 1, want: ActionDown},
		{name: "repeat", value: 2, wantErr: true},
		{name: "negative", value: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionValid(t *testing.T) {
	assert.True(t, ActionUp.Valid())
	assert.True(t, ActionDown.Valid())
	assert.True(t, ActionMove.Valid())
	assert.False(t, Action(7).Valid())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "move", ActionMove.String())
	assert.Equal(t, "action(9)", Action(9).String())
	assert.Equal(t, "aim", PointerAim.String())
	assert.Equal(t, "click", PointerClick.String())
	assert.Equal(t, "pointer(5)", PointerID(5).String())
}

func TestIsPeerUnavailable(t *testing.T) {
	wrapped := fmt.Errorf("inject: %w", ErrPeerUnavailable)
	assert.True(t, IsPeerUnavailable(wrapped))
	assert.False(t, IsPeerUnavailable(ErrAuthorizationDenied))
	assert.False(t, IsPeerUnavailable(nil))
}
