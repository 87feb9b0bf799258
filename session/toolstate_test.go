package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolCallStateCanTransitionTo(t *testing.T) {
	assert.True(t, ToolCallIdle.CanTransitionTo(ToolCallAwaitingResult))
	assert.True(t, ToolCallAwaitingResult.CanTransitionTo(ToolCallIdle))

	assert.False(t, ToolCallIdle.CanTransitionTo(ToolCallIdle))
	assert.False(t, ToolCallAwaitingResult.CanTransitionTo(ToolCallAwaitingResult))
	assert.False(t, ToolCallState("bogus").CanTransitionTo(ToolCallIdle))
}
