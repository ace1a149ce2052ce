package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/browserpilot/pkg/types"
)

// forceEstimate pins the encoder into its fallback so tests stay offline.
func forceEstimate() {
	encoderOnce.Do(func() {
		encoderErr = errors.New("offline")
	})
}

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, estimate(""))
	assert.Equal(t, 1, estimate("abc"))
	assert.Equal(t, 1, estimate("abcd"))
	assert.Equal(t, 2, estimate("abcde"))
	assert.Equal(t, 1, estimate("héé"), "counts runes, not bytes")
}

func TestCountFallsBackWhenEncoderUnavailable(t *testing.T) {
	forceEstimate()

	assert.Equal(t, 0, Count(""))
	assert.Equal(t, 4, Count("click the button"))
}

func TestUsage(t *testing.T) {
	forceEstimate()

	prompt := []*types.Message{types.NewUserMessage("open example.com")}
	usage := Usage(prompt, "done")

	assert.Equal(t, usage.InputTokens+usage.OutputTokens, usage.TotalTokens)
	assert.Equal(t, 1, usage.OutputTokens)
	assert.Greater(t, usage.InputTokens, 4)
}
