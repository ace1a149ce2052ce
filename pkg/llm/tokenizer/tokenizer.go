// Package tokenizer estimates token usage for backends that do not report it.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/browserpilot/pkg/types"
)

var (
	encoder     *tiktoken.Tiktoken
	encoderOnce sync.Once
	encoderErr  error
)

// initEncoder loads cl100k_base lazily. Loading may need network access
// the first time, so failures fall back to estimation.
func initEncoder() error {
	encoderOnce.Do(func() {
		encoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// Count returns the number of tokens in text.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if err := initEncoder(); err != nil {
		return estimate(text)
	}
	return len(encoder.Encode(text, nil, nil))
}

// CountMessages counts prompt tokens for a conversation, including the
// per-message framing overhead.
func CountMessages(messages []*types.Message) int {
	total := 2
	for _, msg := range messages {
		total += 4
		total += Count(string(msg.Role))
		total += Count(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += Count(tc.Name) + Count(tc.Arguments)
		}
	}
	return total
}

// Usage builds a usage record from a prompt and a completion.
func Usage(prompt []*types.Message, completion string) *types.Usage {
	in := CountMessages(prompt)
	out := Count(completion)
	return &types.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

// estimate approximates four characters per token.
func estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
