package local

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/logging"
)

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Return", "Enter"},
		{"ctrl+a", "Control+a"},
		{"Ctrl+Shift+T", "Control+Shift+T"},
		{"cmd+l", "Meta+l"},
		{"Esc", "Escape"},
		{"F5", "F5"},
		{"a", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TranslateKey(tt.in))
		})
	}
}

func TestUnknownSession(t *testing.T) {
	p := New(WithLogger(logging.NewLoggerWithWriter("test", io.Discard)))

	err := p.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, browser.ErrNotFound))

	_, err = p.ExecuteScript(context.Background(), "missing", browser.ScriptRequest{Code: "return 1"})
	assert.True(t, errors.Is(err, browser.ErrNotFound))

	sessions, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestDragRequiresTwoPoints(t *testing.T) {
	p := New(WithLogger(logging.NewLoggerWithWriter("test", io.Discard)))
	err := p.DragMouse(context.Background(), "s1", browser.DragRequest{Path: []browser.Point{{X: 1, Y: 1}}})
	assert.ErrorContains(t, err, "at least 2 points")
}

// TestLocalSession drives a real Chromium. It needs the Playwright driver
// and browsers, so it only runs when BROWSERPILOT_PLAYWRIGHT_TESTS is set.
func TestLocalSession(t *testing.T) {
	if testing.Short() || os.Getenv("BROWSERPILOT_PLAYWRIGHT_TESTS") == "" {
		t.Skip("set BROWSERPILOT_PLAYWRIGHT_TESTS=1 to run playwright integration tests")
	}

	ctx := context.Background()
	p := New(WithLogger(logging.NewLoggerWithWriter("test", io.Discard)))
	t.Cleanup(func() { _ = p.Shutdown() })

	s, err := p.Create(ctx, browser.CreateOptions{Headless: true})
	require.NoError(t, err)
	assert.Equal(t, LiveViewScheme+s.ID, s.LiveViewURL)

	res, err := p.ExecuteScript(ctx, s.ID, browser.ScriptRequest{Code: "return 40 + 2", TimeoutSec: 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.EqualValues(t, 42, res.Result)

	res, err = p.ExecuteScript(ctx, s.ID, browser.ScriptRequest{Code: "throw new Error('boom')", TimeoutSec: 10})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")

	png, err := p.Screenshot(ctx, s.ID, &browser.Region{Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	require.NoError(t, p.ClickMouse(ctx, s.ID, browser.ClickRequest{X: 10, Y: 10}))
	require.NoError(t, p.SetCursorVisibility(ctx, s.ID, true))

	urls, err := p.ListPages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, urls, 1)

	require.NoError(t, p.Delete(ctx, s.ID))
	assert.ErrorIs(t, p.Delete(ctx, s.ID), browser.ErrNotFound)
}
