package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/entrhq/browserpilot/pkg/agent/tools"
	pb "github.com/entrhq/browserpilot/pkg/browser"
)

const (
	ReadPageToolName = "read_page"

	// DefaultReadPageLength bounds the snapshot sent to the model.
	DefaultReadPageLength = 12000
)

// pageContentScript works both with Playwright bindings and inside the page.
const pageContentScript = `if (typeof page !== "undefined") {
  return { url: page.url(), html: await page.content() };
}
return { url: location.href, html: document.documentElement.outerHTML };`

// ReadPageTool returns a cleaned snapshot of the current page.
type ReadPageTool struct {
	provider   pb.SessionProvider
	sessionID  string
	timeoutSec int
}

// NewReadPageTool creates a page reader bound to one session.
func NewReadPageTool(provider pb.SessionProvider, sessionID string, timeoutSec int) *ReadPageTool {
	return &ReadPageTool{provider: provider, sessionID: sessionID, timeoutSec: timeoutSec}
}

// Name returns the tool name.
func (t *ReadPageTool) Name() string {
	return ReadPageToolName
}

// Description returns the tool description.
func (t *ReadPageTool) Description() string {
	return "Read the current page as simplified HTML with scripts, styles and hidden elements removed. " +
		"Keeps ids, names, roles, labels and links so you can build selectors for playwright_execute."
}

// Schema returns the tool's JSON schema.
func (t *ReadPageTool) Schema() *jsonschema.Schema {
	return tools.ObjectSchema(map[string]*jsonschema.Schema{
		"max_length": tools.NonNegativeInteger(fmt.Sprintf("Maximum snapshot length in characters (default %d)", DefaultReadPageLength)),
	})
}

type pageContent struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// Execute fetches the page HTML and snapshots it.
func (t *ReadPageTool) Execute(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
	var input struct {
		MaxLength int `json:"max_length"`
	}
	if err := tools.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.MaxLength <= 0 {
		input.MaxLength = DefaultReadPageLength
	}

	res, err := t.provider.ExecuteScript(ctx, t.sessionID, pb.ScriptRequest{Code: pageContentScript, TimeoutSec: t.timeoutSec})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return tools.Failed(res.Error, nil), nil
	}

	raw, err := json.Marshal(res.Result)
	if err != nil {
		return nil, err
	}
	var content pageContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("unexpected page content: %w", err)
	}

	snapshot, err := Snapshot(content.HTML, input.MaxLength)
	if err != nil {
		return tools.Failed(err.Error(), nil), nil
	}

	result := tools.OK(map[string]interface{}{
		"url":       content.URL,
		"title":     snapshot.Title,
		"html":      snapshot.HTML,
		"truncated": snapshot.Truncated,
	})
	result.Metadata = map[string]interface{}{
		"source_size": humanize.Bytes(uint64(len(content.HTML))),
		"links":       snapshot.Links,
		"controls":    snapshot.Controls,
	}
	return result, nil
}
