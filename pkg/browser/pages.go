package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/samber/lo"

	"github.com/entrhq/browserpilot/pkg/logging"
)

// DefaultIgnoredPagePatterns match pages that are never chosen as primary.
var DefaultIgnoredPagePatterns = []string{"chrome-extension://*", "about:blank", "devtools://*"}

// NormalizeReport describes the outcome of a page normalization.
type NormalizeReport struct {
	PrimaryURL      string `json:"primaryUrl,omitempty"`
	PageCountBefore int    `json:"pageCountBefore"`
	PageCountAfter  int    `json:"pageCountAfter"`
}

// PageNormalizer reduces a session to a single foreground page.
type PageNormalizer struct {
	provider   SessionProvider
	logger     *logging.Logger
	ignored    []glob.Glob
	timeoutSec int
}

// NewPageNormalizer compiles the ignored URL patterns.
func NewPageNormalizer(provider SessionProvider, patterns []string, timeoutSec int, logger *logging.Logger) (*PageNormalizer, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid page pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	if timeoutSec <= 0 {
		timeoutSec = 20
	}
	return &PageNormalizer{provider: provider, ignored: compiled, timeoutSec: timeoutSec, logger: logger}, nil
}

// Normalize lists the session's pages, keeps the primary one, closes the
// rest and brings the primary to front.
func (n *PageNormalizer) Normalize(ctx context.Context, id string) (*NormalizeReport, error) {
	urls, err := n.listPages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(urls) == 0 {
		return &NormalizeReport{}, nil
	}

	primary := n.selectPrimaryPage(urls)
	if controller, ok := n.provider.(PageController); ok {
		return controller.FocusPage(ctx, id, primary)
	}
	return n.focusByScript(ctx, id, urls[primary], primary)
}

// NormalizeBestEffort runs Normalize and logs failures instead of returning
// them. Callers must never turn a normalization failure into a hard error.
func (n *PageNormalizer) NormalizeBestEffort(ctx context.Context, id string) *NormalizeReport {
	report, err := n.Normalize(ctx, id)
	if err != nil {
		n.logger.Warnf("Failed to normalize browser pages for session %s: %v", id, err)
		return nil
	}
	if report.PageCountBefore > 1 {
		n.logger.Infof("Normalized session %s from %d to %d pages (primary %s)",
			id, report.PageCountBefore, report.PageCountAfter, report.PrimaryURL)
	}
	return report
}

// selectPrimaryPage returns the index of the first page whose URL matches
// no ignored pattern, or 0 when every page is ignored.
func (n *PageNormalizer) selectPrimaryPage(urls []string) int {
	_, index, found := lo.FindIndexOf(urls, func(url string) bool {
		return !lo.SomeBy(n.ignored, func(g glob.Glob) bool { return g.Match(url) })
	})
	if !found {
		return 0
	}
	return index
}

func (n *PageNormalizer) listPages(ctx context.Context, id string) ([]string, error) {
	if controller, ok := n.provider.(PageController); ok {
		return controller.ListPages(ctx, id)
	}

	res, err := n.provider.ExecuteScript(ctx, id, ScriptRequest{
		Code:       listPagesScript,
		TimeoutSec: n.timeoutSec,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("script failed: %s", res.Error)
	}

	var urls []string
	if err := remarshal(res.Result, &urls); err != nil {
		return nil, fmt.Errorf("decode page list: %w", err)
	}
	return urls, nil
}

func (n *PageNormalizer) focusByScript(ctx context.Context, id, url string, index int) (*NormalizeReport, error) {
	quoted, err := json.Marshal(url)
	if err != nil {
		return nil, err
	}

	res, err := n.provider.ExecuteScript(ctx, id, ScriptRequest{
		Code:       fmt.Sprintf(focusPageScript, quoted, index),
		TimeoutSec: n.timeoutSec,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("script failed: %s", res.Error)
	}

	var report NormalizeReport
	if err := remarshal(res.Result, &report); err != nil {
		return nil, fmt.Errorf("decode normalize report: %w", err)
	}
	return &report, nil
}

// remarshal converts a decoded JSON value into a typed one.
func remarshal(in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

const listPagesScript = `return context.pages().map((p) => p.url());`

// focusPageScript prefers the page with the chosen URL and falls back to its
// index when the page list changed between the two scripts.
const focusPageScript = `
const pages = context.pages();
const before = pages.length;
const primary = pages.find((p) => p.url() === %s) ?? pages[%d] ?? pages[0];
if (!primary) {
  return { pageCountBefore: 0, pageCountAfter: 0 };
}
for (const p of pages) {
  if (p !== primary) {
    try { await p.close(); } catch {}
  }
}
try { await primary.bringToFront(); } catch {}
return { pageCountBefore: before, pageCountAfter: context.pages().length, primaryUrl: primary.url() };
`
