package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// PageSnapshot is a compact, selector-friendly rendering of a page.
type PageSnapshot struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	HTML        string `json:"html"`
	Links       int    `json:"links"`
	Controls    int    `json:"controls"`
	Truncated   bool   `json:"truncated"`
}

// snapshotWriter renders a cleaned copy of the DOM, stopping once budget
// characters of output have been produced.
type snapshotWriter struct {
	out      strings.Builder
	snapshot *PageSnapshot
	budget   int
	used     int
}

// Snapshot parses rawHTML and keeps only the structure, text and
// attributes useful to locate elements with Playwright selectors.
func Snapshot(rawHTML string, maxLength int) (*PageSnapshot, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	s := &PageSnapshot{
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
	}

	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}

	w := &snapshotWriter{snapshot: s, budget: maxLength}
	s.Truncated = w.children(body, 0)
	s.HTML = strings.TrimSpace(w.out.String())
	return s, nil
}

func (w *snapshotWriter) node(n *html.Node, depth int) bool {
	if w.used >= w.budget {
		return true
	}

	switch n.Type {
	case html.TextNode:
		return w.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if droppedElements[tag] || isHidden(n) {
			return false
		}
		return w.element(n, tag, depth)
	case html.CommentNode, html.DoctypeNode:
		return false
	default:
		return w.children(n, depth)
	}
}

func (w *snapshotWriter) children(n *html.Node, depth int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if w.node(c, depth) {
			return true
		}
	}
	return false
}

// text writes collapsed text, cutting on a rune boundary when the budget
// runs out.
func (w *snapshotWriter) text(raw string) bool {
	text := strings.Join(strings.Fields(raw), " ")
	if text == "" {
		return false
	}

	remaining := w.budget - w.used
	if len(text) <= remaining {
		w.out.WriteString(text)
		w.used += len(text)
		return false
	}

	cut := remaining
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	w.out.WriteString(text[:cut])
	w.out.WriteString("...")
	w.used = w.budget
	return true
}

func (w *snapshotWriter) element(n *html.Node, tag string, depth int) bool {
	switch tag {
	case "a":
		w.snapshot.Links++
	case "button", "input", "select", "textarea":
		w.snapshot.Controls++
	}

	// Wrapper elements without useful attributes add noise; their
	// children are written in place.
	attrs := keptAttributes(tag, n.Attr)
	if transparentElements[tag] && len(attrs) == 0 {
		return w.children(n, depth)
	}

	block := blockElements[tag]
	if block {
		w.newline(depth)
	}

	w.out.WriteString("<" + tag)
	for _, a := range attrs {
		fmt.Fprintf(&w.out, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
	}
	w.out.WriteString(">")
	w.used += len(tag) + 2

	if voidElements[tag] {
		return false
	}

	truncated := w.children(n, depth+1)

	if block && n.FirstChild != nil && n.FirstChild != n.LastChild {
		w.newline(depth)
	}
	w.out.WriteString("</" + tag + ">")
	w.used += len(tag) + 3
	return truncated
}

func (w *snapshotWriter) newline(depth int) {
	w.out.WriteString("\n")
	w.out.WriteString(strings.Repeat("  ", depth))
}

var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"embed":    true,
	"object":   true,
	"svg":      true,
	"canvas":   true,
	"head":     true,
}

var transparentElements = map[string]bool{
	"div":  true,
	"span": true,
	"font": true,
	"b":    true,
	"i":    true,
}

var blockElements = map[string]bool{
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "ul": true,
	"ol": true, "li": true, "table": true, "tr": true, "form": true,
	"fieldset": true, "dialog": true, "label": true,
}

var voidElements = map[string]bool{
	"area": true, "br": true, "col": true, "hr": true, "img": true,
	"input": true, "source": true, "track": true, "wbr": true,
}

// isHidden reports elements the user cannot see or interact with.
func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "type":
			if strings.EqualFold(n.Data, "input") && strings.EqualFold(a.Val, "hidden") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// keptAttributes returns the attributes that help build selectors.
func keptAttributes(tag string, attrs []html.Attribute) []html.Attribute {
	var kept []html.Attribute
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if a.Val == "" && key != "disabled" && key != "checked" {
			continue
		}
		if selectorAttributes[key] || strings.HasPrefix(key, "data-test") || tagAttributes(tag, key) {
			kept = append(kept, html.Attribute{Key: key, Val: a.Val})
		}
	}
	return kept
}

var selectorAttributes = map[string]bool{
	"id":          true,
	"name":        true,
	"role":        true,
	"aria-label":  true,
	"title":       true,
	"placeholder": true,
	"disabled":    true,
	"checked":     true,
}

func tagAttributes(tag, key string) bool {
	switch tag {
	case "a":
		return key == "href"
	case "img":
		return key == "alt"
	case "input", "button":
		return key == "type" || key == "value"
	case "form":
		return key == "action" || key == "method"
	case "label":
		return key == "for"
	}
	return false
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findTitle(doc *html.Node) string {
	title := findElement(doc, "title")
	if title == nil || title.FirstChild == nil || title.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(title.FirstChild.Data)
}

func findMetaDescription(doc *html.Node) string {
	var description string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var isDescription bool
			var content string
			for _, a := range n.Attr {
				switch a.Key {
				case "name":
					isDescription = strings.EqualFold(a.Val, "description")
				case "content":
					content = a.Val
				}
			}
			if isDescription && content != "" {
				description = strings.TrimSpace(content)
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return description
}
