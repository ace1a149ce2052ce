// Package parser separates inline reasoning from visible text in model
// streams.
package parser

import (
	"strings"

	"github.com/entrhq/browserpilot/pkg/llm"
)

var (
	openTags  = []string{"<thinking>", "<think>"}
	closeTags = []string{"</thinking>", "</think>"}
)

type tagMatch int

const (
	tagNone tagMatch = iota
	tagPartial
	tagOpen
	tagClose
)

// ThinkingParser splits streamed content on <thinking> and <think> tags.
// Models served without a dedicated reasoning channel emit these inline.
// A tag may arrive split across chunks, so a trailing fragment that could
// still become a tag is held back until the next Parse or Flush.
type ThinkingParser struct {
	pending    string
	inThinking bool
}

// NewThinkingParser creates a parser in message mode.
func NewThinkingParser() *ThinkingParser {
	return &ThinkingParser{}
}

// Parse consumes one content chunk. Either result is nil when the chunk
// produced no text of that kind.
func (p *ThinkingParser) Parse(content string) (thinking, message *llm.StreamChunk) {
	var out split
	text := p.pending + content
	p.pending = ""

	for text != "" {
		i := strings.IndexByte(text, '<')
		if i < 0 {
			out.add(p.inThinking, text)
			break
		}
		out.add(p.inThinking, text[:i])
		text = text[i:]

		match, n := matchTag(text)
		switch match {
		case tagPartial:
			p.pending = text
			text = ""
		case tagOpen:
			p.inThinking = true
			text = text[n:]
		case tagClose:
			p.inThinking = false
			text = text[n:]
		default:
			out.add(p.inThinking, "<")
			text = text[1:]
		}
	}
	return out.chunks()
}

// Flush emits a held-back fragment as plain text. Call it when the stream
// ends.
func (p *ThinkingParser) Flush() (thinking, message *llm.StreamChunk) {
	var out split
	out.add(p.inThinking, p.pending)
	p.pending = ""
	return out.chunks()
}

// IsInThinking reports whether the parser is inside a reasoning section.
func (p *ThinkingParser) IsInThinking() bool {
	return p.inThinking
}

// Reset drops all state for a new stream.
func (p *ThinkingParser) Reset() {
	p.pending = ""
	p.inThinking = false
}

// matchTag classifies text, which starts with '<', and returns the length
// of a complete tag.
func matchTag(text string) (tagMatch, int) {
	partial := false
	for _, set := range []struct {
		tags  []string
		match tagMatch
	}{{openTags, tagOpen}, {closeTags, tagClose}} {
		for _, tag := range set.tags {
			if strings.HasPrefix(text, tag) {
				return set.match, len(tag)
			}
			if len(text) < len(tag) && strings.HasPrefix(tag, text) {
				partial = true
			}
		}
	}
	if partial {
		return tagPartial, 0
	}
	return tagNone, 0
}

type split struct {
	thinking strings.Builder
	message  strings.Builder
}

func (s *split) add(thinking bool, text string) {
	if thinking {
		s.thinking.WriteString(text)
	} else {
		s.message.WriteString(text)
	}
}

func (s *split) chunks() (thinking, message *llm.StreamChunk) {
	if s.thinking.Len() > 0 {
		thinking = &llm.StreamChunk{Content: s.thinking.String(), Type: llm.ContentTypeThinking}
	}
	if s.message.Len() > 0 {
		message = &llm.StreamChunk{Content: s.message.String(), Type: llm.ContentTypeMessage}
	}
	return thinking, message
}
