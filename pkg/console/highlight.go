package console

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter colors code with chroma tokens mapped onto lipgloss styles.
type Highlighter struct {
	base        lipgloss.Style
	keyword     lipgloss.Style
	name        lipgloss.Style
	function    lipgloss.Style
	str         lipgloss.Style
	number      lipgloss.Style
	comment     lipgloss.Style
	operator    lipgloss.Style
	punctuation lipgloss.Style
	errorTok    lipgloss.Style
}

// NewHighlighter creates a highlighter whose styles render through r.
func NewHighlighter(r *lipgloss.Renderer) *Highlighter {
	return &Highlighter{
		base:        r.NewStyle().Foreground(brightWhite),
		keyword:     r.NewStyle().Foreground(salmonPink).Bold(true),
		name:        r.NewStyle().Foreground(brightWhite),
		function:    r.NewStyle().Foreground(skyBlue),
		str:         r.NewStyle().Foreground(mintGreen),
		number:      r.NewStyle().Foreground(amber),
		comment:     r.NewStyle().Foreground(mutedGray).Italic(true),
		operator:    r.NewStyle().Foreground(coralPink),
		punctuation: r.NewStyle().Foreground(mutedGray),
		errorTok:    r.NewStyle().Foreground(salmonPink).Underline(true),
	}
}

// Highlight renders code in language. Unknown languages are detected from
// the source and fall back to plain text.
func (h *Highlighter) Highlight(code, language string) string {
	if code == "" {
		return ""
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iter, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var out strings.Builder
	for token := iter(); token != chroma.EOF; token = iter() {
		if token.Value == "" {
			continue
		}
		style := h.styleFor(token.Type)
		// styles must not span newlines or the terminal reset lands on the
		// next line
		parts := strings.Split(token.Value, "\n")
		for i, part := range parts {
			if part != "" {
				out.WriteString(style.Render(part))
			}
			if i < len(parts)-1 {
				out.WriteByte('\n')
			}
		}
	}
	return out.String()
}

func (h *Highlighter) styleFor(t chroma.TokenType) lipgloss.Style {
	if t == chroma.Error {
		return h.errorTok
	}
	switch {
	case t.InCategory(chroma.Comment):
		return h.comment
	case t.InCategory(chroma.Keyword):
		return h.keyword
	case t.InSubCategory(chroma.LiteralString):
		return h.str
	case t.InSubCategory(chroma.LiteralNumber):
		return h.number
	case t.InCategory(chroma.Operator):
		return h.operator
	case t.InCategory(chroma.Punctuation):
		return h.punctuation
	case t == chroma.NameFunction || t == chroma.NameFunctionMagic:
		return h.function
	case t.InCategory(chroma.Name):
		return h.name
	default:
		return h.base
	}
}
