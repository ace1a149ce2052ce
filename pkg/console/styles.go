package console

import "github.com/charmbracelet/lipgloss"

// Color palette shared by the renderer and the highlighter.
var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	coralPink   = lipgloss.Color("#FFCCCB")
	mintGreen   = lipgloss.Color("#A8E6CF")
	skyBlue     = lipgloss.Color("#A0C4FF")
	amber       = lipgloss.Color("#FFD6A5")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

type styles struct {
	header    lipgloss.Style
	muted     lipgloss.Style
	pending   lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
	tool      lipgloss.Style
	response  lipgloss.Style
	errorBox  lipgloss.Style
	codeBlock lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header: r.NewStyle().
			Foreground(salmonPink).
			Bold(true),
		muted: r.NewStyle().
			Foreground(mutedGray),
		pending: r.NewStyle().
			Foreground(amber).
			Bold(true),
		success: r.NewStyle().
			Foreground(mintGreen).
			Bold(true),
		failure: r.NewStyle().
			Foreground(salmonPink).
			Bold(true),
		tool: r.NewStyle().
			Foreground(mintGreen),
		response: r.NewStyle().
			Foreground(brightWhite),
		errorBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Foreground(salmonPink).
			Padding(0, 1),
		codeBlock: r.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(mutedGray).
			PaddingLeft(1),
	}
}
