package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("39")
	colorDim     = lipgloss.Color("240")
	colorUnread  = lipgloss.Color("203")
	colorHiWhite = lipgloss.Color("15")
)

func headerStyle(theme Theme) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	if theme == ThemeHighContrast {
		return s.Foreground(colorHiWhite)
	}
	return s.Foreground(colorAccent)
}

func footerStyle(theme Theme) lipgloss.Style {
	s := lipgloss.NewStyle().Padding(0, 1)
	if theme == ThemeHighContrast {
		return s.Foreground(colorHiWhite)
	}
	return s.Foreground(colorDim)
}

func noticeStyle(theme Theme) lipgloss.Style {
	return lipgloss.NewStyle().Padding(0, 1).Foreground(colorUnread)
}

func selectedStyle(theme Theme) lipgloss.Style {
	if theme == ThemeHighContrast {
		return lipgloss.NewStyle().Reverse(true)
	}
	return lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
}

func unreadStyle(theme Theme) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorUnread).Bold(true)
}

func dimStyle(theme Theme) lipgloss.Style {
	if theme == ThemeHighContrast {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(colorDim)
}
