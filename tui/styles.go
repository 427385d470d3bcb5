package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Banner
	TitleStyle     = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("63")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	BannerBoxStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	HeaderKeyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	HeaderValStyle = lipgloss.NewStyle()

	// Run status badges
	StatusSuccessStyle = lipgloss.NewStyle().Background(lipgloss.Color("28")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	StatusWarnStyle    = lipgloss.NewStyle().Background(lipgloss.Color("172")).Foreground(lipgloss.Color("0")).Padding(0, 1)
	StatusErrorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("196")).Foreground(lipgloss.Color("255")).Padding(0, 1)

	SecondaryTextStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"})
)
