package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerRuleStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerMarkStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
)

func renderBanner() string {
	rule := bannerRuleStyle.Render("──────────────")
	mark := bannerMarkStyle.Render("▣")
	title := bannerTitleStyle.Render("STUDYSYNC")

	lines := []string{
		"  " + rule,
		"  " + mark + "  " + title + " " + mark,
		"  " + rule,
		bannerTaglineStyle.Render("  plan offline, sync later"),
	}
	return strings.Join(lines, "\n")
}
