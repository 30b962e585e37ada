// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/xion/internal/model"
	"github.com/jeranaias/xion/internal/util"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for banners and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// ValueStyle is used for regular values
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Off-white

	// PromptStyle is the REPL prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle is used for hints and secondary information
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // Dark gray
)

// roleStyles colors history listings by sender.
var roleStyles = map[model.Role]lipgloss.Style{
	model.RoleSystem:    DimStyle,
	model.RoleUser:      lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true),
	model.RoleAssistant: lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// RenderSeparator renders a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 40
	}
	return SeparatorStyle.Render(strings.Repeat("─", width))
}

// RenderLabel pads label to width terminal cells before styling, so
// columns line up even with wide characters.
func RenderLabel(label string, width int) string {
	if pad := width - util.StringWidth(label); pad > 0 {
		label += strings.Repeat(" ", pad)
	}
	return LabelStyle.Render(label)
}

// RenderRole renders a role name in its color.
func RenderRole(role model.Role) string {
	style, ok := roleStyles[role]
	if !ok {
		style = ValueStyle
	}
	return style.Render(role.DisplayName())
}
