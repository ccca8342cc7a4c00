package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
)

// Color palette - Dracula theme inspired.
var (
	colorPurple   = lipgloss.Color("#bd93f9")
	colorGreen    = lipgloss.Color("#50fa7b")
	colorCyan     = lipgloss.Color("#8be9fd")
	colorOrange   = lipgloss.Color("#ffb86c")
	colorRed      = lipgloss.Color("#ff5555")
	colorWhite    = lipgloss.Color("#f8f8f2")
	colorGray     = lipgloss.Color("#6272a4")
	colorDarkGray = lipgloss.Color("#44475a")
)

// Styles holds all the lipgloss styles for the dashboard.
type Styles struct {
	Header lipgloss.Style
	Scope  lipgloss.Style

	// List item styles
	Item         lipgloss.Style
	SelectedItem lipgloss.Style

	// Status badges
	Connected    lipgloss.Style
	Disconnected lipgloss.Style
	InFlight     lipgloss.Style
	Failed       lipgloss.Style

	// Status bar styles
	StatusBar  lipgloss.Style
	StatusKey  lipgloss.Style
	StatusText lipgloss.Style
	Offline    lipgloss.Style

	Help lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPurple),

		Scope: lipgloss.NewStyle().
			Foreground(colorGray).
			MarginBottom(1),

		Item: lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(colorWhite),

		SelectedItem: lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(colorPurple).
			Bold(true).
			Background(colorDarkGray),

		Connected:    lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		Disconnected: lipgloss.NewStyle().Foreground(colorGray),
		InFlight:     lipgloss.NewStyle().Foreground(colorOrange),
		Failed:       lipgloss.NewStyle().Foreground(colorRed).Bold(true),

		StatusBar: lipgloss.NewStyle().
			Padding(0, 1).
			Background(colorDarkGray).
			Foreground(colorWhite),

		StatusKey: lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true),

		StatusText: lipgloss.NewStyle().
			Foreground(colorCyan),

		Offline: lipgloss.NewStyle().
			Foreground(colorRed),

		Help: lipgloss.NewStyle().
			Padding(1, 2).
			Foreground(colorWhite),
	}
}

// PlainStyles returns styles without colors, for NO_COLOR terminals.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:       plain.Bold(true),
		Scope:        plain.MarginBottom(1),
		Item:         plain.Padding(0, 2),
		SelectedItem: plain.Padding(0, 2).Reverse(true),
		Connected:    plain,
		Disconnected: plain,
		InFlight:     plain,
		Failed:       plain,
		StatusBar:    plain.Padding(0, 1),
		StatusKey:    plain.Bold(true),
		StatusText:   plain,
		Offline:      plain,
		Help:         plain.Padding(1, 2),
	}
}

// StatusStyle returns the badge style for a status.
func (s Styles) StatusStyle(status connection.Status) lipgloss.Style {
	switch status {
	case connection.StatusConnected:
		return s.Connected
	case connection.StatusLoading, connection.StatusDetecting:
		return s.InFlight
	case connection.StatusError:
		return s.Failed
	default:
		return s.Disconnected
	}
}
