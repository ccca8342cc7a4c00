package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SpinnerOptions configures spinner behavior.
type SpinnerOptions struct {
	// Color is the spinner color (ignored if NoColor)
	Color lipgloss.TerminalColor
	// NoColor disables colors (animation still allowed).
	NoColor bool
	// ReduceMotion disables animation (shows static indicator)
	ReduceMotion bool
}

// Spinner wraps the bubbles spinner with accessibility support. It marks
// services with an unresolved detection.
type Spinner struct {
	spinner      spinner.Model
	reduceMotion bool
}

// SpinnerOptionsFromEnv derives spinner options from environment.
// Respects:
// - NO_COLOR (disables color output)
// - TERM=dumb (disables color output)
// - HRCONNECT_REDUCED_MOTION / REDUCED_MOTION / REDUCE_MOTION (disables animation)
func SpinnerOptionsFromEnv() SpinnerOptions {
	opts := SpinnerOptions{Color: colorOrange}

	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		opts.NoColor = true
	}
	if strings.TrimSpace(strings.ToLower(os.Getenv("TERM"))) == "dumb" {
		opts.NoColor = true
	}
	if envBool("HRCONNECT_REDUCED_MOTION") ||
		envBool("REDUCED_MOTION") ||
		envBool("REDUCE_MOTION") {
		opts.ReduceMotion = true
	}
	return opts
}

// NewSpinner creates a spinner with the given options.
func NewSpinner(opts SpinnerOptions) *Spinner {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	if !opts.NoColor && opts.Color != nil {
		s.Style = lipgloss.NewStyle().Foreground(opts.Color)
	}
	return &Spinner{spinner: s, reduceMotion: opts.ReduceMotion}
}

// Tick returns the command that starts the animation.
func (s *Spinner) Tick() tea.Cmd {
	if s == nil || s.reduceMotion {
		return nil
	}
	return s.spinner.Tick
}

// Update handles spinner tick messages.
func (s *Spinner) Update(msg tea.Msg) (*Spinner, tea.Cmd) {
	if s == nil || s.reduceMotion {
		return s, nil
	}
	if _, ok := msg.(spinner.TickMsg); ok {
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	}
	return s, nil
}

// View renders the indicator.
func (s *Spinner) View() string {
	if s == nil {
		return ""
	}
	if s.reduceMotion {
		// Static indicator for accessibility
		return "[...]"
	}
	return s.spinner.View()
}

// IsAnimated returns true if the spinner is animated (not static).
func (s *Spinner) IsAnimated() bool {
	return s != nil && !s.reduceMotion
}

func envBool(key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		// Any non-empty, non-boolean value counts as set.
		return strings.TrimSpace(v) != ""
	}
	return b
}
