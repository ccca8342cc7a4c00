// Package detect decides, from what can be observed of an open
// authorization window, whether the flow finished.
//
// None of these signals prove that authorization happened. A window left
// open long enough, or closed late, is treated as success so a service is
// never stuck detecting; callers log such outcomes as heuristic.
package detect

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
)

// Thresholds are measured in poll ticks.
type Thresholds struct {
	// LongOpen: a window still open after this many ticks counts as success.
	LongOpen int
	// ShortClose: a window closed before this many ticks counts as
	// abandoned, unless the run was credited.
	ShortClose int
	// MaxAttempts is the hard ceiling; reaching it resolves as success.
	MaxAttempts int
	// PollInterval is the time between ticks.
	PollInterval time.Duration
	// ClosureInterval is the time between closure checks.
	ClosureInterval time.Duration
}

// DefaultThresholds returns the standard tick thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LongOpen:        45,
		ShortClose:      10,
		MaxAttempts:     60,
		PollInterval:    time.Second,
		ClosureInterval: time.Second,
	}
}

// Validate reports thresholds that cannot work together.
func (t Thresholds) Validate() error {
	switch {
	case t.ShortClose < 0 || t.LongOpen <= 0 || t.MaxAttempts <= 0:
		return errors.New("detection thresholds must be positive")
	case t.ShortClose > t.LongOpen:
		return errors.New("short_close must not exceed long_open")
	case t.LongOpen > t.MaxAttempts:
		return errors.New("long_open must not exceed max_attempts")
	case t.PollInterval <= 0 || t.ClosureInterval <= 0:
		return errors.New("detection intervals must be positive")
	}
	return nil
}

// Outcome is the kind of verdict.
type Outcome int

const (
	Pending Outcome = iota
	Success
	Failure
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Verdict is the result of one evaluation.
type Verdict struct {
	Outcome Outcome
	Reason  string
	// Heuristic is set when the outcome rests on timing alone.
	Heuristic bool
}

// Done reports whether the verdict resolves the run.
func (v Verdict) Done() bool { return v.Outcome != Pending }

// Observation is what one tick saw.
type Observation struct {
	Attempts int
	Closed   bool

	Title    string
	TitleErr error
	URL      string
	URLErr   error

	// Credited is set when the service was already awaiting a result
	// when this run started, so a quick close is not an abandonment.
	Credited bool
}

// Evaluate applies the completion rules in order; the first match wins.
func Evaluate(obs Observation, th Thresholds) Verdict {
	if !obs.Closed {
		if obs.URLErr == nil {
			if marker, ok := URLMarker(obs.URL); ok {
				return Verdict{Outcome: Success, Reason: "url_marker:" + marker}
			}
		}
		if obs.TitleErr == nil {
			if kw, ok := TitleKeyword(obs.Title); ok {
				return Verdict{Outcome: Success, Reason: "title_keyword:" + kw}
			}
		}
		if obs.Attempts >= th.LongOpen {
			return Verdict{Outcome: Success, Reason: "long_open", Heuristic: true}
		}
	}

	if obs.Closed {
		if obs.Attempts < th.ShortClose {
			if obs.Credited {
				return Verdict{Outcome: Success, Reason: "closed_credited", Heuristic: true}
			}
			return Verdict{Outcome: Abandoned, Reason: "closed_quickly"}
		}
		return Verdict{Outcome: Success, Reason: "closed_after_wait", Heuristic: true}
	}

	if obs.Attempts >= th.MaxAttempts {
		return Verdict{Outcome: Success, Reason: "max_attempts", Heuristic: true}
	}
	return Verdict{Outcome: Pending}
}

var titleKeywords = []string{"success", "connected", "authorized", "complete"}

// TitleKeyword returns the first completion keyword found in title.
func TitleKeyword(title string) (string, bool) {
	lower := strings.ToLower(title)
	for _, kw := range titleKeywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

var (
	queryMarkers    = []string{"code", "token", "access_token", "oauth_token", "success", "connected", "authorized"}
	fragmentMarkers = []string{"access_token"}
	pathMarkers     = []string{"authorize", "oauth", "callback"}
)

// URLMarker returns the first completion marker found in raw.
func URLMarker(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "about:blank" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	q := u.Query()
	for _, m := range queryMarkers {
		if q.Has(m) {
			return "query:" + m, true
		}
	}
	if u.Fragment != "" {
		frag, _ := url.ParseQuery(u.Fragment)
		for _, m := range fragmentMarkers {
			if frag.Has(m) {
				return "fragment:" + m, true
			}
		}
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		for _, m := range pathMarkers {
			if seg == m {
				return "path:" + m, true
			}
		}
	}
	return "", false
}

// Probe reads one observation from w. Read errors are recorded in the
// observation, never returned.
func Probe(ctx context.Context, w browser.Window, attempts int, credited bool) Observation {
	obs := Observation{Attempts: attempts, Credited: credited, Closed: w.Closed()}
	if obs.Closed {
		return obs
	}
	obs.URL, obs.URLErr = w.URL(ctx)
	obs.Title, obs.TitleErr = w.Title(ctx)
	if errors.Is(obs.URLErr, browser.ErrWindowClosed) || errors.Is(obs.TitleErr, browser.ErrWindowClosed) {
		obs.Closed = true
	}
	return obs
}
