package connection

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseService(t *testing.T) {
	if svc, err := ParseService(" Slack "); err != nil || svc != ServiceSlack {
		t.Fatalf("ParseService(Slack) = %q, %v", svc, err)
	}
	if _, err := ParseService("jira"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("ParseService(jira) error = %v, want ErrUnknownService", err)
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusDisconnected, StatusLoading, StatusDetecting, StatusConnected, StatusError} {
		parsed, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) error = %v", s, err)
		}
		if parsed != s {
			t.Errorf("ParseStatus(%q) = %v", s, parsed)
		}
	}
	if _, err := ParseStatus("pending"); err == nil {
		t.Error("ParseStatus(pending) should fail")
	}
}

func TestStateJSON(t *testing.T) {
	st := NewState()
	st[ServiceTrello] = StatusError

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"slack":"disconnected","trello":"error"}` {
		t.Errorf("Marshal() = %s", data)
	}

	var back State
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.Equal(st) {
		t.Errorf("round trip = %v, want %v", back, st)
	}
}

func TestStateHelpers(t *testing.T) {
	st := NewState()
	if !st.IsDefault() {
		t.Fatal("NewState() should be default")
	}
	clone := st.Clone()
	clone[ServiceSlack] = StatusConnected
	if st[ServiceSlack] != StatusDisconnected {
		t.Fatal("Clone() shares storage")
	}
	if got := clone.String(); got != "slack=connected trello=disconnected" {
		t.Errorf("String() = %q", got)
	}
}
