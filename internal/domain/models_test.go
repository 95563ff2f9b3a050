package domain

import (
	"strings"
	"testing"
)

func TestMessageID_Deterministic(t *testing.T) {
	a := MessageID("2025-01-02 10:00", "+15550001111", "Your code is 123456")
	b := MessageID("2025-01-02 10:00", "+15550001111", "Your code is 123456")
	if a != b {
		t.Fatalf("same content produced different ids: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("id length = %d, want 16", len(a))
	}
	if strings.ToLower(a) != a {
		t.Fatalf("id not lowercase hex: %q", a)
	}
}

func TestMessageID_DistinguishesContent(t *testing.T) {
	base := MessageID("t", "s", "hello world")
	cases := map[string]string{
		"timestamp": MessageID("t2", "s", "hello world"),
		"sender":    MessageID("t", "s2", "hello world"),
		"text":      MessageID("t", "s", "hello there"),
	}
	for field, id := range cases {
		if id == base {
			t.Errorf("changing %s did not change id", field)
		}
	}
}

func TestSMSCandidate_Valid(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"normal body", "Your code is 4821", true},
		{"empty", "", false},
		{"whitespace only", "   \t ", false},
		{"too short", "ok!", false},
		{"exactly boundary", "abc", false},
		{"just over boundary", "abcd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := SMSCandidate{Timestamp: "t", Sender: "s", Text: tt.text}
			if got := c.Valid(); got != tt.want {
				t.Fatalf("Valid(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSMSCandidate_Message(t *testing.T) {
	c := SMSCandidate{Timestamp: "2025-01-02 10:00", Sender: "ACME", Text: "code 9999", Service: "acme"}
	m := c.Message()
	if m.ID != MessageID(c.Timestamp, c.Sender, c.Text) {
		t.Fatalf("unexpected id: %q", m.ID)
	}
	if m.Timestamp != c.Timestamp || m.Sender != c.Sender || m.Text != c.Text || m.Service != c.Service {
		t.Fatalf("fields not carried over: %+v", m)
	}
	if !m.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt must be zero until the store assigns it, got %v", m.CreatedAt)
	}
	if m.SentToTelegram {
		t.Fatal("new message must start unsent")
	}
}
