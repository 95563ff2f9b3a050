package notify

import (
	"strings"
	"testing"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
)

func TestExtractOTP(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"code is", "Your code is 482913", "482913"},
		{"verification code", "verification code: 1234", "1234"},
		{"otp prefix", "OTP: 99887766", "99887766"},
		{"suffix form", "553311 is your code", "553311"},
		{"your code", "your code: 7777", "7777"},
		{"bare six digits", "use 123456 to continue", "123456"},
		{"no digits", "hello there", ""},
		{"too short", "pin 123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractOTP(tt.text); got != tt.want {
				t.Fatalf("ExtractOTP(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestEscapeMarkdown(t *testing.T) {
	in := "a_b*c[d]e(f)g.h!i"
	got := EscapeMarkdown(in)
	want := `a\_b\*c\[d\]e\(f\)g\.h\!i`
	if got != want {
		t.Fatalf("EscapeMarkdown = %q, want %q", got, want)
	}
	if EscapeMarkdown("plain text") != "plain text" {
		t.Fatal("plain text must pass through unchanged")
	}
}

func TestSanitizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5551234567", "+15551234567"},
		{"(555) 123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"447911123456", "+447911123456"},
		{"ACME", "ACME"}, // alphanumeric sender IDs pass through
		{"12345", "12345"},
	}
	for _, tt := range tests {
		if got := SanitizePhone(tt.in); got != tt.want {
			t.Fatalf("SanitizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	if got := NormalizeTimestamp("2025-06-01T09:30:00"); got != "2025-06-01 09:30:00" {
		t.Fatalf("NormalizeTimestamp = %q", got)
	}
	if got := NormalizeTimestamp("2025-06-01 09:30"); got != "2025-06-01 09:30:00" {
		t.Fatalf("NormalizeTimestamp = %q", got)
	}
	// Unparsable input is preserved verbatim.
	if got := NormalizeTimestamp("five minutes ago"); got != "five minutes ago" {
		t.Fatalf("NormalizeTimestamp mangled unparsable input: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Fatalf("Truncate = %q", got)
	}
	got := Truncate(strings.Repeat("x", 50), 10)
	if got != strings.Repeat("x", 7)+"..." {
		t.Fatalf("Truncate = %q", got)
	}
	if len([]rune(got)) != 10 {
		t.Fatalf("truncated length = %d, want 10", len([]rune(got)))
	}
}

func TestFormatMessage(t *testing.T) {
	msg := domain.OTPMessage{
		ID:        "abc",
		Timestamp: "2025-06-01 09:30:00",
		Sender:    "5551234567",
		Text:      "Your code is 482913",
		Service:   "acme.example",
	}
	out := FormatMessage(msg)

	for _, want := range []string{
		"New SMS received",
		"`482913`",
		"+15551234567",
		`acme\.example`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("formatted message missing %q:\n%s", want, out)
		}
	}
}
