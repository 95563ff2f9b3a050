// Package notify delivers OTP records to Telegram chats via the Bot API and
// renders them for display. This file holds the rendering helpers: OTP code
// extraction, MarkdownV2 escaping, phone and timestamp normalization.
package notify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
)

// otpPatterns are tried in order; the first capture wins. The bare 6-digit
// pattern is the last resort.
var otpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)code is (\d{4,8})`),
	regexp.MustCompile(`(?i)verification code:? (\d{4,8})`),
	regexp.MustCompile(`(?i)OTP:? (\d{4,8})`),
	regexp.MustCompile(`(?i)(\d{4,8}) is your code`),
	regexp.MustCompile(`(?i)your code:? (\d{4,8})`),
	regexp.MustCompile(`(\d{6})`),
}

// ExtractOTP pulls the verification code out of an SMS body, or returns ""
// when no pattern matches.
func ExtractOTP(text string) string {
	for _, re := range otpPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// markdownSpecials are the characters MarkdownV2 requires escaping for.
const markdownSpecials = `_*[]()~` + "`" + `>#+-=|{}.!`

// EscapeMarkdown escapes Telegram MarkdownV2 special characters.
func EscapeMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var nonDigitRE = regexp.MustCompile(`\D`)

// SanitizePhone normalizes a sender number for display. Inputs that do not
// look like phone numbers are returned unchanged.
func SanitizePhone(phone string) string {
	digits := nonDigitRE.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	case len(digits) > 11:
		return "+" + digits
	default:
		return phone
	}
}

// timestampLayouts are the formats the upstream site has been observed to
// emit.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
}

// NormalizeTimestamp reformats a best-effort parsed timestamp; unparsable
// values are preserved verbatim.
func NormalizeTimestamp(ts string) string {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format("2006-01-02 15:04:05")
		}
	}
	return ts
}

// Truncate shortens text to at most max runes, with an ellipsis when cut.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// FormatMessage renders one OTP record as a MarkdownV2 Telegram message.
func FormatMessage(msg domain.OTPMessage) string {
	var b strings.Builder

	b.WriteString("🆕 *New SMS received*")
	if otp := ExtractOTP(msg.Text); otp != "" {
		fmt.Fprintf(&b, "\n🔑 OTP: `%s`", otp)
	}
	fmt.Fprintf(&b, "\n\nFrom: `%s`", EscapeMarkdown(SanitizePhone(msg.Sender)))
	if msg.Service != "" {
		fmt.Fprintf(&b, "\nService: %s", EscapeMarkdown(msg.Service))
	}
	fmt.Fprintf(&b, "\nMessage: %s", EscapeMarkdown(Truncate(msg.Text, 400)))
	fmt.Fprintf(&b, "\nTime: %s", EscapeMarkdown(NormalizeTimestamp(msg.Timestamp)))

	return b.String()
}
