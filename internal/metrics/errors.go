package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"
)

var friendlyAliases = map[string]string{
	"url.Error":                     "Request URL error",
	"context.deadlineExceededError": "Context deadline exceeded",
	"net.OpError":                   "Network error",
	"tls.RecordHeaderError":         "TLS handshake error",
}

// ClassifyError maps a transport error onto the (code, message) pair a
// window tallies failures by. Timeouts and cancellations get stable codes so
// they group together regardless of the underlying message.
func ClassifyError(err error) (code, message string) {
	if err == nil {
		return "", ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", "Context deadline exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled", "Context canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", "Network timeout"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return "transport", FriendlyErrorName(fmt.Sprintf("%T", urlErr.Err))
	}
	return "error", FriendlyErrorName(fmt.Sprintf("%T", err))
}

// FriendlyErrorName returns a human-friendly label for a Go error type name.
func FriendlyErrorName(typeName string) string {
	cleaned := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if cleaned == "" {
		return "Unknown error"
	}
	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}
	if idx := strings.LastIndex(cleaned, "/"); idx != -1 {
		cleaned = cleaned[idx+1:]
	}

	pkg, name := "", cleaned
	if idx := strings.Index(name, "."); idx != -1 {
		pkg, name = name[:idx], name[idx+1:]
	}
	pretty := humanizeTypeName(name)
	if pretty == "" {
		pretty = name
	}
	if pkg != "" && pkg != "main" && pkg != "errors" {
		return fmt.Sprintf("%s (%s)", pretty, pkg)
	}
	return pretty
}

func humanizeTypeName(name string) string {
	var words []string
	var current []rune
	runes := []rune(name)

	flush := func() {
		if len(current) == 0 {
			return
		}
		word := string(current)
		if !isAllUpper(word) {
			word = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
		words = append(words, word)
		current = current[:0]
	}

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower)) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return strings.Join(words, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
