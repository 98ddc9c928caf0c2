package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	plainTextPolicyOnce sync.Once
	plainTextPolicy     *bluemonday.Policy
)

// PlainText strips every HTML element from user input and returns unescaped
// text. Announcement bodies are rendered as text everywhere, and the email
// templates escape on output.
func PlainText(input string) string {
	value := strings.TrimSpace(input)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(getPlainTextPolicy().Sanitize(value)))
}

func PlainTextPtr(input *string) *string {
	if input == nil {
		return nil
	}
	value := PlainText(*input)
	return &value
}

func getPlainTextPolicy() *bluemonday.Policy {
	plainTextPolicyOnce.Do(func() {
		plainTextPolicy = bluemonday.StrictPolicy()
	})

	return plainTextPolicy
}
