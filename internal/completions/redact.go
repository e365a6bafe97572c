package completions

import "regexp"

var (
	emailPattern = regexp.MustCompile("(?i)[-!#$%&'*+/0-9=?A-Z^_a-z`{|}~](\\.?[-!#$%&'*+/0-9=?A-Z^_a-z`{|}~])*@[a-zA-Z0-9](-*\\.?[a-zA-Z0-9])*\\.[a-zA-Z](-?[a-zA-Z0-9])+")
	phonePattern = regexp.MustCompile(`(\+?\d{1,2}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

// redactSensitive masks email addresses and phone numbers before a prompt or
// response is written to the query log.
func redactSensitive(text string) string {
	text = emailPattern.ReplaceAllString(text, "[REDACTED]")
	return phonePattern.ReplaceAllString(text, "[REDACTED]")
}
