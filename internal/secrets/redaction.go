package secrets

import (
	"regexp"
)

const replacement = "[REDACTED]"

type rule struct {
	pattern *regexp.Regexp
	repl    string
}

// Redactor masks credentials in strings bound for logs.
type Redactor struct {
	rules []rule
}

// NewRedactor creates a redactor with patterns for connection strings,
// auth headers and presigned-URL signatures.
func NewRedactor() *Redactor {
	defaults := []struct{ pattern, repl string }{
		// Database connection strings
		{`((?:postgres(?:ql)?|redis)://)[^:/\s]+:[^@\s]+@`, "${1}" + replacement + "@"},
		{`(?i)(password=)[^\s&]+`, "${1}" + replacement},
		// API credentials
		{`(?i)((?:client[_-]?secret|api[_-]?key|token|secret)["\s]*[:=]["\s]*)[^\s"',}&]+`, "${1}" + replacement},
		{`(?i)(bearer\s+)[a-zA-Z0-9\-\._~\+/]+=*`, "${1}" + replacement},
		// Presigned upload and download URLs
		{`(?i)((?:x-amz-signature|x-amz-credential|x-amz-security-token|signature|policy)=)[^&\s"]+`, "${1}" + replacement},
	}
	r := &Redactor{rules: make([]rule, len(defaults))}
	for i, d := range defaults {
		r.rules[i] = rule{pattern: regexp.MustCompile(d.pattern), repl: d.repl}
	}
	return r
}

// AddPattern adds a pattern whose whole match is replaced.
func (r *Redactor) AddPattern(pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{pattern: compiled, repl: replacement})
	return nil
}

// RedactString redacts sensitive data from a string
func (r *Redactor) RedactString(input string) string {
	result := input
	for _, rl := range r.rules {
		result = rl.pattern.ReplaceAllString(result, rl.repl)
	}
	return result
}

var defaultRedactor = NewRedactor()

// Redact masks input with the default patterns.
func Redact(input string) string {
	return defaultRedactor.RedactString(input)
}
