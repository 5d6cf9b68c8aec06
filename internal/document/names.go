package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sawpanic/noticerun/internal/domain"
)

var (
	unsafeChars = regexp.MustCompile(`[\\/:"*?<>|]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// SanitizeFileName strips characters that are invalid in file names,
// collapses whitespace and truncates to 80 characters.
func SanitizeFileName(name string) string {
	name = unsafeChars.ReplaceAllString(name, " ")
	name = strings.TrimSpace(spaces.ReplaceAllString(name, " "))
	if len(name) > 80 {
		name = strings.TrimSpace(name[:80])
	}
	return name
}

// NoticeFileName names the notice of the unit at address. Only the part of
// the address before the first comma is used.
func NoticeFileName(address string, effective time.Time) string {
	street, _, _ := strings.Cut(address, ",")
	return fmt.Sprintf("N1 for Apartment %s Effective %s.pdf", SanitizeFileName(street), effective.Format(domain.LongDateLayout))
}

// PartFileName names part n of a building's notice bundle.
func PartFileName(building string, effective time.Time, n int) string {
	return fmt.Sprintf("Notices for %s %s Part %d.pdf", SanitizeFileName(building), effective.Format(domain.LongDateLayout), n)
}

// Money renders an amount as $1,234.56.
func Money(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String()
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
