// Package report renders crawl reports for the snapshot file, the mail body
// and an optional iCalendar attachment.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

// Decorate returns a copy of lines where every header line is preceded by a
// blank line.
func Decorate(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if crawler.IsHeaderLine(line) {
			line = "\n" + line
		}
		out[i] = line
	}
	return out
}

// Text renders lines as the snapshot file layout: one decorated line per
// row, each terminated by a newline.
func Text(lines []string) []byte {
	var b strings.Builder
	for _, line := range Decorate(lines) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// MailTemplate holds the configured strings framing the mail body.
type MailTemplate struct {
	Subject        string
	Header         string
	Footer         string
	NoAvailability string
}

// SubjectFor appends the local month and day, e.g. "空き状況(01/05)".
func (t MailTemplate) SubjectFor(now time.Time) string {
	return fmt.Sprintf("%s(%s)", t.Subject, now.Format("01/02"))
}

// Body builds the mail text. An empty report uses the no-availability
// template.
func (t MailTemplate) Body(lines []string) string {
	if len(lines) == 0 {
		return strings.Join([]string{t.Header, t.NoAvailability, t.Footer}, "\n")
	}
	decorated := Decorate(lines)
	return t.Header + strings.Join(append(decorated, t.Footer), "\n")
}
