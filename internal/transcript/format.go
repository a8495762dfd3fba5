// Package transcript renders transcription results for display and export.
package transcript

import (
	"fmt"
	"strings"

	"video-transcriber/internal/domain"
)

// TimestampLayout formats the job start and end times shown in the header.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTime renders an offset in seconds as HH:MM:SS. Fractions are
// truncated, negative offsets clamp to zero and hours never wrap.
func FormatTime(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Format returns the raw transcript text and the timed listing shown to the
// user. Segments render one per line in their original order.
func Format(tr domain.Transcript, startedAt, endedAt string) (full, display string) {
	var b strings.Builder
	b.WriteString("Transcription started at: ")
	b.WriteString(startedAt)
	b.WriteString("\nTranscription ended at: ")
	b.WriteString(endedAt)
	b.WriteString("\n\n")

	if len(tr.Segments) == 0 {
		b.WriteString(tr.Text)
		b.WriteString("\n")
		return tr.Text, b.String()
	}

	for _, seg := range tr.Segments {
		b.WriteString(FormatTime(seg.Start))
		b.WriteByte('-')
		b.WriteString(FormatTime(seg.End))
		b.WriteByte(' ')
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteByte('\n')
	}
	return tr.Text, b.String()
}
