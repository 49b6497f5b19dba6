package pdfxl

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressStyle selects how upload progress is drawn.
type ProgressStyle string

const (
	// ProgressBar redraws a bar on one line.
	ProgressBar ProgressStyle = "bar"

	// ProgressPercent prints one "Uploading: N%" line per change.
	ProgressPercent ProgressStyle = "percent"
)

// ResultStyle selects how completed downloads are listed.
type ResultStyle string

const (
	// ResultLinks prints one URL per line.
	ResultLinks ResultStyle = "links"

	// ResultCards prints a numbered box per report.
	ResultCards ResultStyle = "cards"
)

// PresentationStyle configures a [TextSink]. The zero value uses
// [ProgressBar] and [ResultLinks].
type PresentationStyle struct {
	Progress ProgressStyle
	Results  ResultStyle
}

func (p PresentationStyle) withDefaults() PresentationStyle {
	if p.Progress == "" {
		p.Progress = ProgressBar
	}
	if p.Results == "" {
		p.Results = ResultLinks
	}
	return p
}

// ParseProgressStyle parses "bar" or "percent". Empty means bar.
func ParseProgressStyle(s string) (ProgressStyle, error) {
	switch ProgressStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProgressBar:
		return ProgressBar, nil
	case ProgressPercent:
		return ProgressPercent, nil
	default:
		return "", fmt.Errorf("unknown progress style %q (want bar or percent)", s)
	}
}

// ParseResultStyle parses "links" or "cards". Empty means links.
func ParseResultStyle(s string) (ResultStyle, error) {
	switch ResultStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", ResultLinks:
		return ResultLinks, nil
	case ResultCards:
		return ResultCards, nil
	default:
		return "", fmt.Errorf("unknown result style %q (want links or cards)", s)
	}
}

const barWidth = 30

// TextSink renders workflow events as plain text.
type TextSink struct {
	mu     sync.Mutex
	w      io.Writer
	style  PresentationStyle
	midBar bool // a bar line is open and needs a newline before other output
}

// NewTextSink creates a [TextSink] writing to w.
func NewTextSink(w io.Writer, style PresentationStyle) *TextSink {
	return &TextSink{w: w, style: style.withDefaults()}
}

func (s *TextSink) OnProgress(e ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.style.Progress == ProgressPercent {
		fmt.Fprintf(s.w, "Uploading: %d%%\n", e.Percent)
		return
	}

	filled := e.Percent * barWidth / 100
	fmt.Fprintf(s.w, "\rUploading [%s%s] %3d%%",
		strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), e.Percent)
	s.midBar = true
	if e.Percent == 100 {
		s.endBar()
	}
}

func (s *TextSink) OnStatus(e StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endBar()
	fmt.Fprintf(s.w, "Processing: %d of %d...\n", e.Snapshot.Processed, e.Snapshot.Total)
}

func (s *TextSink) OnTerminal(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endBar()
	if r.Err != nil {
		fmt.Fprintf(s.w, "Error: %s\n", UserMessage(r.Err))
		return
	}

	fmt.Fprintln(s.w, "All PDFs processed!")
	if len(r.Downloads) == 0 {
		return
	}
	fmt.Fprintln(s.w, "Download your structured Excel reports:")

	if s.style.Results == ResultCards {
		s.writeCards(r.Downloads)
		return
	}
	for _, d := range r.Downloads {
		fmt.Fprintf(s.w, "  %s\n", linkText(d))
	}
}

// linkText is what a result control shows for d.
func linkText(d Download) string {
	if d.URL == "" {
		return "(link unavailable)"
	}
	return d.URL
}

func (s *TextSink) writeCards(downloads []Download) {
	width := 0
	for _, d := range downloads {
		width = max(width, len(d.Label()), len(linkText(d)))
	}
	border := "+" + strings.Repeat("-", width+2) + "+"

	for _, d := range downloads {
		fmt.Fprintln(s.w, border)
		fmt.Fprintf(s.w, "| %-*s |\n", width, d.Label())
		fmt.Fprintf(s.w, "| %-*s |\n", width, linkText(d))
		fmt.Fprintln(s.w, border)
	}
}

func (s *TextSink) endBar() {
	if s.midBar {
		fmt.Fprintln(s.w)
		s.midBar = false
	}
}
