package loop

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/trinity/internal/trinity"
)

// TextSink writes panel updates as lines of text. It is driven from the
// loop goroutine only.
type TextSink struct {
	w       io.Writer
	last    *trinity.Result
	lastErr error
	stale   bool
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) ShowLoading(req trinity.Request) {
	fmt.Fprintf(s.w, "… #%d %s requested\n", req.Seq, req.Snapshot)
}

func (s *TextSink) ShowResult(res *trinity.Result) {
	s.last, s.lastErr, s.stale = res, nil, false
	fmt.Fprintf(s.w, "✔ #%d rendered (%s)\n", res.Seq, DescribeImage(res.Image))
	for _, line := range strings.Split(res.DiagnosticText, "\n") {
		fmt.Fprintf(s.w, "    %s\n", line)
	}
}

func (s *TextSink) ShowError(err error) {
	s.lastErr = err
	if s.last != nil {
		s.stale = true
		fmt.Fprintf(s.w, "✖ %v (showing stale render #%d)\n", err, s.last.Seq)
		return
	}
	fmt.Fprintf(s.w, "✖ %v\n", err)
}

// Last returns the most recent render, if any.
func (s *TextSink) Last() *trinity.Result { return s.last }

func (s *TextSink) Err() error { return s.lastErr }

// Stale reports whether an error followed the displayed render.
func (s *TextSink) Stale() bool { return s.stale }

// DescribeImage summarises an image reference in a few words.
func DescribeImage(img trinity.ImageRef) string {
	switch {
	case len(img.Data) > 0:
		return fmt.Sprintf("%s, %.1f KB", img.MIME, float64(len(img.Data))/1024)
	case img.URI != "":
		return img.URI
	}
	return "no image"
}

// IsValidation reports whether err is rejected user input.
func IsValidation(err error) bool { return errors.Is(err, trinity.ErrInvalidDamping) }
