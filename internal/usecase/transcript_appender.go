package usecase

import (
	"strings"
	"sync"
)

// transcriptAppender drops empty events and repeats of the last applied text
// so a re-sent transcription lands in the description once.
type transcriptAppender struct {
	mu   sync.Mutex
	last string
}

func newTranscriptAppender() *transcriptAppender {
	return &transcriptAppender{}
}

// Accept reports whether text should be appended and normalizes it.
func (a *transcriptAppender) Accept(text string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" || text == a.last {
		return "", false
	}
	a.last = text
	return text, true
}

// appendText joins addition onto description with a single separating space.
func appendText(description, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return description
	}
	if description == "" {
		return addition
	}
	if strings.HasSuffix(description, " ") || strings.HasSuffix(description, "\n") {
		return description + addition
	}
	return description + " " + addition
}
