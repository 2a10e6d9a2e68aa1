package bridge

import (
	"log/slog"

	"limetuna/internal/domain"
	"limetuna/internal/letters"
	"limetuna/internal/ports"
)

// letterSink decorates a startSession response with the matched letter.
type letterSink struct {
	next     *callbackSink
	expected string
	log      *slog.Logger
}

func newLetterSink(next *callbackSink, expected string, log *slog.Logger) *letterSink {
	return &letterSink{next: next, expected: expected, log: log}
}

func (s *letterSink) Success(payload any) {
	outcome, ok := payload.(domain.RecognitionOutcome)
	if !ok {
		s.next.Success(payload)
		return
	}
	s.next.Success(letterOutcome(outcome, s.expected, s.log))
}

func (s *letterSink) Error(code domain.ErrorCode, message string) {
	s.next.Error(code, message)
}

func (s *letterSink) Release() {
	s.next.Release()
}

var _ ports.Releaser = (*letterSink)(nil)

func letterOutcome(outcome domain.RecognitionOutcome, expected string, log *slog.Logger) domain.LetterOutcome {
	candidates := outcome.AllResults
	if len(candidates) == 0 && outcome.Text != "" {
		candidates = []string{outcome.Text}
		outcome.AllResults = candidates
	}

	result := domain.LetterOutcome{RecognitionOutcome: outcome}
	letter, ok := letters.Choose(candidates, expected)
	if ok {
		result.NormalizedLetter = &letter
	}
	log.Debug("letter matched", "expected", expected, "text", outcome.Text, "letter", letter, "matched", ok)
	return result
}
