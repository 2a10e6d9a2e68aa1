package usecase

import "limetuna/internal/domain"

// buildOutcome picks the best candidate. Confidences are only trusted when they
// line up one-to-one with the candidates; otherwise the first candidate wins and
// no confidence is reported. Ties go to the earliest candidate.
func buildOutcome(results domain.RecognitionResults) (domain.RecognitionOutcome, bool) {
	if len(results.Candidates) == 0 {
		return domain.RecognitionOutcome{}, false
	}

	outcome := domain.RecognitionOutcome{
		Text:           results.Candidates[0],
		AllResults:     append([]string(nil), results.Candidates...),
		AllConfidences: append([]float32(nil), results.Confidences...),
	}

	if len(results.Confidences) == len(results.Candidates) {
		best := 0
		for i := 1; i < len(results.Confidences); i++ {
			if results.Confidences[i] > results.Confidences[best] {
				best = i
			}
		}
		score := results.Confidences[best]
		outcome.Text = results.Candidates[best]
		outcome.Confidence = &score
	}

	return outcome, true
}
