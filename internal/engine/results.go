package engine

import (
	"strings"

	"limetuna/internal/domain"
)

// mergeSegments joins consecutive final segments into ranked candidates. The
// i-th candidate concatenates each segment's i-th alternative, falling back to
// that segment's last one. A joined candidate scores as its weakest part.
func mergeSegments(segments [][]Alternative, limit int) domain.RecognitionResults {
	width := 0
	for _, segment := range segments {
		width = max(width, len(segment))
	}

	candidates := make([]string, 0, width)
	confidences := make([]float32, 0, width)
	scored := false

	for i := 0; i < width; i++ {
		parts := make([]string, 0, len(segments))
		var confidence float32
		first := true
		for _, segment := range segments {
			if len(segment) == 0 {
				continue
			}
			alt := segment[min(i, len(segment)-1)]
			text := strings.TrimSpace(alt.Transcript)
			if text == "" {
				continue
			}
			parts = append(parts, text)
			if first || alt.Confidence < confidence {
				confidence = alt.Confidence
			}
			first = false
			if alt.Confidence != 0 {
				scored = true
			}
		}
		if len(parts) == 0 {
			continue
		}
		candidates = append(candidates, strings.Join(parts, " "))
		confidences = append(confidences, confidence)
	}

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
		confidences = confidences[:limit]
	}

	results := domain.RecognitionResults{Candidates: candidates}
	if scored && len(candidates) > 0 {
		results.Confidences = confidences
	}
	return results
}

func hasText(alternatives []Alternative) bool {
	for _, alt := range alternatives {
		if strings.TrimSpace(alt.Transcript) != "" {
			return true
		}
	}
	return false
}
