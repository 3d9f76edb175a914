package textnorm

import "strings"

const (
	// minCharRun is the run length at which a repeated single character is
	// treated as a streaming hallucination and collapsed.
	minCharRun = 6

	// minPhraseLen is the shortest substring considered for phrase collapse.
	minPhraseLen = 4

	// minPhraseReps is the number of consecutive occurrences (original plus
	// immediate repetitions) that triggers phrase collapse.
	minPhraseReps = 3
)

// Clean removes repeated-token streaming artifacts from raw transcript text.
// The transcription source hallucinates repeats during silence or noise, and
// a repeat can straddle delta boundaries, so callers pass the whole
// accumulated buffer rather than individual deltas. Clean is pure, total,
// and idempotent, and operates on runes so mixed Latin/CJK text collapses
// per logical character rather than per byte.
func Clean(text string) string {
	runes := []rune(text)
	runes = collapseCharRuns(runes)
	runes = collapsePhraseRepeats(runes)
	return strings.TrimSpace(string(runes))
}

// collapseCharRuns reduces any run of one character of length >= minCharRun
// to a single instance of that character.
func collapseCharRuns(runes []rune) []rune {
	if len(runes) == 0 {
		return runes
	}

	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}

		run := j - i
		if run >= minCharRun {
			out = append(out, runes[i])
		} else {
			out = append(out, runes[i:j]...)
		}
		i = j
	}
	return out
}

// collapsePhraseRepeats reduces any substring of length >= minPhraseLen that
// occurs minPhraseReps or more times consecutively down to one instance.
// Shorter units are preferred so the smallest repeating period wins.
func collapsePhraseRepeats(runes []rune) []rune {
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); {
		collapsed := false
		maxUnit := (len(runes) - i) / minPhraseReps
		for unit := minPhraseLen; unit <= maxUnit; unit++ {
			reps := countRepeats(runes, i, unit)
			if reps >= minPhraseReps {
				out = append(out, runes[i:i+unit]...)
				i += reps * unit
				collapsed = true
				break
			}
		}
		if !collapsed {
			out = append(out, runes[i])
			i++
		}
	}
	return out
}

// countRepeats counts how many times the unit starting at offset repeats
// back to back, including the first occurrence.
func countRepeats(runes []rune, offset, unit int) int {
	reps := 1
	for {
		start := offset + reps*unit
		if start+unit > len(runes) {
			return reps
		}
		for k := 0; k < unit; k++ {
			if runes[start+k] != runes[offset+k] {
				return reps
			}
		}
		reps++
	}
}
