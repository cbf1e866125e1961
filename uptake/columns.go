package uptake

// ColumnCandidates defines possible header names for auto-detecting the
// speaker columns when none is given explicitly.
type ColumnCandidates struct {
	SpeakerA []string `json:"speakerA" yaml:"speaker_a"`
	SpeakerB []string `json:"speakerB" yaml:"speaker_b"`
}

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		SpeakerA: []string{DefaultSpeakerA, "speaker_a", "student_text", "student", "prev_text", "previous", "utterance_a"},
		SpeakerB: []string{DefaultSpeakerB, "speaker_b", "teacher_text", "teacher", "text", "response", "utterance_b"},
	}
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return defaultColumnCandidates().clone()
}

// withDefaults fills nil fields from the built-in candidates, allowing
// callers to override only the parts they need.
func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		SpeakerA: pickStrings(c.SpeakerA, defaults.SpeakerA),
		SpeakerB: pickStrings(c.SpeakerB, defaults.SpeakerB),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		SpeakerA: cloneStrings(c.SpeakerA),
		SpeakerB: cloneStrings(c.SpeakerB),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
