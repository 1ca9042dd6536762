package model

// ApplyDecay multiplies every learned frequency, count, probability and
// sequence confidence by rate. Intent mappings and error fixes carry
// explicit success counts and are left alone.
func (m *Model) ApplyDecay(rate float64) {
	for k, v := range m.CommandFrequency {
		m.CommandFrequency[k] = v * rate
	}
	for i := range m.CommonSequences {
		m.CommonSequences[i].Frequency *= rate
		m.CommonSequences[i].Confidence *= rate
	}
	for i := range m.ErrorPatterns {
		m.ErrorPatterns[i].Frequency *= rate
	}
	for _, pc := range m.ProjectContexts {
		scaleCounts(pc.Commands, rate)
	}
	for _, slot := range m.TimePatterns {
		for i := range slot {
			slot[i].Count *= rate
		}
	}
	for _, entries := range m.NGramModel {
		for i := range entries {
			entries[i].Probability *= rate
		}
	}
	for _, counts := range m.DirectoryCommands {
		scaleCounts(counts, rate)
	}
}

func scaleCounts(counts map[string]float64, rate float64) {
	for k, v := range counts {
		counts[k] = v * rate
	}
}

// PrunePatterns drops weak entries: command frequencies below
// minOccurrences*0.1, sequences below minOccurrences and error patterns
// whose whole-number frequency is below minOccurrences. It returns the
// number of entries removed.
func (m *Model) PrunePatterns(minOccurrences int) int {
	removed := 0
	threshold := float64(minOccurrences)

	for k, v := range m.CommandFrequency {
		if v < threshold*0.1 {
			delete(m.CommandFrequency, k)
			removed++
		}
	}

	seqs := m.CommonSequences[:0]
	for _, s := range m.CommonSequences {
		if s.Frequency < threshold {
			removed++
			continue
		}
		seqs = append(seqs, s)
	}
	m.CommonSequences = seqs

	patterns := m.ErrorPatterns[:0]
	for _, p := range m.ErrorPatterns {
		if int(p.Frequency) < minOccurrences {
			removed++
			continue
		}
		patterns = append(patterns, p)
	}
	m.ErrorPatterns = patterns

	return removed
}
