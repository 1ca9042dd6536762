package model

import "sort"

// UpdateNGram records that next followed prev. The observed successor's
// probability gets an EMA hit; the list stays sorted and capped at 10, a
// new successor replacing the weakest one when full.
// It reports whether the pair was already known.
func (m *Model) UpdateNGram(prev, next string, alpha float64) bool {
	from, to := Normalize(prev), Normalize(next)
	if from == "" || to == "" {
		return false
	}

	entries := m.NGramModel[from]
	existed := false
	for i := range entries {
		if entries[i].Command == to {
			entries[i].Probability = entries[i].Probability*(1-alpha) + alpha
			existed = true
			break
		}
	}
	if !existed {
		// Entries are kept sorted, so the weakest is last.
		if len(entries) >= topK {
			entries = entries[:topK-1]
		}
		entries = append(entries, NGramEntry{Command: to, Probability: alpha})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Probability > entries[j].Probability
	})
	m.NGramModel[from] = entries
	return existed
}

// PredictNextNGram returns the ranked successors of current.
func (m *Model) PredictNextNGram(current string) []NGramEntry {
	entries := m.NGramModel[Normalize(current)]
	if len(entries) == 0 {
		return nil
	}
	return append([]NGramEntry(nil), entries...)
}
