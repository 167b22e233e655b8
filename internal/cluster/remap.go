package cluster

import "slices"

// Assignment pairs the raw labels produced by a clustering method with dense cluster IDs.
// IDs[i] is the 1-based ID of row i; K is the number of distinct raw labels.
type Assignment struct {
	Raw []int
	IDs []int
	K   int

	lookup map[int]int
}

// Remap sorts the distinct raw labels ascending and numbers them 1, 2, 3, ... in that order,
// so that noise (-1) and zero-based labels both become stable, human-readable IDs.
func Remap(raw []int) Assignment {
	distinct := slices.Clone(raw)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	lookup := make(map[int]int, len(distinct))
	for i, label := range distinct {
		lookup[label] = i + 1
	}

	ids := make([]int, len(raw))
	for i, label := range raw {
		ids[i] = lookup[label]
	}
	return Assignment{Raw: slices.Clone(raw), IDs: ids, K: len(distinct), lookup: lookup}
}

// ID returns the remapped ID of a raw label, or 0 if the label was never observed.
func (a Assignment) ID(raw int) int {
	return a.lookup[raw]
}
