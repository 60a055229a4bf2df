package models

import "sort"

// ThreadOrder returns records in arrival order (timestamp, then ordinal)
// adjusted so that a parent present in the batch is always emitted before
// its children. Parents missing from the batch are ignored and reply cycles
// are broken at the first message seen. The input slice is not modified.
func ThreadOrder(records []*Record) []*Record {
	sorted := make([]*Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i].Message, &sorted[j].Message
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.OrdinalID < b.OrdinalID
	})

	byID := make(map[string]*Record, len(sorted))
	for _, r := range sorted {
		if _, ok := byID[r.Message.MessageID]; !ok {
			byID[r.Message.MessageID] = r
		}
	}

	out := make([]*Record, 0, len(sorted))
	emitted := make(map[*Record]bool, len(sorted))
	visiting := make(map[*Record]bool)

	var visit func(r *Record)
	visit = func(r *Record) {
		if emitted[r] || visiting[r] {
			return
		}
		visiting[r] = true
		if !r.Message.IsThreadRoot() {
			if p, ok := byID[r.Message.ParentMessageID]; ok {
				visit(p)
			}
		}
		delete(visiting, r)
		emitted[r] = true
		out = append(out, r)
	}

	for _, r := range sorted {
		visit(r)
	}
	return out
}
