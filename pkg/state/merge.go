package state

import (
	"sort"

	"github.com/mohae/deepcopy"

	"github.com/aretw0/arbor/pkg/domain"
)

// Merge reduces states into a new state. States are applied in ascending fork
// ordinal; the first one contributes all of its values and each following one
// contributes only the keys it wrote. The result carries the metadata of the
// first state. Merge of a single state is a copy of it.
func Merge(states ...*State) *State {
	if len(states) == 0 {
		return nil
	}
	ordered := append([]*State(nil), states...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ordinal < ordered[j].ordinal
	})

	base := ordered[0]
	base.mu.RLock()
	out := &State{
		values:  make(map[domain.Key]any, len(base.values)),
		written: make(map[domain.Key]struct{}, len(base.written)),
		cache:   base.cache.clone(),
		meta:    base.meta,
		status:  base.status,
		pending: append([]domain.Key(nil), base.pending...),
		version: base.version,
		history: append([]*domain.Snapshot(nil), base.history...),
		ordinal: base.ordinal,
		lineage: base.lineage,
	}
	for k, v := range base.values {
		out.values[k] = deepcopy.Copy(v)
	}
	for k := range base.written {
		out.written[k] = struct{}{}
	}
	base.mu.RUnlock()

	for _, s := range ordered[1:] {
		s.mu.RLock()
		for _, k := range sortedKeys(s.written) {
			out.values[k] = deepcopy.Copy(s.values[k])
			out.written[k] = struct{}{}
		}
		out.pending = appendMissing(out.pending, s.pending)
		if s.version > out.version {
			out.version = s.version
		}
		s.mu.RUnlock()
		out.cache.absorb(s.cache)
	}

	if len(ordered) > 1 {
		out.commitLocked()
	}
	return out
}

func appendMissing(dst, src []domain.Key) []domain.Key {
	for _, k := range src {
		found := false
		for _, d := range dst {
			if d == k {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, k)
		}
	}
	return dst
}
