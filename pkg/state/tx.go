package state

import (
	"github.com/aretw0/arbor/pkg/domain"
)

// Tx buffers the writes of one Update scope.
type Tx struct {
	state     *State
	writes    map[domain.Key]any
	order     []domain.Key
	fulfilled []string
}

// Get reads through the buffered writes to the committed values.
func (tx *Tx) Get(key domain.Key) any {
	if v, ok := tx.writes[key]; ok {
		return v
	}
	if v, ok := tx.state.values[key]; ok {
		return v
	}
	return domain.Undefined
}

// Keys implements domain.Reader over committed and buffered values.
func (tx *Tx) Keys() []domain.Key {
	merged := make(map[domain.Key]struct{}, len(tx.state.values)+len(tx.writes))
	for k := range tx.state.values {
		merged[k] = struct{}{}
	}
	for k := range tx.writes {
		merged[k] = struct{}{}
	}
	return sortedKeys(merged)
}

// Set buffers a write.
func (tx *Tx) Set(key domain.Key, value any) error {
	if key.Space == domain.NamespaceTrigger {
		return ErrReadOnly
	}
	if _, seen := tx.writes[key]; !seen {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = value
	return nil
}

// MarkFulfilled records node's fulfilment in the execution cache on commit.
func (tx *Tx) MarkFulfilled(node string) {
	tx.fulfilled = append(tx.fulfilled, node)
}
