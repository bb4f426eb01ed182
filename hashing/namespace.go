package hashing

import (
	"encoding/json"
	"fmt"
)

// Namespace scopes several experiments to non-overlapping slices of the
// same population. Its wire form is an [id, start, end] tuple.
type Namespace struct {
	ID    string
	Start float64
	End   float64
}

func (ns *Namespace) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 3 {
		return fmt.Errorf("namespace must have exactly 3 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &ns.ID); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[1], &ns.Start); err != nil {
		return err
	}
	return json.Unmarshal(tuple[2], &ns.End)
}

func (ns Namespace) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{ns.ID, ns.Start, ns.End})
}

// InNamespace decides experiment-level inclusion: the user's hash, scoped
// to the namespace id, must fall inside the namespace's slice. Inclusion is
// independent of variation choice, which hashes with a different seed.
func InNamespace(hashValue string, ns *Namespace) bool {
	if ns == nil {
		return true
	}
	n := Hash("__"+ns.ID, hashValue, 1)
	if n == nil {
		return false
	}
	return *n >= ns.Start && *n < ns.End
}
