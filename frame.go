package roost

import (
	"encoding/json"
	"fmt"
)

// Frame is a snapshot of an environment at a given timestep. The name comes from
// video frame. State holds the current state (or a subset); Info holds metadata
// that does not vary with state. Both are JSON documents so a frame is always an
// independent copy, never an alias of live environment state.
type Frame struct {
	State json.RawMessage `json:"state,omitempty"`
	Info  json.RawMessage `json:"info,omitempty"`
}

// NewFrame snapshots state and info via a JSON round-trip. Pass nil for fields
// that are irrelevant. Values that cannot be marshaled (channels, funcs, cycles)
// return an error.
func NewFrame(state, info any) (Frame, error) {
	var f Frame
	var err error
	if state != nil {
		if f.State, err = json.Marshal(state); err != nil {
			return Frame{}, fmt.Errorf("snapshot state: %w", err)
		}
	}
	if info != nil {
		if f.Info, err = json.Marshal(info); err != nil {
			return Frame{}, fmt.Errorf("snapshot info: %w", err)
		}
	}
	return f, nil
}

// MustFrame is NewFrame that panics on marshal failure. Intended for ExportFrame
// implementations whose state is known to be marshalable.
func MustFrame(state, info any) Frame {
	f, err := NewFrame(state, info)
	if err != nil {
		panic("roost: " + err.Error())
	}
	return f
}
