package model

import "fmt"

// RequestState describes the lifecycle of the current enhancement request.
type RequestState int

const (
	StateIdle RequestState = iota
	StateInFlight
	StateSucceeded
	StateFailed
)

var requestStateNames = map[RequestState]string{
	StateIdle:      "idle",
	StateInFlight:  "in_flight",
	StateSucceeded: "succeeded",
	StateFailed:    "failed",
}

func (s RequestState) String() string {
	if name, ok := requestStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RequestState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s RequestState) MarshalText() ([]byte, error) {
	name, ok := requestStateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown request state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a state name.
func (s *RequestState) UnmarshalText(text []byte) error {
	for k, v := range requestStateNames {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown request state %q", string(text))
}
