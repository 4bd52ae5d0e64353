package texture

import (
	"fmt"

	"github.com/goopsie/pixcodec/pkg/arbiter"
)

// Candidates returns every adapter in registration order.
func Candidates() []arbiter.Candidate {
	return []arbiter.Candidate{
		DDSCandidate(),
		PKMCandidate(),
		RawBCCandidate(),
		TICandidate(),
	}
}

// Register installs all adapters into reg.
func Register(reg *arbiter.Registry) error {
	for _, c := range Candidates() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("texture: %w", err)
		}
	}
	return nil
}
