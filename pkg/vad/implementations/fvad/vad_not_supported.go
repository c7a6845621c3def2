//go:build !fvad
// +build !fvad

package fvad

import (
	"fmt"

	"github.com/voxfilter-go/voxfilter/pkg/vad"
)

// Supported reports whether this build carries the libfvad backend.
const Supported = false

type VAD struct{}

func NewVAD(int) (vad.VAD, error) {
	return nil, fmt.Errorf("built without tag 'fvad'")
}
