//go:build !rnnoise
// +build !rnnoise

package rnnoise

import (
	"context"
	"fmt"

	"github.com/voxfilter-go/voxfilter/pkg/suppression"
)

// Supported reports whether this build carries the neural backend.
const Supported = false

func New(context.Context) (suppression.Suppressor, error) {
	return nil, fmt.Errorf("built without tag 'rnnoise'")
}
