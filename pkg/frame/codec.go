package frame

// FixedPointScale converts between normalized float samples and the
// fixed-point-in-float convention the noise suppression model expects
// (sample values in the int16 range, stored as floats).
const FixedPointScale = 32768

// Codec converts frames between the normalized representation used by the
// pipeline and the scaled representation consumed by a suppressor.
//
// The scratch buffer is loop-exclusive: it is owned by whoever owns the
// Codec, it is handed to a suppressor by reference for in-place processing,
// and it must not be retained by the callee across calls.
type Codec struct {
	scratch [Size]float32
}

func NewCodec() *Codec {
	return &Codec{}
}

// Scale writes f*FixedPointScale into the scratch buffer and returns it.
// The returned slice is valid until the next Scale call.
func (c *Codec) Scale(f Frame) []float32 {
	for idx := range c.scratch {
		c.scratch[idx] = f[idx] * FixedPointScale
	}
	return c.scratch[:]
}

// Unscale divides the (in-place processed) scratch back into normalized
// samples, writing the result into dst.
func (c *Codec) Unscale(dst Frame) {
	for idx := range c.scratch {
		dst[idx] = c.scratch[idx] / FixedPointScale
	}
}
