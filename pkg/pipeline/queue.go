package pipeline

// sampleQueue is a rolling FIFO of float32 samples. The backlog is
// typically below one frame, so a sliding slice with occasional compaction
// is enough.
type sampleQueue struct {
	buf  []float32
	head int
}

func (q *sampleQueue) Len() int {
	return len(q.buf) - q.head
}

func (q *sampleQueue) Push(samples []float32) {
	if q.head > 0 && q.head >= len(q.buf)/2 {
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	q.buf = append(q.buf, samples...)
}

// PopInto moves exactly len(dst) samples into dst; it reports false (and
// moves nothing) when fewer are queued.
func (q *sampleQueue) PopInto(dst []float32) bool {
	if q.Len() < len(dst) {
		return false
	}
	copy(dst, q.buf[q.head:])
	q.head += len(dst)
	return true
}

// PopUpTo moves at most len(dst) samples into dst and returns the amount
// moved.
func (q *sampleQueue) PopUpTo(dst []float32) int {
	n := q.Len()
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], q.buf[q.head:])
	q.head += n
	return n
}

func (q *sampleQueue) Reset() {
	q.buf = q.buf[:0]
	q.head = 0
}
