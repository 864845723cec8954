package session

// HistoryCapacity is the number of candidate outputs a session retains.
const HistoryCapacity = 10

// ring is a fixed-capacity FIFO of strings; appending past capacity
// overwrites the oldest entry. Not safe for concurrent use.
type ring struct {
	buf   []string
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &ring{buf: make([]string, capacity)}
}

func (r *ring) push(s string) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// at returns the i-th entry counted from the oldest. Caller checks bounds.
func (r *ring) at(i int) string {
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring) set(i int, s string) {
	r.buf[(r.start+i)%len(r.buf)] = s
}

func (r *ring) len() int { return r.size }

func (r *ring) slice() []string {
	out := make([]string, r.size)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}
