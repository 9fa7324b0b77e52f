package speakerid

// ring keeps the last n guesses for one tag in a fixed slot array.
type ring struct {
	slots []string
	next  int
	size  int
}

func newRing(n int) *ring {
	return &ring{slots: make([]string, n)}
}

func (r *ring) push(v string) {
	r.slots[r.next] = v
	r.next = (r.next + 1) % len(r.slots)
	if r.size < len(r.slots) {
		r.size++
	}
}

// agreed reports whether the ring is full and every slot holds the same value.
func (r *ring) agreed() bool {
	if r.size < len(r.slots) {
		return false
	}
	for _, v := range r.slots[1:] {
		if v != r.slots[0] {
			return false
		}
	}
	return true
}

func (r *ring) reset() {
	for i := range r.slots {
		r.slots[i] = ""
	}
	r.next = 0
	r.size = 0
}
