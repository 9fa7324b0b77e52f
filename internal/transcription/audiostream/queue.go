package audiostream

// sendQueue holds audio waiting for the next send slot. When maxFrames is reached new audio is
// appended to the newest frame, so nothing is dropped.
type sendQueue struct {
	frames    [][]byte
	maxFrames int
	bytes     int
	merged    int
}

func newSendQueue(maxFrames int) *sendQueue {
	if maxFrames <= 0 {
		maxFrames = 1
	}
	return &sendQueue{maxFrames: maxFrames}
}

func (q *sendQueue) push(frame []byte) {
	if len(frame) == 0 {
		return
	}
	q.bytes += len(frame)
	if len(q.frames) >= q.maxFrames {
		last := len(q.frames) - 1
		q.frames[last] = append(q.frames[last], frame...)
		q.merged++
		return
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	q.frames = append(q.frames, cp)
}

// pushFront returns a frame that failed to send to the head of the queue.
func (q *sendQueue) pushFront(frame []byte) {
	if len(frame) == 0 {
		return
	}
	q.bytes += len(frame)
	q.frames = append([][]byte{frame}, q.frames...)
}

func (q *sendQueue) pop() []byte {
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	q.bytes -= len(f)
	return f
}

func (q *sendQueue) len() int { return len(q.frames) }
