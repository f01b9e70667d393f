package task

import "github.com/Poseidon-fan/Artemos/kernel/sync"

// TaskManager is the FIFO ready queue shared by every hart.
type TaskManager struct {
	queue *sync.Cell[[]*ThreadControlBlock]
	ready chan struct{}
}

// NewTaskManager returns an empty ready queue.
func NewTaskManager() *TaskManager {
	return &TaskManager{
		queue: sync.NewCell[[]*ThreadControlBlock](nil),
		ready: make(chan struct{}, 1),
	}
}

// Add appends t to the queue and wakes one idle hart.
func (m *TaskManager) Add(t *ThreadControlBlock) {
	q := m.queue.Borrow()
	*q = append(*q, t)
	m.queue.Release()
	m.signal()
}

// Fetch removes and returns the thread at the head of the queue.
func (m *TaskManager) Fetch() (*ThreadControlBlock, bool) {
	q := m.queue.Borrow()
	defer m.queue.Release()

	if len(*q) == 0 {
		return nil, false
	}
	t := (*q)[0]
	(*q)[0] = nil
	*q = (*q)[1:]

	// Pass the wakeup on if more work is waiting.
	if len(*q) > 0 {
		m.signal()
	}
	return t, true
}

// Len returns the number of queued threads.
func (m *TaskManager) Len() int {
	q := m.queue.Borrow()
	defer m.queue.Release()
	return len(*q)
}

// Ready receives a value after a thread was queued.
func (m *TaskManager) Ready() <-chan struct{} { return m.ready }

func (m *TaskManager) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
