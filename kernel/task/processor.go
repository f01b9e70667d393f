package task

// Processor is the scheduler state of one hart: the thread it runs and the
// context of its idle loop.
type Processor struct {
	id      int
	current *ThreadControlBlock
	idle    TaskContext
}

// NewProcessor returns the processor of the given hart.
func NewProcessor(id int) *Processor {
	return &Processor{id: id, idle: IdleContext()}
}

// ID returns the hart id.
func (p *Processor) ID() int { return p.id }

// Current returns the running thread or nil.
func (p *Processor) Current() *ThreadControlBlock { return p.current }

func (p *Processor) takeCurrent() *ThreadControlBlock {
	t := p.current
	p.current = nil
	return t
}
