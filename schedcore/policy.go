package schedcore

// minPriority is the floor priority aging saturates at under the priority
// policy.
const minPriority int8 = 0

// policy is the pluggable ordering of ready insertions and the aging rules
// that go with it. Round-robin and priority-round-robin share everything
// else in Engine; this is the ~15% that differs between them.
type policy interface {
	// insertReady places p into e.readyQ according to the policy's
	// ordering rule. p.State must already be Ready.
	insertReady(e *Engine, p *Process)

	// adjustOnExpire is called on a process right before it is
	// requeued as Ready after its quantum fully elapsed.
	adjustOnExpire(p *Process)

	// adjustOnWake is called on a process right before it is requeued
	// as Ready after waking from the wait queue or the sleep queue.
	adjustOnWake(p *Process)

	// resolveForkPriority computes the priority a newly forked process
	// should start with. parent is the process that was running at the
	// time of the fork (nil for the bootstrap fork of pid 1).
	// requested is the priority explicitly passed to the Fork syscall,
	// or nil if the caller asked the policy to decide.
	resolveForkPriority(parent *Process, requested *int8) int8

	// isStub reports whether this policy is a declared-but-unimplemented
	// stand-in (the "fair" slot), in which case Engine short-circuits
	// Next/Stop/List.
	isStub() bool
}

// fifoPolicy is the plain round-robin policy: ready-queue inserts go to
// the tail, priority is stored but never consulted.
type fifoPolicy struct{}

func (fifoPolicy) insertReady(e *Engine, p *Process) {
	e.readyQ = append(e.readyQ, p)
}

func (fifoPolicy) adjustOnExpire(*Process) {}
func (fifoPolicy) adjustOnWake(*Process)   {}

func (fifoPolicy) resolveForkPriority(_ *Process, requested *int8) int8 {
	if requested != nil {
		return *requested
	}
	return 0
}

func (fifoPolicy) isStub() bool { return false }

// priorityPolicy keeps the ready queue ordered by priority descending,
// ties broken by insertion order, and ages priority on expiry/wake.
type priorityPolicy struct{}

func (priorityPolicy) insertReady(e *Engine, p *Process) {
	idx := len(e.readyQ)
	for i, other := range e.readyQ {
		if other.Priority < p.Priority {
			idx = i
			break
		}
	}

	e.readyQ = append(e.readyQ, nil)
	copy(e.readyQ[idx+1:], e.readyQ[idx:])
	e.readyQ[idx] = p
}

func (priorityPolicy) adjustOnExpire(p *Process) {
	if p.Priority > minPriority {
		p.Priority--
	}
}

func (priorityPolicy) adjustOnWake(p *Process) {
	if p.Priority < p.forkPriority {
		p.Priority++
	}
}

func (priorityPolicy) resolveForkPriority(parent *Process, requested *int8) int8 {
	if requested != nil {
		return *requested
	}
	if parent != nil {
		return parent.Priority
	}
	return 0
}

func (priorityPolicy) isStub() bool { return false }

// fairPolicy is the declared-but-out-of-scope "fair" slot. It satisfies the
// policy interface but never schedules anything; Engine checks isStub
// before doing any real work when this policy is selected.
type fairPolicy struct{}

func (fairPolicy) insertReady(*Engine, *Process)             {}
func (fairPolicy) adjustOnExpire(*Process)                   {}
func (fairPolicy) adjustOnWake(*Process)                     {}
func (fairPolicy) resolveForkPriority(*Process, *int8) int8  { return 0 }
func (fairPolicy) isStub() bool                              { return true }
