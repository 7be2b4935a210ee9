package schedcore

import "github.com/pkg/errors"

// Engine is the scheduler kernel: it owns the three queues and the global
// counters, and exposes Next, Stop, and List. An Engine is not safe for
// concurrent use; like cronmon's Process, it is meant to be driven from a
// single goroutine.
type Engine struct {
	policy  policy
	journal Journaler

	readyQ []*Process
	waitQ  []*Process
	sleepQ []*Process

	nextPid        Pid
	defaultQuantum int
	currentQuantum int
	minRemaining   int

	idleAccumulator int
	initArmed       bool

	// announced remembers the last terminal decision kind reported, so
	// Panic/Deadlock/Done events are only written to the journal once
	// per episode rather than on every idempotent Next call.
	announced    DecisionKind
	hasAnnounced bool
}

// NewRoundRobin builds an Engine running the plain FIFO round-robin
// policy: ready-queue inserts go to the tail, priority is stored but
// ignored. j may be nil to disable tracing.
func NewRoundRobin(quantum, minimumRemainingQuantum int, j Journaler) (*Engine, error) {
	return newEngine(fifoPolicy{}, quantum, minimumRemainingQuantum, j)
}

// NewPriorityRoundRobin builds an Engine running the priority-ordered
// round-robin policy: ready-queue inserts are kept sorted by priority
// descending (ties broken by insertion order), and priority ages on
// expiry (decrement) and on waking from wait/sleep (increment, capped at
// the value held at fork). j may be nil to disable tracing.
func NewPriorityRoundRobin(quantum, minimumRemainingQuantum int, j Journaler) (*Engine, error) {
	return newEngine(priorityPolicy{}, quantum, minimumRemainingQuantum, j)
}

// NewFair builds an Engine for the declared-but-unimplemented "fair"
// policy slot. It satisfies the same contract as the other two
// constructors but its Engine always reports Done/Success/an empty list.
func NewFair(totalCPUTime, minimumRemainingQuantum int, j Journaler) (*Engine, error) {
	return newEngine(fairPolicy{}, totalCPUTime, minimumRemainingQuantum, j)
}

func newEngine(p policy, quantum, minimumRemainingQuantum int, j Journaler) (*Engine, error) {
	if quantum <= 0 {
		return nil, errors.New("schedcore: quantum must be positive")
	}
	if minimumRemainingQuantum < 0 {
		return nil, errors.New("schedcore: minimum remaining quantum must be non-negative")
	}

	return &Engine{
		policy:         p,
		journal:        j,
		defaultQuantum: quantum,
		currentQuantum: quantum,
		minRemaining:   minimumRemainingQuantum,
	}, nil
}

// Next returns the next scheduling decision. In order, it checks panic,
// deadlock, and
// termination, reconciles any pending idle credit, and either emits an
// idle Sleep decision or selects a process to Run.
func (e *Engine) Next() Decision {
	if e.policy.isStub() {
		return Decision{Kind: Done}
	}

	if e.initArmed && !e.pidPresent(1) {
		e.announceOnce(Panic, &EventPanic{})
		return Decision{Kind: Panic}
	}

	if len(e.readyQ) == 0 && len(e.sleepQ) == 0 && len(e.waitQ) != 0 {
		e.announceOnce(Deadlock, &EventDeadlock{})
		return Decision{Kind: Deadlock}
	}

	if len(e.readyQ) == 0 && len(e.waitQ) == 0 && len(e.sleepQ) == 0 {
		e.announceOnce(Done, &EventDone{})
		return Decision{Kind: Done}
	}

	e.hasAnnounced = false

	e.reconcileIdle()

	if len(e.readyQ) == 0 {
		return e.emitIdle()
	}

	front := e.readyQ[0]
	if front.State.Kind != Running {
		front.State = ProcessState{Kind: Running}
	}

	writeEvent(e.journal, &EventRun{Pid: front.Pid, Quantum: e.currentQuantum})
	return Decision{Kind: Run, Pid: front.Pid, Quantum: e.currentQuantum}
}

// announceOnce reports ev to the journal only the first time kind is
// observed in a row; repeated idempotent failures are not re-announced.
func (e *Engine) announceOnce(kind DecisionKind, ev Event) {
	if e.hasAnnounced && e.announced == kind {
		return
	}
	e.announced = kind
	e.hasAnnounced = true
	writeEvent(e.journal, ev)
}

// reconcileIdle folds the previously-emitted idle duration into every
// waiter's and sleeper's total, then wakes any sleeper whose remaining
// time has already reached zero.
func (e *Engine) reconcileIdle() {
	if e.idleAccumulator == 0 {
		return
	}

	credit := e.idleAccumulator
	e.idleAccumulator = 0

	for _, p := range e.waitQ {
		p.Timings.Total += credit
	}

	remaining := e.sleepQ[:0]
	for _, p := range e.sleepQ {
		p.Timings.Total += credit
		if p.SleepRemaining <= 0 {
			e.wake(p)
			continue
		}
		remaining = append(remaining, p)
	}
	e.sleepQ = remaining
}

// emitIdle computes the minimum remaining sleep across all sleepers,
// advances every sleeper by it, records it as pending idle credit, and
// returns the corresponding Sleep decision.
func (e *Engine) emitIdle() Decision {
	minSleep := e.sleepQ[0].SleepRemaining
	for _, p := range e.sleepQ[1:] {
		if p.SleepRemaining < minSleep {
			minSleep = p.SleepRemaining
		}
	}

	for _, p := range e.sleepQ {
		p.SleepRemaining = saturatingSub(p.SleepRemaining, minSleep)
	}

	e.idleAccumulator = minSleep
	return Decision{Kind: Sleep, Duration: minSleep}
}

// wake moves p from the sleep queue into the ready queue, applying the
// policy's wake-up priority adjustment and reporting an EventWoke.
func (e *Engine) wake(p *Process) {
	p.State = ProcessState{Kind: Ready}
	e.policy.adjustOnWake(p)
	e.insertReady(p)
	writeEvent(e.journal, &EventWoke{Pid: p.Pid})
}

// insertReady places p into the ready queue via the active policy without
// displacing a currently Running process from the front: a Running
// process must stay at ready_q.front until it is explicitly requeued or
// removed, even though the priority policy would otherwise be free to
// sort a higher-priority p ahead of it.
func (e *Engine) insertReady(p *Process) {
	if len(e.readyQ) > 0 && e.readyQ[0].State.Kind == Running {
		running := e.readyQ[0]
		e.readyQ = e.readyQ[1:]
		e.policy.insertReady(e, p)
		e.readyQ = append([]*Process{running}, e.readyQ...)
		return
	}
	e.policy.insertReady(e, p)
}

// Stop advances the engine's state in response to a driver-reported stop
// event: either a fully-elapsed quantum, or a syscall with the unused
// tail of the quantum. It ages sleepers, charges the running process and
// every other ready or waiting process for the elapsed ticks, resets the
// quantum, and then applies the specific syscall or expiry.
func (e *Engine) Stop(reason StopReason) SyscallResult {
	if e.policy.isStub() {
		return SyscallResult{Kind: Success}
	}

	isFork := reason.Kind == SyscallStop && reason.Call.Kind == Fork
	if !isFork && len(e.readyQ) == 0 {
		writeEvent(e.journal, &EventWarning{Component: "engine", Message: "stop reported with no running process"})
		return SyscallResult{Kind: NoRunningProcess}
	}

	// Capture the process that is actually running before ageSleepers can
	// wake anyone: under the priority policy a woken sleeper whose
	// boosted priority beats the running process is inserted ahead of
	// it, so e.readyQ[0] is no longer a safe way to refer to "the
	// process that was running" once ageSleepers has run.
	var running *Process
	if len(e.readyQ) > 0 {
		running = e.readyQ[0]
	}

	var elapsed int
	if reason.Kind == Expired {
		elapsed = e.currentQuantum
	} else {
		elapsed = e.currentQuantum - reason.Remaining
	}

	e.ageSleepers(elapsed)
	e.idleAccumulator = 0

	if running != nil {
		if reason.Kind == Expired {
			running.Timings.CPU += elapsed
		} else {
			running.Timings.Syscalls++
			// The syscall instruction itself consumes one tick that
			// is not cpu-time; elapsed is guaranteed >= 1 whenever
			// remaining is properly less than the quantum.
			if cpu := elapsed - 1; cpu > 0 {
				running.Timings.CPU += cpu
			}
		}
	}

	for _, p := range e.readyQ {
		p.Timings.Total += elapsed
	}
	for _, p := range e.waitQ {
		p.Timings.Total += elapsed
	}

	e.currentQuantum = e.defaultQuantum

	switch reason.Kind {
	case Expired:
		return e.stopExpired(running)
	default:
		switch reason.Call.Kind {
		case Fork:
			return e.stopFork(running, reason.Call, reason.Remaining)
		case Wait:
			return e.stopWait(running, reason.Call.Event)
		case SleepCall:
			return e.stopSleep(running, reason.Call.Ticks)
		case Signal:
			return e.stopSignal(running, reason.Call.Event, reason.Remaining)
		case Exit:
			return e.stopExit(running)
		default:
			return SyscallResult{Kind: Success}
		}
	}
}

// ageSleepers advances every sleeper's total by elapsed, decrements its
// remaining time (saturating at zero), and wakes any that reach zero.
func (e *Engine) ageSleepers(elapsed int) {
	remaining := e.sleepQ[:0]
	for _, p := range e.sleepQ {
		p.Timings.Total += elapsed
		p.SleepRemaining = saturatingSub(p.SleepRemaining, elapsed)
		if p.SleepRemaining == 0 {
			// Undo the correction: the process now joins ready_q and
			// will be charged elapsed again by the generic ready_q
			// loop in Stop, avoiding double-counting.
			p.Timings.Total -= elapsed
			e.wake(p)
			continue
		}
		remaining = append(remaining, p)
	}
	e.sleepQ = remaining
}

func (e *Engine) stopExpired(running *Process) SyscallResult {
	p := removeProcess(&e.readyQ, running)
	p.State = ProcessState{Kind: Ready}
	e.policy.adjustOnExpire(p)
	e.insertReady(p)
	return SyscallResult{Kind: Success}
}

func (e *Engine) stopFork(parent *Process, call Syscall, remaining int) SyscallResult {
	e.nextPid++
	pid := e.nextPid
	priority := e.policy.resolveForkPriority(parent, call.Priority)

	child := &Process{
		Pid:          pid,
		State:        ProcessState{Kind: Ready},
		Priority:     priority,
		forkPriority: priority,
	}

	sufficientRemaining := remaining >= e.minRemaining

	if parent != nil {
		if sufficientRemaining {
			// Leave it Running: state untouched.
		} else {
			parent.State = ProcessState{Kind: Ready}
		}
	}

	e.insertReady(child)

	if sufficientRemaining {
		e.currentQuantum = remaining
	}

	if pid == 1 {
		e.initArmed = true
	}

	writeEvent(e.journal, &EventForked{Pid: pid, Parent: parentPid(parent), Priority: priority})

	return SyscallResult{Kind: PidResult, Pid: pid}
}

func parentPid(parent *Process) Pid {
	if parent == nil {
		return 0
	}
	return parent.Pid
}

func (e *Engine) stopWait(running *Process, event int) SyscallResult {
	p := removeProcess(&e.readyQ, running)
	p.State = WaitingOn(event)
	e.waitQ = append(e.waitQ, p)
	return SyscallResult{Kind: Success}
}

func (e *Engine) stopSleep(running *Process, ticks int) SyscallResult {
	p := removeProcess(&e.readyQ, running)
	p.SleepRemaining = ticks
	p.State = Sleeping()
	e.sleepQ = append(e.sleepQ, p)
	writeEvent(e.journal, &EventSlept{Pid: p.Pid, Ticks: ticks})
	return SyscallResult{Kind: Success}
}

func (e *Engine) stopSignal(running *Process, event, remaining int) SyscallResult {
	sender := removeProcess(&e.readyQ, running)

	stillWaiting := e.waitQ[:0]
	for _, p := range e.waitQ {
		if p.State.IsEventWait() && *p.State.Event == event {
			p.State = ProcessState{Kind: Ready}
			e.policy.adjustOnWake(p)
			e.insertReady(p)
			writeEvent(e.journal, &EventSignalled{Pid: p.Pid, Event: event})
			continue
		}
		stillWaiting = append(stillWaiting, p)
	}
	e.waitQ = stillWaiting

	if remaining >= e.minRemaining {
		sender.State = ProcessState{Kind: Running}
		e.currentQuantum = remaining
		e.readyQ = append([]*Process{sender}, e.readyQ...)
	} else {
		sender.State = ProcessState{Kind: Ready}
		e.insertReady(sender)
	}

	return SyscallResult{Kind: Success}
}

func (e *Engine) stopExit(running *Process) SyscallResult {
	p := removeProcess(&e.readyQ, running)
	writeEvent(e.journal, &EventExited{Pid: p.Pid})

	if p.Pid == 1 && len(e.readyQ) == 0 && len(e.waitQ) == 0 && len(e.sleepQ) == 0 {
		e.initArmed = false
	}

	return SyscallResult{Kind: Success}
}

// List returns a snapshot of every process currently in any queue, ordered
// by ascending pid. The returned records are clones: mutating them does
// not affect the engine, and the snapshot remains valid until the next
// call to Next or Stop only in the sense that it will simply go stale, not
// because anything aliases it.
func (e *Engine) List() []*Process {
	if e.policy.isStub() {
		return nil
	}

	all := make([]*Process, 0, len(e.readyQ)+len(e.waitQ)+len(e.sleepQ))
	all = append(all, e.readyQ...)
	all = append(all, e.waitQ...)
	all = append(all, e.sleepQ...)

	insertionSortByPid(all)

	snapshot := make([]*Process, len(all))
	for i, p := range all {
		snapshot[i] = p.clone()
	}
	return snapshot
}

// insertionSortByPid sorts in place by ascending pid. The ready/wait/sleep
// queues are each small and already near-sorted in practice, so a plain
// insertion sort avoids pulling in sort.Slice for a handful of elements.
func insertionSortByPid(procs []*Process) {
	for i := 1; i < len(procs); i++ {
		for j := i; j > 0 && procs[j-1].Pid > procs[j].Pid; j-- {
			procs[j-1], procs[j] = procs[j], procs[j-1]
		}
	}
}
