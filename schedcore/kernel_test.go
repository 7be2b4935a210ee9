package schedcore

import "testing"

func mustRoundRobin(t *testing.T, quantum, minRemaining int) *Engine {
	t.Helper()
	e, err := NewRoundRobin(quantum, minRemaining, nil)
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}
	return e
}

func TestNewRoundRobinValidation(t *testing.T) {
	if _, err := NewRoundRobin(0, 0, nil); err == nil {
		t.Error("expected error for zero quantum")
	}
	if _, err := NewRoundRobin(5, -1, nil); err == nil {
		t.Error("expected error for negative minimum remaining quantum")
	}
	if _, err := NewPriorityRoundRobin(0, 0, nil); err == nil {
		t.Error("expected error for zero quantum")
	}
	if _, err := NewFair(0, 0, nil); err == nil {
		t.Error("expected error for zero total cpu time")
	}
}

func TestSingleInitExitsCleanly(t *testing.T) {
	e := mustRoundRobin(t, 5, 1)

	if r := e.Stop(SyscallStopReason(ForkSyscall(0), 5)); r.Kind != PidResult || r.Pid != 1 {
		t.Fatalf("fork bootstrap: got %v", r)
	}

	if d := e.Next(); d.Kind != Run || d.Pid != 1 || d.Quantum != 5 {
		t.Fatalf("next: got %v", d)
	}

	if r := e.Stop(SyscallStopReason(ExitSyscall(), 2)); r.Kind != Success {
		t.Fatalf("exit: got %v", r)
	}

	if d := e.Next(); d.Kind != Done {
		t.Fatalf("next after exit: got %v", d)
	}
}

func TestPanicOnInitExitWithLiveChild(t *testing.T) {
	e := mustRoundRobin(t, 5, 1)

	mustPid(t, e, 5, 1)

	if d := e.Next(); d.Kind != Run || d.Pid != 1 {
		t.Fatalf("next: got %v", d)
	}

	r := e.Stop(SyscallStopReason(ForkSyscall(0), 3))
	if r.Kind != PidResult || r.Pid != 2 {
		t.Fatalf("fork child: got %v", r)
	}

	d := e.Next()
	if d.Kind != Run || d.Pid != 1 || d.Quantum != 3 {
		t.Fatalf("next after fork (shortened quantum): got %v", d)
	}

	if r := e.Stop(SyscallStopReason(ExitSyscall(), 3)); r.Kind != Success {
		t.Fatalf("exit: got %v", r)
	}

	if d := e.Next(); d.Kind != Panic {
		t.Fatalf("next after init exit with live child: got %v", d)
	}

	// Idempotence of failure (P6): repeated calls keep reporting Panic.
	if d := e.Next(); d.Kind != Panic {
		t.Fatalf("next should still be panic: got %v", d)
	}
}

func TestDeadlockOnWaitWithNoSignaller(t *testing.T) {
	e := mustRoundRobin(t, 5, 1)
	mustPid(t, e, 5, 1)
	e.Next()

	if r := e.Stop(SyscallStopReason(ForkSyscall(0), 4)); r.Kind != PidResult || r.Pid != 2 {
		t.Fatalf("fork: got %v", r)
	}
	e.Next()

	if r := e.Stop(SyscallStopReason(WaitSyscall(7), 4)); r.Kind != Success {
		t.Fatalf("wait 1: got %v", r)
	}
	e.Next()

	if r := e.Stop(SyscallStopReason(WaitSyscall(7), 4)); r.Kind != Success {
		t.Fatalf("wait 2: got %v", r)
	}

	if d := e.Next(); d.Kind != Deadlock {
		t.Fatalf("expected deadlock, got %v", d)
	}
}

func TestSleepIdleCoalescing(t *testing.T) {
	e := mustRoundRobin(t, 5, 1)
	mustPid(t, e, 5, 1)
	e.Next()

	e.Stop(SyscallStopReason(ForkSyscall(0), 4))
	e.Next()

	if r := e.Stop(SyscallStopReason(SleepSyscall(3), 3)); r.Kind != Success {
		t.Fatalf("sleep pid1: got %v", r)
	}

	d := e.Next()
	if d.Kind != Run || d.Pid != 2 {
		t.Fatalf("expected pid 2 to run, got %v", d)
	}

	// pid 2 sleeps without consuming any of its quantum first, so pid 1's
	// remaining sleep isn't aged before the minimum is taken.
	if r := e.Stop(SyscallStopReason(SleepSyscall(5), d.Quantum)); r.Kind != Success {
		t.Fatalf("sleep pid2: got %v", r)
	}

	d = e.Next()
	if d.Kind != Sleep || d.Duration != 3 {
		t.Fatalf("expected Sleep(3), got %v", d)
	}

	d = e.Next()
	if d.Kind != Run || d.Pid != 1 || d.Quantum != 5 {
		t.Fatalf("expected pid 1 to wake and run with a fresh quantum, got %v", d)
	}

	procs := e.List()
	for _, p := range procs {
		if p.Pid == 2 && p.SleepRemaining != 2 {
			t.Fatalf("expected pid 2 to have 2 ticks remaining, got %d", p.SleepRemaining)
		}
	}
}

func TestSignalWakesWaitersInOriginalOrder(t *testing.T) {
	e := mustRoundRobin(t, 5, 1)
	mustPid(t, e, 5, 1)
	e.Next()

	for i := 0; i < 3; i++ {
		e.Stop(SyscallStopReason(ForkSyscall(0), 4))
		e.Next()
	}

	// Each iteration waits out whichever process is currently at the front
	// of ready_q, leaving pids 1-3 queued on the same event in that order
	// and pid 4 selected to run.
	for i := 0; i < 3; i++ {
		e.Stop(SyscallStopReason(WaitSyscall(42), 4))
		e.Next()
	}

	// pid 4 (the sole remaining ready process) signals 42, waking 1-3.
	e.Stop(SyscallStopReason(SignalSyscall(42), 4))

	// Inspect ready_q itself: List is sorted by pid, so it cannot show the
	// order the woken processes were queued in.
	var woken []Pid
	for _, p := range e.readyQ {
		if p.State.Kind == Ready {
			woken = append(woken, p.Pid)
		}
	}

	if len(woken) != 3 {
		t.Fatalf("expected 3 woken processes, got %d (%v)", len(woken), woken)
	}
	for i := 1; i < len(woken); i++ {
		if woken[i] < woken[i-1] {
			t.Fatalf("expected wake order to match wait insertion order, got %v", woken)
		}
	}
}

func TestQuantumHonouredOnSyscallWithSufficientRemainder(t *testing.T) {
	e := mustRoundRobin(t, 10, 3)
	mustPid(t, e, 10, 1)
	e.Next()

	if r := e.Stop(SyscallStopReason(SignalSyscall(1), 7)); r.Kind != Success {
		t.Fatalf("signal: got %v", r)
	}

	d := e.Next()
	if d.Kind != Run || d.Pid != 1 || d.Quantum != 7 {
		t.Fatalf("expected Run{1,7}, got %v", d)
	}
}

func TestNoRunningProcessDoesNotMutateQueues(t *testing.T) {
	e := mustRoundRobin(t, 5, 1)

	before := e.List()

	r := e.Stop(SyscallStopReason(WaitSyscall(1), 4))
	if r.Kind != NoRunningProcess {
		t.Fatalf("expected NoRunningProcess, got %v", r)
	}

	after := e.List()
	if len(before) != 0 || len(after) != 0 {
		t.Fatalf("expected empty queues before and after, got %d and %d", len(before), len(after))
	}
}

// mustPid performs the bootstrap fork of pid 1 and fails the test if it
// does not return Pid(1).
func mustPid(t *testing.T, e *Engine, remaining int, priority int8) {
	t.Helper()
	r := e.Stop(SyscallStopReason(ForkSyscall(priority), remaining))
	if r.Kind != PidResult || r.Pid != 1 {
		t.Fatalf("bootstrap fork: got %v", r)
	}
}
