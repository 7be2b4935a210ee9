package schedcore

import "testing"

func TestJournalRecordsForkRunExit(t *testing.T) {
	journal := &mockJournaler{}
	e, err := NewRoundRobin(5, 1, journal)
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}

	e.Stop(SyscallStopReason(ForkSyscall(0), 5))
	journal.Verify(t, true, []Event{
		&EventForked{Pid: 1, Parent: 0, Priority: 0},
	})

	e.Next()
	journal.Verify(t, true, []Event{
		&EventRun{Pid: 1, Quantum: 5},
	})

	e.Stop(SyscallStopReason(ExitSyscall(), 2))
	journal.Verify(t, true, []Event{
		&EventExited{Pid: 1},
	})

	e.Next()
	journal.Verify(t, true, []Event{
		&EventDone{},
	})

	// Calling Next again while still done must not re-announce.
	e.Next()
	journal.Verify(t, true, nil)
}

func TestJournalSuppressesRepeatedPanic(t *testing.T) {
	journal := &mockJournaler{}
	e, err := NewRoundRobin(5, 1, journal)
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}

	e.Stop(SyscallStopReason(ForkSyscall(0), 5))
	journal.Verify(t, true, []Event{&EventForked{Pid: 1, Parent: 0, Priority: 0}})

	e.Next()
	journal.Verify(t, true, []Event{&EventRun{Pid: 1, Quantum: 5}})

	e.Stop(SyscallStopReason(ForkSyscall(0), 3))
	journal.Verify(t, true, []Event{&EventForked{Pid: 2, Parent: 1, Priority: 0}})

	e.Next()
	journal.Verify(t, true, []Event{&EventRun{Pid: 1, Quantum: 3}})

	e.Stop(SyscallStopReason(ExitSyscall(), 3))
	journal.Verify(t, true, []Event{&EventExited{Pid: 1}})

	e.Next()
	journal.Verify(t, true, []Event{&EventPanic{}})

	// A second, third call must not produce additional panic entries.
	e.Next()
	e.Next()
	journal.Verify(t, true, nil)
}

func TestJournalRecordsSleepAndWake(t *testing.T) {
	journal := &mockJournaler{}
	e, err := NewRoundRobin(5, 1, journal)
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}

	e.Stop(SyscallStopReason(ForkSyscall(0), 5))
	journal.Verify(t, true, []Event{&EventForked{Pid: 1, Parent: 0, Priority: 0}})

	e.Next()
	journal.Verify(t, true, []Event{&EventRun{Pid: 1, Quantum: 5}})

	e.Stop(SyscallStopReason(SleepSyscall(2), 4))
	journal.Verify(t, true, []Event{&EventSlept{Pid: 1, Ticks: 2}})

	// Nothing ready: idle sleep is not itself journaled as an event (it is
	// a Decision, not a Event); the wake on the following Next is.
	e.Next()
	journal.Verify(t, true, nil)

	e.Next()
	journal.Verify(t, true, []Event{
		&EventWoke{Pid: 1},
		&EventRun{Pid: 1, Quantum: 5},
	})
}
