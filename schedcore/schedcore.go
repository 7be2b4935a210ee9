// Package schedcore is the core of a pedagogical process-scheduler
// simulation, providing the engine that drives a synthetic operating-system
// trace.
//
// Mechanism of Operation
//
// The engine consumes a stream of driver-reported stop events (a process
// used part of its quantum and issued a syscall, or a process exhausted its
// quantum) and emits scheduling decisions (run a process for a quantum,
// idle for a duration, deadlock, panic, or done). It maintains per-process
// timing bookkeeping across three queues — ready, event-waiting, and
// sleeping — and enforces a liveness policy centered on an init process
// (pid 1): once pid 1 has been forked, its disappearance from every queue
// while other processes remain is reported as a panic.
//
// The engine is single-threaded and synchronous: every transition happens
// inside a call to Next, Stop, or List. There is no background goroutine,
// no wall-clock time, and no notion of cancellation — the driver supplies
// every tick.
//
// Policies
//
// Two concrete policies are provided: NewRoundRobin (FIFO ready queue,
// uniform quantum) and NewPriorityRoundRobin (priority-ordered ready
// placement with aging/boosting). NewFair is declared for a third,
// completely-fair-style policy but is intentionally a stub.
//
// Tracing
//
// Engines accept an optional Journaler, which receives Event values
// describing each transition. A nil Journaler is a valid no-op; tracing
// never affects scheduling semantics. Concrete Journaler implementations
// live in the sibling trace package.
package schedcore
