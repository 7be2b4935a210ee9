package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"git.unix.lgbt/schedcore/schedcore/schedcore"
)

// step is one line of a scenario file: the syscall (or quantum expiry) the
// currently-running process reports, and how many ticks were left in its
// quantum when it did so.
type step struct {
	Kind      string `json:"kind"`
	Priority  *int8  `json:"priority,omitempty"`
	Event     int    `json:"event,omitempty"`
	Ticks     int    `json:"ticks,omitempty"`
	Remaining int    `json:"remaining"`
}

func (s step) stopReason() (schedcore.StopReason, error) {
	switch s.Kind {
	case "expired":
		return schedcore.ExpiredStop(), nil
	case "fork":
		if s.Priority != nil {
			return schedcore.SyscallStopReason(schedcore.ForkSyscall(*s.Priority), s.Remaining), nil
		}
		return schedcore.SyscallStopReason(schedcore.ForkSyscallInherit(), s.Remaining), nil
	case "wait":
		return schedcore.SyscallStopReason(schedcore.WaitSyscall(s.Event), s.Remaining), nil
	case "sleep":
		return schedcore.SyscallStopReason(schedcore.SleepSyscall(s.Ticks), s.Remaining), nil
	case "signal":
		return schedcore.SyscallStopReason(schedcore.SignalSyscall(s.Event), s.Remaining), nil
	case "exit":
		return schedcore.SyscallStopReason(schedcore.ExitSyscall(), s.Remaining), nil
	default:
		return schedcore.StopReason{}, fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

// loadScenario reads a scenario file: a JSON array of steps, each consumed
// once the engine selects a process to run.
func loadScenario(path string) ([]step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open scenario file")
	}
	defer f.Close()

	var steps []step
	if err := json.NewDecoder(f).Decode(&steps); err != nil {
		return nil, errors.Wrap(err, "failed to decode scenario file")
	}
	return steps, nil
}
