// Command schedsim drives a schedcore.Engine through a scenario file of
// canned stop events, printing the engine's trace events and the final
// decision, and optionally tracing the events to a file. Idle Sleep
// decisions are not printed. It is a runnable example and integration-test fixture for the
// schedcore library, not part of the library itself: schedcore never reads
// a scenario or drives itself, by design.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"git.unix.lgbt/schedcore/schedcore/schedcore"
	"git.unix.lgbt/schedcore/schedcore/trace"
)

var (
	scenarioPath string
	tracePath    string
	policyName   string
	quantum      int
	minRemaining int
)

func init() {
	flag.StringVar(&scenarioPath, "scenario", "", "path to a JSON scenario file (required)")
	flag.StringVar(&tracePath, "trace", "", "path to an optional trace file")
	flag.StringVar(&policyName, "policy", "round-robin", "scheduling policy: round-robin, priority, or fair")
	flag.IntVar(&quantum, "quantum", 5, "quantum (or, for -policy=fair, total CPU time)")
	flag.IntVar(&minRemaining, "min-remaining", 1, "minimum remaining quantum to keep a process running after a syscall")

	flag.Usage = func() {
		f := func(format string, v ...interface{}) {
			fmt.Fprintf(flag.CommandLine.Output(), format, v...)
		}

		f("Usage:\n")
		f("  %s -scenario <path> [-trace <path>] [-policy <name>] [-quantum <n>] [-min-remaining <n>]\n", os.Args[0])
		f("\n")
		f("Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if scenarioPath == "" {
		log.Fatalln("missing -scenario path to scenario file")
	}
}

func main() {
	steps, err := loadScenario(scenarioPath)
	if err != nil {
		log.Fatalln("failed to load scenario:", err)
	}

	var journaler schedcore.Journaler = trace.NewHumanWriter(os.Stdout)

	if tracePath != "" {
		fileJournal, err := trace.NewFileLockJournaler(tracePath)
		if err != nil {
			log.Fatalln("failed to open trace file:", err)
		}
		defer fileJournal.Close()

		journaler = trace.NewMultiWriter(journaler, fileJournal)
	}

	engine, err := newEngine(policyName, quantum, minRemaining, journaler)
	if err != nil {
		log.Fatalln("failed to construct engine:", err)
	}

	run(engine, steps)
}

func newEngine(policy string, quantum, minRemaining int, j schedcore.Journaler) (*schedcore.Engine, error) {
	switch policy {
	case "round-robin":
		return schedcore.NewRoundRobin(quantum, minRemaining, j)
	case "priority":
		return schedcore.NewPriorityRoundRobin(quantum, minRemaining, j)
	case "fair":
		return schedcore.NewFair(quantum, minRemaining, j)
	default:
		return nil, fmt.Errorf("unknown policy %q", policy)
	}
}

// run drives engine through steps: each time Next selects a process to
// run, the next scenario step is consumed and reported back via Stop.
// Sleep decisions are idle ticks the engine accounts for on its own and
// need no driver action; Done, Panic, and Deadlock end the run.
func run(engine *schedcore.Engine, steps []step) {
	i := 0

	for {
		decision := engine.Next()

		switch decision.Kind {
		case schedcore.Done:
			fmt.Println("simulation done")
			return
		case schedcore.Panic:
			fmt.Println("simulation panicked: pid 1 exited with live children")
			return
		case schedcore.Deadlock:
			fmt.Println("simulation deadlocked: every process is blocked on an unsignalled event")
			return
		case schedcore.Sleep:
			continue
		case schedcore.Run:
			if i >= len(steps) {
				log.Fatalf("scenario exhausted after %d steps but pid %d is still running", i, decision.Pid)
			}

			reason, err := steps[i].stopReason()
			if err != nil {
				log.Fatalf("step %d: %v", i, err)
			}
			i++

			result := engine.Stop(reason)
			if result.Kind == schedcore.NoRunningProcess {
				log.Fatalf("step %d: engine reported no running process", i-1)
			}
		}
	}
}
