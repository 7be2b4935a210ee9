package schedcore

import (
	"reflect"
	"sync"
	"testing"
)

// mockJournaler is an in-memory Journaler, primarily used for testing. A
// zero-value instance is a valid instance.
type mockJournaler struct {
	mutex   sync.Mutex
	entries []Event
}

var _ Journaler = (*mockJournaler)(nil)

func (m *mockJournaler) Write(ev Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries = append(m.entries, ev)
	return nil
}

// Entries returns the recorded events in order.
func (m *mockJournaler) Entries() []Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.entries
}

// Verify checks that the given events were recorded, in order, at the
// front of the remaining entries, then consumes them. If strict is true,
// it also asserts that nothing else was recorded.
func (m *mockJournaler) Verify(t *testing.T, strict bool, events []Event) {
	t.Helper()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if strict && len(events) != len(m.entries) {
		t.Errorf("mismatched journal length: got %d, expected %d (%#v)", len(m.entries), len(events), m.entries)
		return
	}

	for i, ev := range events {
		if i >= len(m.entries) {
			t.Errorf("journal entry %d missing, expected %#v", i, ev)
			continue
		}
		if !reflect.DeepEqual(m.entries[i], ev) {
			t.Errorf("journal entry %d mismatch: got %#v, expected %#v", i, m.entries[i], ev)
		}
	}

	m.entries = m.entries[min(len(events), len(m.entries)):]
}
