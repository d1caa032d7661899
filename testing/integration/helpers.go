// Package integration exercises scopez end to end: scopes spanning
// goroutines, hand-off through worker pools, sinks and collectors.
package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/scopez"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so assertions see every finalized record.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []*scopez.Record
	*scopez.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, bufferSize int) *MockCollector {
	collector := scopez.NewCollector(bufferSize)
	collector.SetSyncMode(true)
	return &MockCollector{
		Collector: collector,
		t:         t,
	}
}

// GetAll returns every record exported so far without losing earlier ones.
func (m *MockCollector) GetAll() []*scopez.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exported = append(m.exported, m.Collector.Export()...)
	all := make([]*scopez.Record, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForRecords waits for the expected number of records with timeout.
func (m *MockCollector) WaitForRecords(expected int, timeout time.Duration) []*scopez.Record {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if records := m.GetAll(); len(records) >= expected {
			return records
		}
		<-ticker.C
	}

	records := m.GetAll()
	m.t.Errorf("Timeout waiting for records: expected %d, got %d", expected, len(records))
	return records
}

// Roots returns the records that had no enclosing scope.
func (m *MockCollector) Roots() []*scopez.Record {
	var roots []*scopez.Record
	for _, r := range m.GetAll() {
		if r.IsRoot() {
			roots = append(roots, r)
		}
	}
	return roots
}

// AssertParentChild verifies that child was opened inside parent and that
// every event of child also appears in parent.
func (m *MockCollector) AssertParentChild(parent, child *scopez.Record) {
	m.t.Helper()
	if child.ParentID() != parent.ID() {
		m.t.Errorf("Parent-child relationship broken: child ParentID=%s, parent ID=%s",
			child.ParentID(), parent.ID())
		return
	}

	have := make(map[string]int)
	for _, msg := range Messages(parent) {
		have[msg]++
	}
	for _, msg := range Messages(child) {
		if have[msg] == 0 {
			m.t.Errorf("Event %q of child %s missing from parent %s", msg, child.ID(), parent.ID())
		}
		have[msg]--
	}
}

// Messages lists the messages of a record in order.
func Messages(r *scopez.Record) []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Message
	}
	return out
}

// FindByMessage returns the first record holding an event with msg.
func FindByMessage(records []*scopez.Record, msg string) *scopez.Record {
	for _, r := range records {
		for _, e := range r.Events() {
			if e.Message == msg {
				return r
			}
		}
	}
	return nil
}

// RecordTree is a hierarchical view of records linked by parent id.
type RecordTree struct {
	Record   *scopez.Record
	Children []*RecordTree
}

// BuildRecordTree constructs a tree from a flat record list.
func BuildRecordTree(records []*scopez.Record) []*RecordTree {
	nodes := make(map[string]*RecordTree, len(records))
	for _, r := range records {
		nodes[r.ID()] = &RecordTree{Record: r}
	}

	var roots []*RecordTree
	for _, r := range records {
		node := nodes[r.ID()]
		if parent, ok := nodes[r.ParentID()]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// PrintRecordTree formats a record tree for debugging.
func PrintRecordTree(trees []*RecordTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *RecordTree, depth int) {
	indent := strings.Repeat("  ", depth)
	status := "ok"
	if node.Record.HasFailure() {
		status = "failed"
	}
	fmt.Fprintf(sb, "%s%s [%s] %d events\n", indent, node.Record.ID(), status, node.Record.Len())
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// ErrServiceUnavailable is returned by a MockService when it fails.
var ErrServiceUnavailable = errors.New("service unavailable")

// MockService simulates a downstream dependency that logs into the caller's
// scope.
type MockService struct {
	name    string
	latency time.Duration
	failOn  map[int]bool
	mu      sync.Mutex
	calls   int
}

// NewMockService creates a simulated service.
func NewMockService(name string, latency time.Duration) *MockService {
	return &MockService{name: name, latency: latency, failOn: make(map[int]bool)}
}

// FailOn makes the nth call (1-based) fail.
func (m *MockService) FailOn(n int) {
	m.mu.Lock()
	m.failOn[n] = true
	m.mu.Unlock()
}

// Calls returns how many times the service was called.
func (m *MockService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Call simulates a request in its own nested scope.
func (m *MockService) Call(ctx context.Context, reg *scopez.Registry, request string) error {
	return reg.Do(ctx, nil, func(ctx context.Context) error {
		m.mu.Lock()
		m.calls++
		fail := m.failOn[m.calls]
		m.mu.Unlock()

		scopez.Logf(ctx, "%s handling %s", m.name, request)
		if m.latency > 0 {
			time.Sleep(m.latency)
		}
		if fail {
			return fmt.Errorf("%s: %w", m.name, ErrServiceUnavailable)
		}
		scopez.Logf(ctx, "%s handled %s", m.name, request)
		return nil
	})
}
