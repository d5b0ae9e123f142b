package platform

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/geetools/exportsched/internal/core"
)

// Kind is the type of task submitted to the platform.
type Kind string

const (
	KindImageExport Kind = "image-export"
	KindTableExport Kind = "table-export"
	KindImageImport Kind = "image-import"
	KindTableImport Kind = "table-import"
)

var kindEndpoints = map[Kind]string{
	KindImageExport: "image:export",
	KindTableExport: "table:export",
	KindImageImport: "image:import",
	KindTableImport: "table:import",
}

// Kinds returns the supported task kinds, sorted.
func Kinds() []Kind {
	return slices.Sorted(maps.Keys(kindEndpoints))
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindEndpoints[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

var (
	_ core.RemoteJob = (*Task)(nil)
	_ core.Handle    = (*Task)(nil)
)

// Task is a platform export or import task. It has no remote identity until
// Start succeeds.
type Task struct {
	client    *Client
	kind      Kind
	request   map[string]any
	requestID string

	mu        sync.Mutex
	operation string
	terminal  core.State
}

// NewTask prepares a task. The request body is sent verbatim with a
// generated requestId, so a retried submission is deduplicated remotely.
func NewTask(client *Client, kind Kind, request map[string]any) (*Task, error) {
	if _, ok := kindEndpoints[kind]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return &Task{
		client:    client,
		kind:      kind,
		request:   maps.Clone(request),
		requestID: uuid.NewString(),
		terminal:  core.StateUnsubmitted,
	}, nil
}

// Adopt wraps an operation that already exists on the platform.
func Adopt(client *Client, op *Operation) *Task {
	t := &Task{client: client, operation: op.Name, terminal: core.StateUnsubmitted}
	if s := op.State(); s.IsTerminal() {
		t.terminal = s
	}
	return t
}

func (t *Task) Kind() Kind { return t.kind }

// Handle returns the operation name, or "" before the task is started.
func (t *Task) Handle() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.operation
}

// Start submits the task. It fails with core.ErrAlreadyStarted if the task
// already has an operation.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.operation != "" {
		return fmt.Errorf("%w: %s", core.ErrAlreadyStarted, t.operation)
	}
	body := maps.Clone(t.request)
	if body == nil {
		body = make(map[string]any)
	}
	body["requestId"] = t.requestID

	op, err := t.client.Submit(ctx, t.kind, body)
	if err != nil {
		return err
	}
	t.operation = op.Name
	if s := op.State(); s.IsTerminal() {
		t.terminal = s
	}
	return nil
}

// Status returns UNSUBMITTED without a request before the task is started.
// Terminal states are cached.
func (t *Task) Status(ctx context.Context) (core.State, error) {
	t.mu.Lock()
	name, terminal := t.operation, t.terminal
	t.mu.Unlock()

	if name == "" || terminal.IsTerminal() {
		return terminal, nil
	}
	op, err := t.client.GetOperation(ctx, name)
	if err != nil {
		return core.StateUnsubmitted, err
	}
	state := op.State()
	if state.IsTerminal() {
		t.mu.Lock()
		t.terminal = state
		t.mu.Unlock()
	}
	return state, nil
}

// Cancel requests cancellation. It is a no-op for a task that was never
// started or is known to be finished.
func (t *Task) Cancel(ctx context.Context) error {
	t.mu.Lock()
	name, terminal := t.operation, t.terminal
	t.mu.Unlock()

	if name == "" || terminal.IsTerminal() {
		return nil
	}
	return t.client.CancelOperation(ctx, name)
}
