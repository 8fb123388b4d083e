package opqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// CommandFactory builds the Operation for a named command given its
// arguments. It is invoked synchronously from EnqueueCommand, before the
// operation is scheduled, so factories should do no I/O of their own —
// only close over args and return the Operation that will.
type CommandFactory func(args any) (Operation, error)

// CommandQueue is a Queue fronted by a name→factory registry, matching the
// original LOCommandQueue's command-name dispatch (spec §4.3: "A command
// queue is the same structure with a registry"). Two enqueues of the same
// command name with structurally identical arguments (by canonical JSON
// encoding) dedup to the same Future.
type CommandQueue struct {
	*Queue

	mu       sync.Mutex
	registry map[string]CommandFactory
}

// NewCommandQueue builds an idle CommandQueue. Call Start to begin draining
// it.
func NewCommandQueue(logger *slog.Logger) *CommandQueue {
	return &CommandQueue{
		Queue:    New(logger),
		registry: make(map[string]CommandFactory),
	}
}

// Register associates a command name with the factory used to build its
// Operation. Registering the same name twice replaces the prior factory.
func (c *CommandQueue) Register(name string, factory CommandFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry[name] = factory
}

// EnqueueCommand builds and schedules the named command's operation. args is
// marshaled to JSON to derive the dedup key, so it must be JSON-serializable.
func (c *CommandQueue) EnqueueCommand(name string, args any) (*Future, error) {
	c.mu.Lock()
	factory, ok := c.registry[name]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("opqueue: no command registered with name %q", name)
	}

	op, err := factory(args)
	if err != nil {
		return nil, fmt.Errorf("opqueue: building command %q: %w", name, err)
	}

	opID, err := commandOpID(name, args)
	if err != nil {
		return nil, err
	}

	return c.Enqueue(op, opID), nil
}

// commandOpID derives a dedup key from a command name and its arguments.
// encoding/json sorts map keys and preserves struct field order, so equal
// arguments always marshal identically.
func commandOpID(name string, args any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("opqueue: encoding arguments for command %q: %w", name, err)
	}

	sum := sha256.Sum256(b)
	return name + ":" + hex.EncodeToString(sum[:]), nil
}
