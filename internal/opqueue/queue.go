// Package opqueue implements the serial operation queue described in spec
// §4.4: a single-worker FIFO executor where a running operation may enqueue
// follow-on operations that jump ahead of everything already waiting, and a
// whole operation-plus-follow-ons tree shares one completion Future.
//
// It is grounded on the teacher's internal/sync/worker.go goroutine-pool
// pattern, narrowed from a pool to a single cooperative worker because spec
// §4.4 requires strict ordering ("at most one operation executing at a
// time").
package opqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Operation is a unit of queued work. It may return follow-on operations to
// run immediately after it, ahead of anything else pending (spec §4.4,
// "Follow-on operations").
type Operation func(ctx context.Context) ([]FollowOn, error)

// FollowOn is a follow-on operation queued by a running Operation. OpID
// participates in the same dedup namespace as top-level enqueues; an empty
// OpID opts out of dedup.
type FollowOn struct {
	Op   Operation
	OpID string
}

type item struct {
	op        Operation
	opID      string
	runtimeID string
}

// runtimeTree tracks completion of one Enqueue call and all of its
// transitive follow-ons, sharing a single Future (Design Note "Promises
// with tree-completion", spec §9).
type runtimeTree struct {
	future      *Future
	outstanding int
	err         error
	cancelled   bool
}

// Queue is a serial operation executor. The zero value is not usable; build
// one with New.
type Queue struct {
	mu      sync.Mutex
	running bool
	started bool
	pending []*item
	current *item // item dequeued and executing, but not yet completeItem'd
	dedup   map[string]*item
	trees   map[string]*runtimeTree
	wake    chan struct{}
	logger  *slog.Logger
}

// New builds an idle Queue. Call Start to begin draining it.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		dedup:  make(map[string]*item),
		trees:  make(map[string]*runtimeTree),
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Enqueue schedules op for execution and returns a Future resolved when op
// and every follow-on it spawns have completed. A non-empty opID already
// pending returns the existing Future instead of scheduling a duplicate
// (spec §4.4, "Deduplication").
func (q *Queue) Enqueue(op Operation, opID string) *Future {
	q.mu.Lock()

	if opID != "" {
		if existing, ok := q.dedup[opID]; ok {
			tree := q.trees[existing.runtimeID]
			q.mu.Unlock()
			return tree.future
		}
	}

	runtimeID := uuid.NewString()
	tree := &runtimeTree{future: newFuture(), outstanding: 1}
	it := &item{op: op, opID: opID, runtimeID: runtimeID}

	q.trees[runtimeID] = tree
	q.pending = append(q.pending, it)
	if opID != "" {
		q.dedup[opID] = it
	}

	q.mu.Unlock()
	q.signal()

	return tree.future
}

// ClearPending discards every not-yet-started item. Items already running
// finish normally but their follow-ons are discarded and their tree resolves
// with ErrCancellation (unless it already failed for another reason). The
// returned Future resolves once the pending items have been dropped; it does
// not wait for in-flight items to finish.
func (q *Queue) ClearPending() *Future {
	q.mu.Lock()

	cleared := q.pending
	q.pending = nil
	q.dedup = make(map[string]*item)

	var resolved []*runtimeTree
	for _, it := range cleared {
		tree, ok := q.trees[it.runtimeID]
		if !ok {
			continue
		}

		tree.cancelled = true
		tree.outstanding--
		if tree.outstanding <= 0 {
			delete(q.trees, it.runtimeID)
			resolved = append(resolved, tree)
		}
	}

	// The item currently executing (if any) has already left q.pending, so
	// it isn't in cleared above. Mark its tree cancelled too, so
	// completeItem discards its follow-ons once it finishes — its own
	// outstanding-- still happens there, not here, since it does run to
	// completion.
	if q.current != nil {
		if tree, ok := q.trees[q.current.runtimeID]; ok {
			tree.cancelled = true
		}
	}

	q.mu.Unlock()

	for _, tree := range resolved {
		tree.future.resolve(ErrCancellation)
	}

	f := newFuture()
	f.resolve(nil)

	return f
}

// Start begins (or resumes) draining the queue. Calling Start more than once
// is safe; only the first call spawns the drain goroutine, bound to ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.running = true
	alreadyStarted := q.started
	q.started = true
	q.mu.Unlock()

	q.signal()

	if !alreadyStarted {
		go q.loop(ctx)
	}
}

// Stop pauses draining. Items may still be enqueued while stopped; they run
// once Start is called again.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
}

func (q *Queue) loop(ctx context.Context) {
	for {
		q.mu.Lock()
		for {
			if ctx.Err() != nil {
				q.mu.Unlock()
				return
			}
			if q.running && len(q.pending) > 0 {
				break
			}
			q.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}

			q.mu.Lock()
		}

		it := q.pending[0]
		q.pending = q.pending[1:]
		delete(q.dedup, it.opID)
		q.current = it
		q.mu.Unlock()

		followOns, err := it.op(ctx)
		if err != nil {
			q.logger.Warn("opqueue: operation failed", "opID", it.opID, "error", err)
		}

		q.completeItem(it, followOns, err)
		q.signal()
	}
}

func (q *Queue) completeItem(it *item, followOns []FollowOn, err error) {
	q.mu.Lock()

	// Until this lock is acquired, a concurrent ClearPending can still see
	// it as q.current and mark its tree cancelled — that's the signal
	// checked just below.
	if q.current == it {
		q.current = nil
	}

	tree, ok := q.trees[it.runtimeID]
	if !ok {
		q.mu.Unlock()
		return
	}

	if !tree.cancelled {
		if err != nil && tree.err == nil {
			tree.err = err
		}

		for i := len(followOns) - 1; i >= 0; i-- {
			fo := followOns[i]
			fi := &item{op: fo.Op, opID: fo.OpID, runtimeID: it.runtimeID}
			q.pending = append([]*item{fi}, q.pending...)
			if fo.OpID != "" {
				q.dedup[fo.OpID] = fi
			}
			tree.outstanding++
		}
	}

	tree.outstanding--

	var resolve *runtimeTree
	if tree.outstanding <= 0 {
		delete(q.trees, it.runtimeID)
		resolve = tree
	}

	q.mu.Unlock()

	if resolve != nil {
		resErr := resolve.err
		if resolve.cancelled && resErr == nil {
			resErr = ErrCancellation
		}
		resolve.future.resolve(resErr)
	}
}

// Len reports the number of items currently waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
