// Package dataflow is a small cooperative operator runtime: a fixed pool of
// workers drives a static graph of operators by data-arrival and timer
// events.
//
// Each operator owns a mailbox and runs on at most one worker at a time, so
// operators never need internal locking. External producers (connection
// readers, timers) suspend when a mailbox is at capacity; operator-to-operator
// emission is run-to-completion and never blocks, which keeps the fixed pool
// deadlock-free.
package dataflow

import (
	"context"
	"sync"
	"time"
)

// Event is one unit of data or control flowing through the graph.
type Event any

// Operator processes events for one graph node. OnEvent may emit any number
// of downstream events via emit; it must not retain emit past the call.
type Operator interface {
	OnEvent(ev Event, emit func(Event))
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc func(ev Event, emit func(Event))

func (f OperatorFunc) OnEvent(ev Event, emit func(Event)) { f(ev, emit) }

// Graph is a static operator topology plus the worker pool that drives it.
// Build the full topology before calling Run.
type Graph struct {
	workers int
	mailbox int

	mu    sync.Mutex
	cond  *sync.Cond
	runq  []*Node
	nodes []*Node
	stop  bool

	wg sync.WaitGroup
}

// Node is one operator instance within a graph.
type Node struct {
	g          *Graph
	op         Operator
	downstream []*Node

	mu        sync.Mutex
	notFull   *sync.Cond
	inbox     []Event
	scheduled bool
}

// New creates an empty graph driven by the given number of pool workers.
// mailbox bounds how many events an external producer may queue on one node
// before suspending.
func New(workers, mailbox int) *Graph {
	if workers < 1 {
		workers = 1
	}
	if mailbox < 1 {
		mailbox = 1
	}
	g := &Graph{workers: workers, mailbox: mailbox}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Add registers an operator wired to the given downstream nodes and returns
// its node. Topologies are built sink-first so downstream nodes exist before
// their producers.
func (g *Graph) Add(op Operator, downstream ...*Node) *Node {
	n := &Node{g: g, op: op, downstream: downstream}
	n.notFull = sync.NewCond(&n.mu)
	g.mu.Lock()
	g.nodes = append(g.nodes, n)
	g.mu.Unlock()
	return n
}

// Post delivers an event to n from outside the worker pool, suspending while
// n's mailbox is full. It returns false once the graph has stopped.
func (n *Node) Post(ev Event) bool {
	n.mu.Lock()
	for len(n.inbox) >= n.g.mailbox {
		if n.g.stopped() {
			n.mu.Unlock()
			return false
		}
		n.notFull.Wait()
	}
	if n.g.stopped() {
		n.mu.Unlock()
		return false
	}
	n.inbox = append(n.inbox, ev)
	need := !n.scheduled
	n.scheduled = true
	n.mu.Unlock()

	if need {
		n.g.schedule(n)
	}
	return true
}

// push delivers an event from inside the pool. It never blocks: internal
// edges are unbounded so a worker cannot deadlock the pool by waiting on a
// mailbox another queued node would drain.
func (n *Node) push(ev Event) {
	n.mu.Lock()
	n.inbox = append(n.inbox, ev)
	need := !n.scheduled
	n.scheduled = true
	n.mu.Unlock()

	if need {
		n.g.schedule(n)
	}
}

// Timer posts makeEvent(now) to n every interval until ctx is cancelled.
func (n *Node) Timer(ctx context.Context, interval time.Duration, makeEvent func(time.Time) Event) {
	n.g.wg.Add(1)
	go func() {
		defer n.g.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if !n.Post(makeEvent(now)) {
					return
				}
			}
		}
	}()
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// queued event has been processed.
func (g *Graph) Run(ctx context.Context) {
	var workers sync.WaitGroup
	for i := 0; i < g.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			g.worker()
		}()
	}

	<-ctx.Done()

	// Stop external producers, then let the pool drain what is queued.
	g.mu.Lock()
	g.stop = true
	g.cond.Broadcast()
	g.mu.Unlock()
	for _, n := range g.snapshotNodes() {
		n.mu.Lock()
		n.notFull.Broadcast()
		n.mu.Unlock()
	}

	workers.Wait()
	g.wg.Wait()
}

func (g *Graph) stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop
}

func (g *Graph) snapshotNodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Node(nil), g.nodes...)
}

// schedule enqueues n for a worker.
func (g *Graph) schedule(n *Node) {
	g.mu.Lock()
	g.runq = append(g.runq, n)
	g.cond.Signal()
	g.mu.Unlock()
}

// worker pops scheduled nodes and drains their mailboxes. On stop it keeps
// draining until the run queue empties, so no accepted event is lost.
func (g *Graph) worker() {
	for {
		g.mu.Lock()
		for len(g.runq) == 0 && !g.stop {
			g.cond.Wait()
		}
		if len(g.runq) == 0 && g.stop {
			g.mu.Unlock()
			return
		}
		n := g.runq[0]
		g.runq = g.runq[1:]
		g.mu.Unlock()

		n.drain()
	}
}

// drain processes n's queued events in batches. Events that arrive while a
// batch is running are picked up before the node is parked again.
func (n *Node) drain() {
	for {
		n.mu.Lock()
		if len(n.inbox) == 0 {
			n.scheduled = false
			n.mu.Unlock()
			return
		}
		batch := n.inbox
		n.inbox = nil
		n.notFull.Broadcast()
		n.mu.Unlock()

		for _, ev := range batch {
			n.op.OnEvent(ev, n.emit)
		}
	}
}

// emit forwards an operator output to every downstream node.
func (n *Node) emit(ev Event) {
	for _, d := range n.downstream {
		d.push(ev)
	}
}
