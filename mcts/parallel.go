package mcts

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boardgameai/mctsd/game"
)

// ParallelSearch is the shared-tree-with-virtual-loss variant of C5: one
// Tree shared by a pruner, a selector/expander, W rollout workers, and a
// backpropagator, wired together with three bounded channels standing in
// for ACTION_Q/ROLLOUT_Q/RESULT_Q and an atomic PENDING counter.
type ParallelSearch struct {
	tree    *Tree
	workers int

	actionQ  chan game.Action
	rolloutQ chan rolloutJobWithPath
	resultQ  chan resultMsg
	pending  int64

	stateMu sync.Mutex
	cond    *sync.Cond
	running bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type resultMsg struct {
	path   []NodeRef
	result []float32
}

// NewParallelSearch wires a ParallelSearch around an existing Tree. workers
// <= 0 defaults to GOMAXPROCS, floored at 1.
func NewParallelSearch(t *Tree, workers int) *ParallelSearch {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers < 1 {
			workers = 1
		}
	}
	ps := &ParallelSearch{
		tree:     t,
		workers:  workers,
		actionQ:  make(chan game.Action, 64),
		rolloutQ: make(chan rolloutJobWithPath, workers),
		resultQ:  make(chan resultMsg, workers*4),
	}
	ps.cond = sync.NewCond(&ps.stateMu)
	return ps
}

// StartThinking spawns the worker goroutines on first call and resumes
// selection if it had been stopped.
func (ps *ParallelSearch) StartThinking() {
	ps.stateMu.Lock()
	if !ps.started {
		ps.started = true
		ps.ctx, ps.cancel = context.WithCancel(context.Background())
		ps.wg.Add(ps.workers + 3)
		go ps.pruneLoop()
		go ps.selectExpandLoop()
		for i := 0; i < ps.workers; i++ {
			go ps.rolloutLoop()
		}
		go ps.backpropLoop()
	}
	ps.running = true
	ps.stateMu.Unlock()
	ps.cond.Broadcast()
}

// StopThinking parks the selector/expander; workers already in flight still
// drain to completion so PENDING reaches zero cleanly.
func (ps *ParallelSearch) StopThinking() {
	ps.stateMu.Lock()
	ps.running = false
	ps.stateMu.Unlock()
}

// Close permanently shuts the search down, terminating all worker
// goroutines. Safe to call on a ParallelSearch that was never started.
func (ps *ParallelSearch) Close() {
	ps.stateMu.Lock()
	started := ps.started
	ps.stateMu.Unlock()
	if !started {
		return
	}
	ps.cancel()
	ps.cond.Broadcast()
	ps.wg.Wait()
}

func (ps *ParallelSearch) ctxDone() bool {
	select {
	case <-ps.ctx.Done():
		return true
	default:
		return false
	}
}

// waitRunning blocks until StartThinking has been (re)signalled, returning
// false if the search was closed while waiting.
func (ps *ParallelSearch) waitRunning() bool {
	ps.stateMu.Lock()
	defer ps.stateMu.Unlock()
	for !ps.running {
		if ps.ctxDone() {
			return false
		}
		ps.cond.Wait()
	}
	return true
}

func (ps *ParallelSearch) pruneLoop() {
	defer ps.wg.Done()
	for {
		select {
		case <-ps.ctx.Done():
			return
		case a := <-ps.actionQ:
			for atomic.LoadInt64(&ps.pending) != 0 {
				select {
				case <-ps.ctx.Done():
					return
				case <-time.After(time.Millisecond):
				}
			}
			ps.applyPrune(a)
		}
	}
}

func (ps *ParallelSearch) applyPrune(a game.Action) {
	ps.tree.mu.Lock()
	defer ps.tree.mu.Unlock()
	if ps.tree.root == nilRef {
		return
	}
	root := ps.tree.nodeAt(ps.tree.root)
	for _, c := range root.children {
		child := ps.tree.nodeAt(c)
		if child.action != nil && child.action.Equal(a) {
			ps.tree.rerootTo(c)
			return
		}
	}
	ps.tree.resetRootWithAction(a)
}

func (ps *ParallelSearch) selectExpandLoop() {
	defer ps.wg.Done()
	for {
		if ps.ctxDone() {
			return
		}
		if !ps.waitRunning() {
			return
		}
		if len(ps.actionQ) > 0 {
			runtime.Gosched()
			continue
		}
		if len(ps.rolloutQ) >= ps.workers {
			time.Sleep(time.Millisecond)
			continue
		}

		ps.tree.mu.Lock()
		if ps.tree.root == nilRef {
			ps.tree.mu.Unlock()
			time.Sleep(time.Millisecond)
			continue
		}
		path, job := ps.tree.selectAndExpand(true)
		for _, ref := range path {
			atomic.AddInt64(&ps.tree.nodeAt(ref).working, 1)
		}
		atomic.AddInt64(&ps.pending, 1)
		ps.tree.mu.Unlock()

		select {
		case ps.rolloutQ <- rolloutJobWithPath{path: path, job: job}:
		case <-ps.ctx.Done():
			return
		}
	}
}

func (ps *ParallelSearch) rolloutLoop() {
	defer ps.wg.Done()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(pseudoUniqueSeed())))
	for {
		select {
		case <-ps.ctx.Done():
			return
		case job := <-ps.rolloutQ:
			result := job.job.resolve(ps.tree, rnd)
			select {
			case ps.resultQ <- resultMsg{path: job.path, result: result}:
			case <-ps.ctx.Done():
				return
			}
		}
	}
}

func (ps *ParallelSearch) backpropLoop() {
	defer ps.wg.Done()
	for {
		select {
		case <-ps.ctx.Done():
			return
		case msg := <-ps.resultQ:
			ps.tree.mu.Lock()
			for _, ref := range msg.path {
				atomic.AddInt64(&ps.tree.nodeAt(ref).working, -1)
			}
			if ps.tree.root != nilRef {
				ps.tree.backprop(msg.path, msg.result)
			}
			ps.tree.mu.Unlock()
			atomic.AddInt64(&ps.pending, -1)
			ps.stateMu.Lock()
			ps.cond.Broadcast()
			ps.stateMu.Unlock()
		}
	}
}

// GetBestAction optionally sleeps for maxThinkTime before reading the root's
// current statistics under TREE.
func (ps *ParallelSearch) GetBestAction(maxThinkTime *time.Duration) game.Action {
	if maxThinkTime != nil {
		time.Sleep(*maxThinkTime)
	}
	ps.tree.mu.Lock()
	defer ps.tree.mu.Unlock()
	return ps.tree.bestActionLocked()
}

// Update enqueues a into ACTION_Q for the pruner, per §4.5's "push the
// index onto ACTION_Q; notify" description. Falls back to an inline prune
// if the queue is saturated.
func (ps *ParallelSearch) Update(a game.Action) {
	select {
	case ps.actionQ <- a:
	default:
		ps.applyPrune(a)
	}
	ps.stateMu.Lock()
	ps.cond.Broadcast()
	ps.stateMu.Unlock()
}

// QueryDetails returns the root's total rollout count and per-action stats.
func (ps *ParallelSearch) QueryDetails() (uint64, []ActionDetail) {
	return ps.tree.RootDetails()
}

// Tree exposes the shared search tree for diagnostics (e.g. DOT export).
func (ps *ParallelSearch) Tree() *Tree {
	return ps.tree
}

// rolloutJobWithPath threads the select/expand path alongside the job value
// through the bounded ROLLOUT_Q channel.
type rolloutJobWithPath struct {
	path []NodeRef
	job  rolloutJob
}

var seedCounter uint64

func pseudoUniqueSeed() uint64 {
	return atomic.AddUint64(&seedCounter, 1)
}
