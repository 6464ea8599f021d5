package mcts

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/awalterschulze/gographviz"
	"github.com/chewxy/math32"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/player"
)

// Tree is the arena-of-nodes shared MCTS search tree. mu is the coarse
// "TREE" lock SPEC_FULL.md §4.5 describes: Select/Expand/Backpropagate all
// run under it; Rollout runs outside it. A sequential Search owns a Tree
// exclusively; a ParallelSearch shares one Tree across its worker pool.
type Tree struct {
	mu    sync.Mutex
	nodes []node
	root  NodeRef

	game game.Game
	ag   actiongen.Generator

	explorationFactor float32
	goalMatrix        [][]float32
	playerCount       int

	rolloutPlayerType string
	rolloutPlayerData []byte

	rnd *rand.Rand // root best-action tie-break and noise seeding; guarded by mu

	rootNoiseAlpha   float64
	rootNoiseEpsilon float32
	rootNoise        []float64 // one sample per current root child, lazily seeded
}

// NewTree builds a fresh tree rooted at a clone of s.
func NewTree(g game.Game, ag actiongen.Generator, s game.State, cfg Config, rnd *rand.Rand) *Tree {
	t := &Tree{
		game:              g,
		ag:                ag,
		explorationFactor: cfg.ExplorationFactor,
		goalMatrix:        cfg.GoalMatrix,
		playerCount:       g.PlayerCount(),
		rolloutPlayerType: cfg.RolloutPlayerType,
		rolloutPlayerData: cfg.RolloutPlayerData,
		rnd:               rnd,
		root:              nilRef,
		rootNoiseAlpha:    cfg.RootNoiseAlpha,
		rootNoiseEpsilon:  cfg.RootNoiseEpsilon,
	}
	t.root = t.newRoot(s.Clone())
	return t
}

func (t *Tree) newRoot(s game.State) NodeRef {
	ref := t.alloc()
	n := t.nodeAt(ref)
	n.kind = kindUnexpanded
	n.parent = nilRef
	n.state = s
	n.agData = t.ag.CreateData(s)
	n.nextPlayer = t.game.NextPlayer(s)
	return ref
}

func (t *Tree) alloc() NodeRef {
	t.nodes = append(t.nodes, node{parent: nilRef})
	return NodeRef(len(t.nodes) - 1)
}

func (t *Tree) nodeAt(ref NodeRef) *node { return &t.nodes[ref] }

// Exhausted reports whether the root's position is terminal (the committed
// action that produced this tree ended the game), in which case there is
// nothing left to search.
func (t *Tree) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root == nilRef
}

// Iterate runs one Select→Expand→Rollout→Backpropagate pass starting at the
// root, under t.mu for everything but the rollout itself. rnd is the
// rollout's random source (a dedicated *rand.Rand per caller/goroutine).
// No-op once the tree has been pruned past a terminal position.
func (t *Tree) Iterate(rnd *rand.Rand) {
	t.mu.Lock()
	if t.root == nilRef {
		t.mu.Unlock()
		return
	}
	path, job := t.selectAndExpand(false)
	t.mu.Unlock()

	result := job.resolve(t, rnd)

	t.mu.Lock()
	t.backprop(path, result)
	t.mu.Unlock()
}

// rolloutJob is what Select+Expand hands to the rollout phase: either an
// immediate terminal result, or a state to simulate from.
type rolloutJob struct {
	state    game.State
	terminal []float32
}

func (j rolloutJob) resolve(t *Tree, rnd *rand.Rand) []float32 {
	if j.terminal != nil {
		return j.terminal
	}
	return t.rollout(j.state, rnd)
}

// selectAndExpand must be called with t.mu held. parallel selects whether
// selectChild uses the virtual-loss UCB variant.
func (t *Tree) selectAndExpand(parallel bool) ([]NodeRef, rolloutJob) {
	path := t.selectPath(parallel)
	leaf := path[len(path)-1]
	n := t.nodeAt(leaf)
	if n.kind != kindTerminal && n.rollouts > 0 {
		t.expand(leaf)
		n = t.nodeAt(leaf)
	}
	if n.kind == kindTerminal {
		return path, rolloutJob{terminal: n.result}
	}
	st, result, terminal := t.realizeState(leaf)
	if terminal {
		return path, rolloutJob{terminal: result}
	}
	return path, rolloutJob{state: st}
}

// selectPath descends from the root through FullyExpandedNodes, stopping at
// the first node that is not fully expanded (SPEC_FULL.md §4.4 step 1).
func (t *Tree) selectPath(parallel bool) []NodeRef {
	path := []NodeRef{t.root}
	cur := t.root
	for t.nodeAt(cur).kind == kindFullyExpanded {
		cur = t.selectChild(cur, parallel)
		path = append(path, cur)
	}
	return path
}

// selectChild picks the UCB-maximising child of parentRef. With parallel set
// it applies the virtual-loss adjustment of §4.5; ties are broken by
// first-encountered, matching §4.4.
func (t *Tree) selectChild(parentRef NodeRef, parallel bool) NodeRef {
	parent := t.nodeAt(parentRef)
	parentWorking := uint64(0)
	if parallel {
		parentWorking = uint64(atomic.LoadInt64(&parent.working))
	}

	atRoot := parentRef == t.root && len(t.rootNoise) == len(parent.children)

	best := nilRef
	bestScore := math32.Inf(-1)
	for i, c := range parent.children {
		child := t.nodeAt(c)
		childWorking := uint64(0)
		if parallel {
			childWorking = uint64(atomic.LoadInt64(&child.working))
		}

		var score float32
		switch {
		case child.rollouts == 0 && parentWorking == 0:
			return c
		case child.rollouts == 0 && childWorking == 0:
			// No result pending on this child specifically: still treat as
			// infinite UCB so it gets picked before any scored sibling.
			score = math32.Inf(1)
		case child.rollouts == 0:
			score = 1.0/float32(t.playerCount) + t.explorationFactor*
				math32.Sqrt(math32.Log(float32(parent.rollouts+parentWorking))/float32(childWorking))
		default:
			denom := float32(child.rollouts) + float32(childWorking)
			logTerm := math32.Log(float32(parent.rollouts + parentWorking))
			score = child.score + t.explorationFactor*math32.Sqrt(2*logTerm/denom)
		}

		if atRoot {
			score += t.rootNoiseEpsilon * float32(t.rootNoise[i])
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

// expand advances a single node one step up the ladder, per SPEC_FULL.md
// §4.4 step 2. Must be called with t.mu held.
func (t *Tree) expand(ref NodeRef) {
	n := t.nodeAt(ref)
	if n.kind == kindTerminal || n.rollouts == 0 {
		return
	}

	switch n.kind {
	case kindNew:
		parent := t.nodeAt(n.parent)
		s := parent.state.Clone()
		result, terminal := t.game.TakeAction(s, n.action)
		if terminal {
			n.kind = kindTerminal
			n.result = result
			return
		}
		n.kind = kindPartiallyExpanded
		n.state = s
		n.agData = t.ag.CreateData(s)
		n.nextPlayer = t.game.NextPlayer(s)
		n.nextAction = t.ag.FirstAction(n.agData, s)

	case kindUnexpanded:
		n.kind = kindPartiallyExpanded
		n.nextAction = t.ag.FirstAction(n.agData, n.state)

	case kindPartiallyExpanded:
		if n.nextAction != nil {
			childAction := n.nextAction
			childRef := t.alloc()
			child := t.nodeAt(childRef)
			n = t.nodeAt(ref) // alloc may have reallocated the backing array
			child.kind = kindNew
			child.parent = ref
			child.action = childAction
			n.children = append(n.children, childRef)

			next, ok := t.ag.NextAction(n.agData, n.state, childAction)
			if ok {
				n.nextAction = next
			} else {
				n.nextAction = nil
			}
		}
		if n.nextAction == nil {
			t.promoteFullyExpanded(ref)
		}
	}
}

// promoteFullyExpanded realises every remaining NewNode child's state, then
// releases the parent's own State/AG data — except when ref is the tree's
// root, whose state is kept alive so Update/reroot can always reconstruct a
// child's state via (root.state, action) without walking back further than
// one generation.
func (t *Tree) promoteFullyExpanded(ref NodeRef) {
	n := t.nodeAt(ref)
	parentState := n.state
	parentAGData := n.agData
	for _, c := range n.children {
		child := t.nodeAt(c)
		if child.kind != kindNew {
			continue
		}
		s := parentState.Clone()
		result, terminal := t.game.TakeAction(s, child.action)
		if terminal {
			child.kind = kindTerminal
			child.result = result
			continue
		}
		childAGData := parentAGData.Clone()
		t.ag.Update(childAGData, child.action)
		child.kind = kindUnexpanded
		child.state = s
		child.agData = childAGData
		child.nextPlayer = t.game.NextPlayer(s)
	}
	n = t.nodeAt(ref)
	n.kind = kindFullyExpanded
	if ref == t.root {
		t.seedRootNoise(len(n.children))
	} else {
		n.state = nil
		n.agData = nil
	}
}

// seedRootNoise samples one Dirichlet noise value per root child, used by
// selectChild to bias early root exploration away from whichever child was
// realised first. No-op when noise is disabled or there's nothing to bias
// between.
func (t *Tree) seedRootNoise(numChildren int) {
	t.rootNoise = nil
	if t.rootNoiseAlpha <= 0 || numChildren < 2 {
		return
	}
	alpha := make([]float64, numChildren)
	for i := range alpha {
		alpha[i] = t.rootNoiseAlpha
	}
	dist := distmv.NewDirichlet(alpha, exprand.NewSource(uint64(t.rnd.Int63())))
	t.rootNoise = dist.Rand(nil)
}

// realizeState returns the State a leaf node represents, cloning+applying
// its action from the parent's state when the leaf itself doesn't carry one
// (NewNode with rollouts == 0, never expanded). Returns (state, result,
// terminal); when terminal, state is nil and result is the terminal vector.
func (t *Tree) realizeState(ref NodeRef) (game.State, []float32, bool) {
	n := t.nodeAt(ref)
	if n.kind == kindTerminal {
		return nil, n.result, true
	}
	if n.state != nil {
		return n.state, nil, false
	}
	parent := t.nodeAt(n.parent)
	s := parent.state.Clone()
	result, terminal := t.game.TakeAction(s, n.action)
	if terminal {
		return nil, result, true
	}
	return s, nil, false
}

// nextPlayerOf returns the player whose move a node (acting as the parent of
// the node being backpropagated) represents. Only ever called on a node that
// already has children, so it is always at least Unexpanded.
func (t *Tree) nextPlayerOf(ref NodeRef) int {
	return t.nodeAt(ref).nextPlayer
}

// backprop applies SPEC_FULL.md §4.4 step 4 along path, deepest node first.
// Must be called with t.mu held.
func (t *Tree) backprop(path []NodeRef, result []float32) {
	for i := len(path) - 1; i >= 0; i-- {
		n := t.nodeAt(path[i])
		if i > 0 {
			nextPlayer := t.nextPlayerOf(path[i-1])
			goal := t.goalValue(nextPlayer, result)
			n.score = (n.score*float32(n.rollouts) + goal) / float32(n.rollouts+1)
		}
		n.rollouts++
	}
}

func (t *Tree) goalValue(player int, result []float32) float32 {
	row := t.goalMatrix[player-1]
	var sum float32
	for i, coeff := range row {
		sum += coeff * result[i]
	}
	return sum
}

// BestAction returns the root child with the most rollouts, breaking ties by
// uniform sampling (P6). Falls back to the action generator's first action
// when the root was never expanded at all.
func (t *Tree) BestAction() game.Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bestActionLocked()
}

func (t *Tree) bestActionLocked() game.Action {
	if t.root == nilRef {
		return nil
	}
	root := t.nodeAt(t.root)
	if len(root.children) == 0 {
		return t.ag.FirstAction(root.agData, root.state)
	}

	var tied []NodeRef
	var bestRollouts uint64
	for _, c := range root.children {
		child := t.nodeAt(c)
		switch {
		case len(tied) == 0 || child.rollouts > bestRollouts:
			tied = []NodeRef{c}
			bestRollouts = child.rollouts
		case child.rollouts == bestRollouts:
			tied = append(tied, c)
		}
	}
	chosen := tied[0]
	if len(tied) > 1 {
		chosen = tied[t.rnd.Intn(len(tied))]
	}
	return t.nodeAt(chosen).action
}

// ActionDetail is one root child's search statistics, used by query_details.
type ActionDetail struct {
	Action   game.Action
	Rollouts uint64
	Score    float32
}

// RootDetails returns the root's total rollout count and its children's
// stats, sorted by rollouts descending.
func (t *Tree) RootDetails() (uint64, []ActionDetail) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nilRef {
		return 0, nil
	}
	root := t.nodeAt(t.root)
	details := make([]ActionDetail, 0, len(root.children))
	for _, c := range root.children {
		child := t.nodeAt(c)
		details = append(details, ActionDetail{Action: child.action, Rollouts: child.rollouts, Score: child.score})
	}
	for i := 1; i < len(details); i++ {
		for j := i; j > 0 && details[j].Rollouts > details[j-1].Rollouts; j-- {
			details[j], details[j-1] = details[j-1], details[j]
		}
	}
	return root.rollouts, details
}

// rerootTo promotes child — a direct child of the current root — to be the
// new root, carrying its accumulated rollouts/score/descendants across with
// it (the Glossary's "Prune" only discards the *other* root children's
// subtrees). child's own arena slot may not carry a live State (a
// kindFullyExpanded node releases it once it's no longer the root, per
// promoteFullyExpanded), so it's reconstructed from the old root's State
// where needed; the root itself always keeps one, per that same invariant.
// Compacts the kept subtree into a fresh arena with remapped NodeRefs,
// discarding everything else — the prune original_source/.../ParallelMCTS.hpp
// describes as `_Root = std::move(*iter)`.
func (t *Tree) rerootTo(child NodeRef) {
	n := t.nodeAt(child)
	if n.kind == kindTerminal {
		t.reset()
		t.root = nilRef
		return
	}

	parent := t.nodeAt(n.parent)
	var s game.State
	switch {
	case n.kind == kindNew:
		base := parent.state.Clone()
		_, terminal := t.game.TakeAction(base, n.action)
		if terminal {
			t.reset()
			t.root = nilRef
			return
		}
		s = base
	case n.state != nil:
		s = n.state
	default: // kindFullyExpanded, its own State already released
		base := parent.state.Clone()
		t.game.TakeAction(base, n.action)
		s = base
	}

	newRootRef := t.compactSubtree(child)
	root := t.nodeAt(newRootRef)
	root.parent = nilRef
	root.action = nil
	root.state = s
	// compactSubtree already carried over a live Unexpanded/PartiallyExpanded
	// node's own agData, cursor progress and all; only kindNew (never had
	// one) and a reconstructed kindFullyExpanded (released its own alongside
	// its state) need a fresh one built against the now-live state.
	if root.agData == nil {
		root.agData = t.ag.CreateData(s)
	}
	if root.kind == kindNew {
		root.kind = kindPartiallyExpanded
		root.nextPlayer = t.game.NextPlayer(s)
		root.nextAction = t.ag.FirstAction(root.agData, s)
	}
	t.root = newRootRef
	t.seedRootNoise(len(root.children))
}

// compactSubtree copies the subtree rooted at old into a fresh node slice,
// remapping NodeRefs, and installs it as t.nodes. Everything reachable from
// old survives with its rollouts/score/children intact; everything else
// (siblings of old and their descendants) is dropped. Returns old's new ref.
func (t *Tree) compactSubtree(old NodeRef) NodeRef {
	src := t.nodes
	dst := make([]node, 0, len(src))

	var copyNode func(ref, newParent NodeRef) NodeRef
	copyNode = func(ref, newParent NodeRef) NodeRef {
		n := &src[ref]
		newRef := NodeRef(len(dst))
		dst = append(dst, node{
			kind:       n.kind,
			parent:     newParent,
			action:     n.action,
			state:      n.state,
			agData:     n.agData,
			nextAction: n.nextAction,
			nextPlayer: n.nextPlayer,
			result:     n.result,
			rollouts:   n.rollouts,
			score:      n.score,
		})
		children := make([]NodeRef, len(n.children))
		for i, c := range n.children {
			children[i] = copyNode(c, newRef)
		}
		dst[newRef].children = children
		return newRef
	}

	newRef := copyNode(old, nilRef)
	t.nodes = dst
	return newRef
}

// resetRootWithAction rebuilds the tree from scratch by applying a committed
// action (one the caller reports, for which no matching child exists — an
// unknown opponent move, or the first move of the game) to the current
// root's state. Must be called with t.mu held.
func (t *Tree) resetRootWithAction(a game.Action) {
	root := t.nodeAt(t.root)
	base := root.state
	if base == nil {
		panic("mcts: resetRootWithAction called on a tree whose root has no live state")
	}
	s := base.Clone()
	t.game.TakeAction(s, a)
	t.reset()
	t.root = t.newRoot(s)
}

// reset clears the arena, keeping capacity for reuse.
func (t *Tree) reset() {
	t.nodes = t.nodes[:0]
}

// rollout realises the rollout policy (C6) on state and drives it to
// terminal, returning the game's result vector.
func (t *Tree) rollout(state game.State, rnd *rand.Rand) []float32 {
	working := state.Clone()
	handle := &liveState{s: working}
	p, err := player.Create(t.rolloutPlayerType, t.game, handle, t.rolloutPlayerData)
	if err != nil {
		panic(err)
	}
	for {
		a := p.GetBestAction(nil)
		if a == nil {
			return make([]float32, t.playerCount)
		}
		result, terminal := t.game.TakeAction(working, a)
		p.Update(a)
		handle.s = working
		if terminal {
			return result
		}
	}
}

// liveState is a mutable game.StateHandle over a State owned exclusively by
// one rollout, with no locking needed since nothing else observes it.
type liveState struct{ s game.State }

func (l *liveState) Current() game.State { return l.s }

// ExportDOT renders the tree (or its top maxDepth levels, <= 0 meaning
// unbounded) as Graphviz DOT, for the "mcts" player's query_details
// extension (C12). Node labels carry rollout/score so a rendered tree shows
// the search's shape at a glance.
func (t *Tree) ExportDOT(maxDepth int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := gographviz.NewGraph()
	if err := g.SetName("mcts"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if t.root == nilRef {
		return g.String(), nil
	}

	var walk func(ref NodeRef, depth int)
	walk = func(ref NodeRef, depth int) {
		n := t.nodeAt(ref)
		name := fmt.Sprintf("n%d", ref)
		label := fmt.Sprintf("\"rollouts=%d score=%.3f\"", n.rollouts, n.score)
		if err := g.AddNode("mcts", name, map[string]string{"label": label}); err != nil {
			return
		}
		if n.parent != nilRef {
			_ = g.AddEdge(fmt.Sprintf("n%d", n.parent), name, true, nil)
		}
		if maxDepth > 0 && depth >= maxDepth {
			return
		}
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	walk(t.root, 0)
	return g.String(), nil
}
