package mcts

import (
	"github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/game"
)

// kind is the node's position on the five-variant ladder described in
// SPEC_FULL.md §4.4. A node carries only the fields its current kind needs:
// NewNode/TerminalNode hold no State; UnexpandedNode/PartiallyExpandedNode
// hold their own State + action-generator cursor; FullyExpandedNode has
// released both once every child has been realised, except at the tree's
// root, which keeps them (see promoteFullyExpanded).
type kind uint8

const (
	kindNew kind = iota
	kindUnexpanded
	kindPartiallyExpanded
	kindFullyExpanded
	kindTerminal
)

// node is one arena slot. rollouts/score/working follow §4.4/§4.5's
// incremental update formulas; working is the virtual-loss counter, only
// ever touched through atomic ops; ParallelSearch changes it while holding
// the tree's coarse lock.
type node struct {
	kind   kind
	parent NodeRef
	action game.Action // the action that produced this node from its parent; nil only for the root
	children []NodeRef

	state      game.State     // held by Unexpanded/PartiallyExpanded only
	agData     actiongen.Data // held by Unexpanded/PartiallyExpanded only
	nextAction game.Action    // PartiallyExpanded's cached next AG action, nil once exhausted
	nextPlayer int            // whose move the node's state is at; set for Unexpanded/PartiallyExpanded/FullyExpanded, never for Terminal

	result []float32 // TerminalNode only

	rollouts uint64
	working  int64 // atomic; virtual-loss in-flight count
	score    float32
}
