package mcts

import (
	"math/rand"
	"time"

	"github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/game"
)

// Search runs a fixed number of sequential MCTS iterations (C4) from s and
// returns the resulting tree. Each call builds a fresh tree: sequential
// search has no cross-call pruning obligation in SPEC_FULL.md §4.4 (unlike
// the parallel variant's Pruner thread), so rebuilding from the
// authoritative current state on every GetBestAction call is both simpler
// and always consistent with it.
func Search(g game.Game, ag actiongen.Generator, s game.State, cfg Config) *Tree {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	t := NewTree(g, ag, s, cfg, rnd)
	for i := 0; i < cfg.Iterations; i++ {
		t.Iterate(rnd)
	}
	return t
}
