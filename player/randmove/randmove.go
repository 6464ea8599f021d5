// Package randmove implements the "random_move" player (C6): a uniform
// random legal-move policy driven by reservoir sampling over a configured
// action generator, used both standalone and as the rollout policy inside
// MCTS.
package randmove

import (
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/player"
)

// seedCounter spreads the random source's seed across concurrently
// constructed players (e.g. one per in-flight MCTS rollout) that would
// otherwise land on the same time.Now() nanosecond.
var seedCounter uint64

// TypeTag is the player registry tag for the random-move policy.
const TypeTag = "random_move"

func init() {
	player.Register(TypeTag, New)
}

type config struct {
	ActionGenerator struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	} `json:"actionGenerator"`
}

// New constructs a random_move player. Its random source is seeded once
// from the wall clock at construction time, standing in for the spec's
// "random engine" external collaborator.
func New(g game.Game, state game.StateHandle, data json.RawMessage) (player.Player, error) {
	var cfg config
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(player.ErrSchema, err.Error())
		}
	}
	if cfg.ActionGenerator.Type == "" {
		return nil, errors.Wrap(player.ErrSchema, "actionGenerator.type is required")
	}
	ag, err := actiongen.Create(cfg.ActionGenerator.Type, cfg.ActionGenerator.Data)
	if err != nil {
		return nil, err
	}
	return &Player{
		game:  g,
		state: state,
		ag:    ag,
		data:  ag.CreateData(state.Current()),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(atomic.AddUint64(&seedCounter, 1)))),
	}, nil
}

// Player is the random_move policy itself. Exported so a caller holding an
// already-resolved actiongen.Generator can construct one directly through
// NewFromGenerator instead of round-tripping through JSON.
type Player struct {
	player.Base
	mu    sync.Mutex
	game  game.Game
	state game.StateHandle
	ag    actiongen.Generator
	data  actiongen.Data
	rnd   *rand.Rand
}

// NewFromGenerator builds a random_move player directly from a resolved
// generator and cursor, skipping JSON construction. The MCTS rollout step
// does not use it: it builds its rollout player through player.Create from
// the configured type tag and data.
func NewFromGenerator(g game.Game, s game.State, ag actiongen.Generator, data actiongen.Data, rnd *rand.Rand) *Player {
	return &Player{game: g, state: constState{s}, ag: ag, data: data, rnd: rnd}
}

type constState struct{ s game.State }

func (c constState) Current() game.State { return c.s }

func (p *Player) GetBestAction(maxThinkTime *time.Duration) game.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return actiongen.RandomAction(p.ag, p.data, p.state.Current(), p.rnd)
}

func (p *Player) Update(a game.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ag.Update(p.data, a)
}
