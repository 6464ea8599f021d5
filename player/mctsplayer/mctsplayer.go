// Package mctsplayer wires the mcts package's sequential and parallel search
// (C4/C5) up as a player.Player under the "mcts" type tag, so it can be
// selected from a request the same way any other built-in strategy is.
package mctsplayer

import (
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/mcts"
	"github.com/boardgameai/mctsd/player"
)

// seedCounter spreads the random source's seed across concurrently
// constructed parallel players that would otherwise land on the same
// time.Now() nanosecond.
var seedCounter uint64

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(atomic.AddUint64(&seedCounter, 1))))
}

// TypeTag is the player registry tag for the MCTS strategy.
const TypeTag = "mcts"

var validate = validator.New()

func init() {
	player.Register(TypeTag, New)
}

type subPolicy struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type config struct {
	Parallel          bool        `json:"parallel"`
	Iterations        int         `json:"iterations" validate:"gt=0"`
	ExplorationFactor float32     `json:"explorationFactor" validate:"gte=0"`
	GoalMatrix        [][]float32 `json:"goalMatrix" validate:"required,min=1"`
	Workers           int         `json:"workers" validate:"gte=0"`
	RootNoiseAlpha    float64     `json:"rootNoiseAlpha,omitempty" validate:"gte=0"`
	RootNoiseEpsilon  float32     `json:"rootNoiseEpsilon,omitempty" validate:"gte=0,lte=1"`
	ActionGenerator   subPolicy   `json:"actionGenerator"`
	RolloutPlayer     subPolicy   `json:"rolloutPlayer"`
}

// New constructs an "mcts" player. In parallel mode it builds a
// ParallelSearch immediately (its goroutines spawn on the first
// StartThinking), sharing one Tree
// across the player's lifetime; in sequential mode it rebuilds a Tree from
// the authoritative state on every GetBestAction, matching mcts.Search's own
// documented per-call-rebuild simplification.
func New(g game.Game, state game.StateHandle, data json.RawMessage) (player.Player, error) {
	var cfg config
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(player.ErrSchema, err.Error())
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(player.ErrSchema, err.Error())
	}
	if cfg.ActionGenerator.Type == "" {
		return nil, errors.Wrap(player.ErrSchema, "actionGenerator.type is required")
	}
	if cfg.RolloutPlayer.Type == "" {
		return nil, errors.Wrap(player.ErrSchema, "rolloutPlayer.type is required")
	}

	mctsCfg := mcts.Config{
		ExplorationFactor:   cfg.ExplorationFactor,
		GoalMatrix:          cfg.GoalMatrix,
		Iterations:          cfg.Iterations,
		Parallel:            cfg.Parallel,
		Workers:             cfg.Workers,
		RootNoiseAlpha:      cfg.RootNoiseAlpha,
		RootNoiseEpsilon:    cfg.RootNoiseEpsilon,
		ActionGeneratorType: cfg.ActionGenerator.Type,
		ActionGeneratorData: cfg.ActionGenerator.Data,
		RolloutPlayerType:   cfg.RolloutPlayer.Type,
		RolloutPlayerData:   cfg.RolloutPlayer.Data,
	}

	p := &Player{
		game:  g,
		state: state,
		cfg:   mctsCfg,
	}

	if cfg.Parallel {
		ag, err := actiongen.Create(cfg.ActionGenerator.Type, cfg.ActionGenerator.Data)
		if err != nil {
			return nil, err
		}
		tree := mcts.NewTree(g, ag, state.Current(), mctsCfg, newRand())
		p.parallel = mcts.NewParallelSearch(tree, mctsCfg.Workers)
	}
	return p, nil
}

// Player is the "mcts" strategy. Sequential mode is stateless between calls
// beyond remembering the last tree it built, for QueryDetails; parallel mode
// defers everything to its ParallelSearch.
type Player struct {
	player.Base

	game  game.Game
	state game.StateHandle
	cfg   mcts.Config

	mu       sync.Mutex
	parallel *mcts.ParallelSearch
	lastTree *mcts.Tree
}

func (p *Player) StartThinking() {
	if p.parallel != nil {
		p.parallel.StartThinking()
	}
}

func (p *Player) StopThinking() {
	if p.parallel != nil {
		p.parallel.StopThinking()
	}
}

func (p *Player) GetBestAction(maxThinkTime *time.Duration) game.Action {
	if p.parallel != nil {
		return p.parallel.GetBestAction(maxThinkTime)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ag, err := actiongen.Create(p.cfg.ActionGeneratorType, p.cfg.ActionGeneratorData)
	if err != nil {
		return nil
	}
	t := mcts.Search(p.game, ag, p.state.Current(), p.cfg)
	p.lastTree = t
	return t.BestAction()
}

// Close stops a parallel player's worker pool. Picked up by
// concurrent.Registry's Erase/Drop via an optional Close() interface check,
// so removing a player record from the store joins its workers before the
// value is released.
func (p *Player) Close() {
	if p.parallel != nil {
		p.parallel.Close()
	}
}

func (p *Player) Update(a game.Action) {
	if p.parallel != nil {
		p.parallel.Update(a)
	}
	// Sequential mode carries no cursor of its own: GetBestAction always
	// rebuilds from p.state.Current(), which the caller has already advanced.
}

type queryRequest struct {
	ExportTree bool `json:"exportTree"`
	MaxDepth   int  `json:"maxDepth"`
}

type actionDetailDTO struct {
	Action   game.Action `json:"action"`
	Rollouts uint64      `json:"rollouts"`
	Score    float32     `json:"score"`
}

type queryResponse struct {
	TotalRollouts uint64            `json:"totalRollouts"`
	Actions       []actionDetailDTO `json:"actions"`
	DOT           string            `json:"dot,omitempty"`
}

// QueryDetails reports the root's aggregate rollout count and per-action
// statistics (C12), and, when asked, a Graphviz DOT rendering of the live
// search tree.
func (p *Player) QueryDetails(data json.RawMessage) (json.RawMessage, error) {
	var req queryRequest
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.Wrap(player.ErrSchema, err.Error())
		}
	}

	var tree *mcts.Tree
	var total uint64
	var details []mcts.ActionDetail

	if p.parallel != nil {
		tree = p.parallel.Tree()
		total, details = p.parallel.QueryDetails()
	} else {
		p.mu.Lock()
		tree = p.lastTree
		p.mu.Unlock()
		if tree != nil {
			total, details = tree.RootDetails()
		}
	}

	resp := queryResponse{TotalRollouts: total, Actions: make([]actionDetailDTO, 0, len(details))}
	for _, d := range details {
		resp.Actions = append(resp.Actions, actionDetailDTO{Action: d.Action, Rollouts: d.Rollouts, Score: d.Score})
	}
	if req.ExportTree && tree != nil {
		dot, err := tree.ExportDOT(req.MaxDepth)
		if err != nil {
			return nil, err
		}
		resp.DOT = dot
	}
	return json.Marshal(resp)
}
