// Package store implements the four-level concurrent resource registry (C7
// applied to the data model of spec.md §3): games own states, and each state
// owns its own players and action generators. Every lookup always descends
// game -> state -> {player, action generator}, so removing an ancestor makes
// every descendant ID answer UnknownID on the next lookup without any
// separate cascade step (P7).
package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/concurrent"
	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/player"
	"github.com/boardgameai/mctsd/player/mctsplayer"
)

// ErrUnknownID is returned whenever a gameID/stateID/playerID/actionGeneratorID
// does not address a live record.
var ErrUnknownID = errors.New("unknown id")

// Store is the root of the registry hierarchy: one Games registry, fanning
// out to per-game States, each fanning out to per-state Players and
// ActionGenerators.
type Store struct {
	Games *concurrent.Registry[*GameRecord]

	// DefaultWorkers is the worker count an "mcts" add_player request gets
	// when its own config omits (or zeroes) "workers". Sourced from the
	// server's -workers flag; 0 leaves it to mcts.NewParallelSearch's own
	// GOMAXPROCS fallback.
	DefaultWorkers int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{Games: concurrent.NewRegistry[*GameRecord]()}
}

// GameRecord owns one Game instance and its sub-registry of States.
type GameRecord struct {
	Game   game.Game
	States *concurrent.Registry[*StateRecord]
}

// StateRecord owns one mutable State plus its sub-registries of Players and
// ActionGenerators. mu is the State's own writer lock (spec.md §5's "one
// writer lock per mutable entity"): take_action takes it exclusively; every
// other reader (a Player's long-lived State reference, generate_actions)
// takes it as a reader.
type StateRecord struct {
	mu    sync.RWMutex
	state game.State
	Game  game.Game

	Players          *concurrent.Registry[player.Player]
	ActionGenerators *concurrent.Registry[*ActionGeneratorRecord]
}

// Current implements game.StateHandle, giving a Player or rollout a live
// view of the state it is bound to. Callers must not mutate the returned
// State directly — only Store.TakeAction may, under mu.
func (s *StateRecord) Current() game.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ActionGeneratorRecord pairs a registered action generator instance with
// its own per-state AG data cursor, the unit the C2 contract operates on.
type ActionGeneratorRecord struct {
	mu   sync.RWMutex
	AG   actiongen.Generator
	Data actiongen.Data
}

// AddGame registers a new Game under typeTag, constructed from data.
func (st *Store) AddGame(typeTag string, data json.RawMessage) (uint32, error) {
	g, err := game.Create(typeTag, data)
	if err != nil {
		return 0, err
	}
	rec := &GameRecord{Game: g, States: concurrent.NewRegistry[*StateRecord]()}
	return st.Games.Emplace(rec), nil
}

// Game returns the Game instance bound to gameID, for callers (the
// dispatcher's take_action route) that need to construct an Action from
// wire JSON before any state-level operation.
func (st *Store) Game(gameID uint32) (game.Game, error) {
	var g game.Game
	err := st.withGame(gameID, func(rec *GameRecord) error {
		g = rec.Game
		return nil
	})
	return g, err
}

// RemoveGame cascades removal of every descendant state, player, and action
// generator: it just drops the GameRecord — subsequent lookups through
// st.Games for this id fail outright, which is all P7 requires.
func (st *Store) RemoveGame(gameID uint32) {
	st.Games.Erase(gameID)
}

// withGame runs fn with the live GameRecord addressed by gameID.
func (st *Store) withGame(gameID uint32, fn func(*GameRecord) error) error {
	var inner error
	found := st.Games.Access(gameID, func(rec *GameRecord) { inner = fn(rec) })
	if !found {
		return errors.Wrapf(ErrUnknownID, "game %d", gameID)
	}
	return inner
}

// withState runs fn with the live StateRecord addressed by (gameID, stateID).
func (st *Store) withState(gameID, stateID uint32, fn func(*GameRecord, *StateRecord) error) error {
	return st.withGame(gameID, func(g *GameRecord) error {
		var inner error
		found := g.States.Access(stateID, func(s *StateRecord) { inner = fn(g, s) })
		if !found {
			return errors.Wrapf(ErrUnknownID, "state %d", stateID)
		}
		return inner
	})
}

// AddState registers a new State under gameID: data==nil yields the game's
// default starting state, otherwise the game parses data as its state
// schema.
func (st *Store) AddState(gameID uint32, data json.RawMessage) (uint32, game.State, error) {
	var id uint32
	var s game.State
	err := st.withGame(gameID, func(g *GameRecord) error {
		var state game.State
		if len(data) == 0 || string(data) == "null" {
			state = g.Game.CreateDefaultState()
		} else {
			created, err := g.Game.CreateState(data)
			if err != nil {
				return err
			}
			state = created
		}
		rec := &StateRecord{
			state:            state,
			Game:             g.Game,
			Players:          concurrent.NewRegistry[player.Player](),
			ActionGenerators: concurrent.NewRegistry[*ActionGeneratorRecord](),
		}
		id = g.States.Emplace(rec)
		s = state
		return nil
	})
	return id, s, err
}

// RemoveState cascades to every descendant player/AG of stateID, by the same
// drop-the-record argument as RemoveGame.
func (st *Store) RemoveState(gameID, stateID uint32) error {
	return st.withGame(gameID, func(g *GameRecord) error {
		g.States.Erase(stateID)
		return nil
	})
}

// AddPlayer constructs and registers a Player bound to (gameID, stateID). An
// "mcts" request that omits (or zeroes) "workers" picks up st.DefaultWorkers
// instead of leaving it to mcts.NewParallelSearch's own GOMAXPROCS fallback.
func (st *Store) AddPlayer(gameID, stateID uint32, typeTag string, data json.RawMessage) (uint32, error) {
	if typeTag == mctsplayer.TypeTag && st.DefaultWorkers > 0 {
		data = applyDefaultWorkers(data, st.DefaultWorkers)
	}

	var id uint32
	err := st.withState(gameID, stateID, func(g *GameRecord, s *StateRecord) error {
		p, err := player.Create(typeTag, g.Game, s, data)
		if err != nil {
			return err
		}
		id = s.Players.Emplace(p)
		return nil
	})
	return id, err
}

// applyDefaultWorkers fills in "workers" on an mcts player config that
// either omits it or sets it to 0, leaving an explicit non-zero value alone.
// Malformed data is passed through unchanged; player.Create reports the
// schema error itself.
func applyDefaultWorkers(data json.RawMessage, workers int) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return data
	}
	if raw, ok := fields["workers"]; ok {
		var w int
		if err := json.Unmarshal(raw, &w); err != nil || w != 0 {
			return data
		}
	}
	patched, err := json.Marshal(workers)
	if err != nil {
		return data
	}
	fields["workers"] = patched
	out, err := json.Marshal(fields)
	if err != nil {
		return data
	}
	return out
}

// RemovePlayer drops playerID from stateID's Players registry, joining the
// player's own teardown (e.g. a parallel MCTS player's worker pool) via
// concurrent.Registry's Close hook.
func (st *Store) RemovePlayer(gameID, stateID, playerID uint32) error {
	return st.withState(gameID, stateID, func(_ *GameRecord, s *StateRecord) error {
		s.Players.Erase(playerID)
		return nil
	})
}

// AddActionGenerator constructs and registers an action generator bound to
// (gameID, stateID), seeding its AG data from the state's current value.
func (st *Store) AddActionGenerator(gameID, stateID uint32, typeTag string, data json.RawMessage) (uint32, error) {
	var id uint32
	err := st.withState(gameID, stateID, func(_ *GameRecord, s *StateRecord) error {
		ag, err := actiongen.Create(typeTag, data)
		if err != nil {
			return err
		}
		rec := &ActionGeneratorRecord{AG: ag, Data: ag.CreateData(s.Current())}
		id = s.ActionGenerators.Emplace(rec)
		return nil
	})
	return id, err
}

// RemoveActionGenerator drops actionGeneratorID from stateID's registry.
func (st *Store) RemoveActionGenerator(gameID, stateID, actionGeneratorID uint32) error {
	return st.withState(gameID, stateID, func(_ *GameRecord, s *StateRecord) error {
		s.ActionGenerators.Erase(actionGeneratorID)
		return nil
	})
}

// GenerateActions enumerates every action actionGeneratorID's current cursor
// yields against stateID's live state.
func (st *Store) GenerateActions(gameID, stateID, actionGeneratorID uint32) ([]game.Action, error) {
	var actions []game.Action
	err := st.withState(gameID, stateID, func(_ *GameRecord, s *StateRecord) error {
		found := s.ActionGenerators.Access(actionGeneratorID, func(rec *ActionGeneratorRecord) {
			rec.mu.RLock()
			defer rec.mu.RUnlock()
			actions = actiongen.ActionList(rec.AG, rec.Data, s.Current())
		})
		if !found {
			return errors.Wrapf(ErrUnknownID, "action generator %d", actionGeneratorID)
		}
		return nil
	})
	return actions, err
}

// TakeAction applies a to stateID's live state under its writer lock, then
// fans Update(a) out to every sub-player and sub-action-generator in
// parallel (spec.md §4.8's "two fire-and-forget tasks joined before
// responding"). Returns the terminal result vector, or nil if the game
// continues.
func (st *Store) TakeAction(gameID, stateID uint32, a game.Action) (result []float32, terminal bool, err error) {
	err = st.withState(gameID, stateID, func(g *GameRecord, s *StateRecord) error {
		s.mu.Lock()
		if !g.Game.IsValidAction(s.state, a) {
			s.mu.Unlock()
			return errors.New("invalid action")
		}
		res, term := g.Game.TakeAction(s.state, a)
		s.mu.Unlock()
		result, terminal = res, term

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Players.ForEachParallel(func(_ uint32, p player.Player) { p.Update(a) })
		}()
		go func() {
			defer wg.Done()
			s.ActionGenerators.ForEachParallel(func(_ uint32, rec *ActionGeneratorRecord) {
				rec.mu.Lock()
				defer rec.mu.Unlock()
				rec.AG.Update(rec.Data, a)
			})
		}()
		wg.Wait()
		return nil
	})
	return result, terminal, err
}

// NextPlayer returns the game's next-player-to-move for stateID's current
// state.
func (st *Store) NextPlayer(gameID, stateID uint32) (int, error) {
	var next int
	err := st.withState(gameID, stateID, func(g *GameRecord, s *StateRecord) error {
		next = g.Game.NextPlayer(s.Current())
		return nil
	})
	return next, err
}

// State returns stateID's current live state value.
func (st *Store) State(gameID, stateID uint32) (game.State, error) {
	var s game.State
	err := st.withState(gameID, stateID, func(_ *GameRecord, rec *StateRecord) error {
		s = rec.Current()
		return nil
	})
	return s, err
}

// StartThinking / StopThinking / GetBestAction / QueryDetails address one
// player by (gameID, stateID, playerID), mirroring the Player contract (C3)
// through the registry.

func (st *Store) StartThinking(gameID, stateID, playerID uint32) error {
	return st.withPlayer(gameID, stateID, playerID, func(p player.Player) error {
		p.StartThinking()
		return nil
	})
}

func (st *Store) StopThinking(gameID, stateID, playerID uint32) error {
	return st.withPlayer(gameID, stateID, playerID, func(p player.Player) error {
		p.StopThinking()
		return nil
	})
}

func (st *Store) withPlayer(gameID, stateID, playerID uint32, fn func(player.Player) error) error {
	return st.withState(gameID, stateID, func(_ *GameRecord, s *StateRecord) error {
		var inner error
		found := s.Players.Access(playerID, func(p player.Player) { inner = fn(p) })
		if !found {
			return errors.Wrapf(ErrUnknownID, "player %d", playerID)
		}
		return inner
	})
}

// GetBestAction asks playerID for its chosen action, optionally bounded by
// maxThinkTime.
func (st *Store) GetBestAction(gameID, stateID, playerID uint32, maxThinkTime *time.Duration) (game.Action, error) {
	var a game.Action
	err := st.withPlayer(gameID, stateID, playerID, func(p player.Player) error {
		a = p.GetBestAction(maxThinkTime)
		return nil
	})
	return a, err
}

// QueryDetails forwards an implementation-defined diagnostic request to
// playerID.
func (st *Store) QueryDetails(gameID, stateID, playerID uint32, data json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	err := st.withPlayer(gameID, stateID, playerID, func(p player.Player) error {
		resp, err := p.QueryDetails(data)
		out = resp
		return err
	})
	return out, err
}
