// Package player defines the base player contract (C3) every concrete
// decision-making strategy implements, plus its type-tag factory table.
package player

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/boardgameai/mctsd/game"
)

// ErrSchema mirrors game.ErrSchema for player construction payloads.
var ErrSchema = errors.New("schema error")

// ErrUnknownType is returned by Create when no player is registered under
// the requested type tag.
var ErrUnknownType = errors.New("unknown player type")

// Player drives one seat in a game. The lifecycle is
// StartThinking -> (GetBestAction / Update pairs, zero or more) -> StopThinking.
type Player interface {
	StartThinking()
	StopThinking()

	// GetBestAction returns the player's chosen action for the current
	// state. If maxThinkTime is non-nil, the player should not spend
	// materially longer than that before returning.
	GetBestAction(maxThinkTime *time.Duration) game.Action

	// Update is called after an action (the player's own or an opponent's)
	// has been committed to the state, so the player can advance any
	// internal bookkeeping (e.g. action-generator cursors) in step.
	Update(a game.Action)

	// QueryDetails returns implementation-defined diagnostic data. The
	// default is an empty JSON object.
	QueryDetails(data json.RawMessage) (json.RawMessage, error)
}

// Base supplies no-op defaults for the optional parts of Player; concrete
// players embed it and override what they need.
type Base struct{}

func (Base) StartThinking() {}
func (Base) StopThinking()  {}

func (Base) QueryDetails(data json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

// Factory builds a Player bound to a game and a live handle onto the state
// it will act in, from its construction payload.
type Factory func(g game.Game, state game.StateHandle, data json.RawMessage) (Player, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds a type tag to a Factory. Called from init() by concrete
// player packages; panics on duplicate registration.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[tag]; ok {
		panic(fmt.Sprintf("player: duplicate registration for type %q", tag))
	}
	registry[tag] = f
}

// Create looks up the type tag in the factory table and constructs a
// Player.
func Create(tag string, g game.Game, state game.StateHandle, data json.RawMessage) (Player, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "player type %q", tag)
	}
	return f(g, state, data)
}
