// Package game defines the polymorphic Game/State/Action contract (C1) that
// every concrete ruleset implements, plus a type-tag factory table games
// register themselves into.
package game

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// ErrSchema is returned when JSON passed to CreateState/CreateAction/Create
// does not match the shape the game expects.
var ErrSchema = errors.New("schema error")

// ErrUnknownType is returned by Create when no game is registered under the
// requested type tag.
var ErrUnknownType = errors.New("unknown game type")

// Action is a value-type move. Implementations must be comparable by Equal
// and must round-trip through JSON (P2, P8).
type Action interface {
	Equal(other Action) bool
	Clone() Action
	json.Marshaler
}

// State is mutated only through Game.TakeAction. Implementations must be
// clonable and JSON round-trippable.
type State interface {
	Equal(other State) bool
	Clone() State
	json.Marshaler
}

// GridState is implemented by games whose state is a rectangular board of
// cells, letting action generators (package actiongen) enumerate positions
// without knowing the concrete ruleset.
type GridState interface {
	State
	Dims() (rows, cols int)
	CellAt(pos int) int // 0 = empty, else 1-based player index
}

// Game is immutable after construction and owns no mutable state of its own;
// all mutation happens through the State it hands out.
type Game interface {
	TypeTag() string
	PlayerCount() int
	CreateDefaultState() State
	CreateState(data json.RawMessage) (State, error)
	CreateAction(data json.RawMessage) (Action, error)
	NextPlayer(s State) int
	IsValidAction(s State, a Action) bool
	// TakeAction applies a (precondition: valid) action to s in place and
	// returns (result, true) if the game ended, or (nil, false) otherwise.
	// result sums meaningfully across players ({1,0}, {0,1}, {0.5,0.5}, ...).
	TakeAction(s State, a Action) (result []float32, terminal bool)
}

// Factory builds a Game instance from its construction payload.
type Factory func(data json.RawMessage) (Game, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds a type tag to a Factory. Called from init() by concrete
// game packages; panics on duplicate registration since that is always a
// programming error, never a runtime condition.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[tag]; ok {
		panic(fmt.Sprintf("game: duplicate registration for type %q", tag))
	}
	registry[tag] = f
}

// Create looks up the type tag in the factory table and constructs a Game.
func Create(tag string, data json.RawMessage) (Game, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "game type %q", tag)
	}
	return f(data)
}

// GridAction is implemented by Actions belonging to a GridState game,
// exposing the flat board position so generic grid action generators
// (package actiongen) can reason about cells without a concrete game type.
type GridAction interface {
	Action
	Pos() int
}

// StateHandle lets a long-lived observer (a Player, an action generator's
// cached data) read the current value of a mutable State without being
// handed an unsynchronized pointer into the registry. Concrete registry
// records implement it; see store.StateRecord.
type StateHandle interface {
	Current() State
}
