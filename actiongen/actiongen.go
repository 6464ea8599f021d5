// Package actiongen defines the action-generator contract (C2): a policy
// for enumerating the legal actions of a State one at a time, without ever
// materialising the full action list unless asked to.
package actiongen

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/boardgameai/mctsd/game"
)

// ErrSchema mirrors game.ErrSchema for action-generator construction payloads.
var ErrSchema = errors.New("schema error")

// ErrUnknownType is returned by Create when no generator is registered under
// the requested type tag.
var ErrUnknownType = errors.New("unknown action generator type")

// Data is the per-state enumeration cursor an ActionGenerator maintains.
// Implementations must be cheap to Clone since every node that carries AG
// data in the MCTS tree owns its own copy.
type Data interface {
	Clone() Data
	Equal(other Data) bool
}

// Generator is a stateless policy, shared across every State it is asked to
// enumerate; all mutable enumeration state lives in the Data it hands out.
type Generator interface {
	TypeTag() string

	// CreateData builds a fresh enumeration cursor for s.
	CreateData(s game.State) Data

	// FirstAction returns the first action CreateData's cursor would yield.
	// Guaranteed non-nil on any non-terminal state with at least one legal
	// action.
	FirstAction(data Data, s game.State) game.Action

	// NextAction returns the action following cur in enumeration order, or
	// ok=false if cur was the last one.
	NextAction(data Data, s game.State, cur game.Action) (next game.Action, ok bool)

	// Update advances data incrementally past an action that was just
	// committed to the state. Must be idempotent with respect to the
	// enumeration results NextAction subsequently produces.
	Update(data Data, a game.Action)
}

// Factory builds a Generator instance from its construction payload.
type Factory func(data json.RawMessage) (Generator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds a type tag to a Factory. Called from init() by concrete
// generator packages; panics on duplicate registration.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[tag]; ok {
		panic(fmt.Sprintf("actiongen: duplicate registration for type %q", tag))
	}
	registry[tag] = f
}

// Create looks up the type tag in the factory table and constructs a
// Generator.
func Create(tag string, data json.RawMessage) (Generator, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "action generator type %q", tag)
	}
	return f(data)
}

// ActionList fully enumerates the actions data/s would yield, in order. Used
// by callers that genuinely need the whole list (generate_actions);
// RandomAction and the core MCTS loop never call this.
func ActionList(g Generator, data Data, s game.State) []game.Action {
	var out []game.Action
	a := g.FirstAction(data, s)
	if a == nil {
		return out
	}
	out = append(out, a)
	for {
		next, ok := g.NextAction(data, s, a)
		if !ok {
			break
		}
		out = append(out, next)
		a = next
	}
	return out
}

// NthAction returns the (0-indexed) n'th action in enumeration order, or nil
// if the generator yields fewer than n+1 actions.
func NthAction(g Generator, data Data, s game.State, n int) game.Action {
	a := g.FirstAction(data, s)
	if a == nil {
		return nil
	}
	for i := 0; i < n; i++ {
		next, ok := g.NextAction(data, s, a)
		if !ok {
			return nil
		}
		a = next
	}
	return a
}

// RandomAction picks a uniformly random action from the generator's
// enumeration via reservoir sampling, without ever materialising the full
// list. rng is the caller's source of randomness (math/rand.Rand or any
// compatible generator); it must expose Intn(n int) int.
func RandomAction(g Generator, data Data, s game.State, rng interface{ Intn(int) int }) game.Action {
	a := g.FirstAction(data, s)
	if a == nil {
		return nil
	}
	chosen := a
	count := 1
	for {
		next, ok := g.NextAction(data, s, a)
		if !ok {
			break
		}
		count++
		if rng.Intn(count) == 0 {
			chosen = next
		}
		a = next
	}
	return chosen
}
