// Package runner implements the single-process game runner (C9): play N
// independent rounds of a configured game against a configured player set,
// optionally concurrently, aggregating per-round and final results.
package runner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/player"
)

// PlayerSpec configures one seat for every round RunGames plays.
type PlayerSpec struct {
	Type                    string
	Data                    json.RawMessage
	AllowBackgroundThinking bool
	MaxThinkTime            *time.Duration
}

// maxParallelRounds bounds how many rounds run concurrently when Parallel is
// set, regardless of how many rounds were requested.
const maxParallelRounds = 8

// RunGames plays Rounds independent rounds of gameType/gameData with a fresh
// Game, State, and player set each round (C9). Returns each round's result
// vector plus the element-wise sum across rounds.
func RunGames(ctx context.Context, gameType string, gameData json.RawMessage, rounds int, parallel bool, players []PlayerSpec) ([][]float32, []float32, error) {
	results := make([][]float32, rounds)

	// A round's failure (an illegal-move bug in one player's policy, say)
	// shouldn't hide every other round's failure: collect them all rather
	// than reporting only the first.
	var merr error
	var merrMu sync.Mutex
	recordErr := func(i int, err error) {
		merrMu.Lock()
		defer merrMu.Unlock()
		merr = multierror.Append(merr, errors.Wrapf(err, "round %d", i))
	}

	playRound := func(i int) {
		result, err := playOneRound(gameType, gameData, players)
		if err != nil {
			recordErr(i, err)
			return
		}
		results[i] = result
	}

	if !parallel {
		for i := 0; i < rounds; i++ {
			playRound(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(maxParallelRounds)
		for i := 0; i < rounds; i++ {
			i := i
			if err := sem.Acquire(gctx, 1); err != nil {
				recordErr(i, err)
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				playRound(i)
				return nil
			})
		}
		_ = g.Wait()
	}
	if merr != nil {
		return nil, nil, merr
	}

	var final []float32
	for _, r := range results {
		if final == nil {
			final = make([]float32, len(r))
		}
		for i, v := range r {
			final[i] += v
		}
	}
	return results, final, nil
}

func playOneRound(gameType string, gameData json.RawMessage, specs []PlayerSpec) ([]float32, error) {
	g, err := game.Create(gameType, gameData)
	if err != nil {
		return nil, err
	}
	state := g.CreateDefaultState()
	handle := &stateHandle{s: state}

	players := make([]player.Player, len(specs))
	for i, spec := range specs {
		p, err := player.Create(spec.Type, g, handle, spec.Data)
		if err != nil {
			return nil, err
		}
		players[i] = p
		if spec.AllowBackgroundThinking {
			p.StartThinking()
		}
	}
	defer func() {
		for i, spec := range specs {
			if spec.AllowBackgroundThinking {
				players[i].StopThinking()
			}
		}
	}()

	for {
		idx := g.NextPlayer(state) - 1
		p := players[idx]
		spec := specs[idx]

		if !spec.AllowBackgroundThinking {
			p.StartThinking()
		}
		action := p.GetBestAction(spec.MaxThinkTime)
		if !spec.AllowBackgroundThinking {
			p.StopThinking()
		}

		result, terminal := g.TakeAction(state, action)
		handle.s = state
		for _, other := range players {
			other.Update(action)
		}
		if terminal {
			return result, nil
		}
	}
}

type stateHandle struct{ s game.State }

func (h *stateHandle) Current() game.State { return h.s }
