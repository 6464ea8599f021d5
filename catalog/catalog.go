// Package catalog wires every concrete game, action generator, and player
// implementation into their respective factory tables by importing them for
// their init() side effects. Anything that needs the full set of built-in
// types registered — the CLI entrypoint, integration tests — imports
// catalog blank or plain; nothing in catalog itself needs calling.
package catalog

import (
	_ "github.com/boardgameai/mctsd/actiongen"
	_ "github.com/boardgameai/mctsd/game"
	_ "github.com/boardgameai/mctsd/player/mctsplayer"
	_ "github.com/boardgameai/mctsd/player/randmove"
)
