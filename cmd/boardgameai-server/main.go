// Command boardgameai-server runs the request dispatcher (C8/C13) over
// stdin/stdout: one line in, one line out, until EOF.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	_ "github.com/boardgameai/mctsd/catalog"
	"github.com/boardgameai/mctsd/dispatcher"
	"github.com/boardgameai/mctsd/logging"
	"github.com/boardgameai/mctsd/store"
)

var (
	logLevel = flag.String("log-level", "info", "log level: debug, info, warn, error")
	workers  = flag.Int("workers", 0, "default worker count for mcts players whose add_player request omits \"workers\" (0: defer to GOMAXPROCS)")
)

func main() {
	flag.Parse()

	log, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boardgameai-server: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	st := store.NewStore()
	st.DefaultWorkers = *workers

	d := dispatcher.New(st, log, os.Stdout)
	if err := d.Run(context.Background(), os.Stdin); err != nil {
		log.Errorw("dispatcher exited with error", "error", err)
		os.Exit(1)
	}
	os.Exit(0)
}
