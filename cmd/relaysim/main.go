// Command relaysim drives a running relay with simulated players. Each bot
// joins with a username and walks in a circle; the first bot to join holds
// authority and also creates and spins shared entities. It is meant for
// smoke-testing a deployment and watching fan-out under load.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/sessionrelay/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "relaysim",
		Usage: "connect simulated players to a session relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:8080/ws", Usage: "relay WebSocket URL"},
			&cli.IntFlag{Name: "players", Value: 3, Usage: "number of simulated players"},
			&cli.IntFlag{Name: "entities", Value: 2, Usage: "entities created by the authority bot"},
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "how long each bot stays connected"},
			&cli.DurationFlag{Name: "interval", Value: 100 * time.Millisecond, Usage: "time between position updates"},
			&cli.StringFlag{Name: "log-level", Value: "INFO", Usage: "DEBUG, INFO, WARNING or ERROR"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "relaysim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger, syncLogs, err := logging.New(logging.Options{Level: cmd.String("log-level"), Console: true})
	if err != nil {
		return err
	}
	defer syncLogs()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("duration"))
	defer cancel()

	bots := make([]*Bot, cmd.Int("players"))
	for i := range bots {
		bots[i] = &Bot{
			Name:           fmt.Sprintf("bot-%d", i+1),
			URL:            cmd.String("url"),
			UpdateInterval: cmd.Duration("interval"),
			Entities:       cmd.Int("entities"),
			log:            logger,
		}
	}

	results := runBots(ctx, bots)

	failed := 0
	for i, r := range results {
		if r.err != nil {
			failed++
			logger.Error("bot failed", zap.String("bot", bots[i].Name), zap.Error(r.err))
			continue
		}
		fmt.Printf("%-8s %s authority=%-5v sent=%-5d received=%v\n",
			r.Name, r.PlayerID, r.Authority, r.Sent, r.Received)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d bots failed", failed, len(bots))
	}
	return nil
}

type botOutcome struct {
	*Result
	err error
}

// runBots runs every bot concurrently and returns outcomes in bot order
func runBots(ctx context.Context, bots []*Bot) []botOutcome {
	outcomes := make([]botOutcome, len(bots))
	// One failing bot must not stop the others, so errors stay per outcome
	var g errgroup.Group
	for i, bot := range bots {
		g.Go(func() error {
			res, err := bot.Run(ctx)
			outcomes[i] = botOutcome{Result: res, err: err}
			return nil
		})
	}
	g.Wait()
	return outcomes
}
