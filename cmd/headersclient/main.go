// Package main runs the header chain client as a long-lived process: it
// tracks the longest proof-of-work chain from the peer-to-peer network and
// logs every new chain tip until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/bsv-blockchain/go-headers-client/daemon"
	"github.com/bsv-blockchain/go-headers-client/settings"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

func main() {
	app := &cli.App{
		Name:  "headersclient",
		Usage: "Track the longest proof-of-work chain of block headers",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "connect",
				Usage: "Connect to this peer address ahead of automatic selection (may be repeated)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	logger := ulogger.New("headers")
	tSettings := settings.NewSettings()

	d, err := daemon.New(logger, tSettings)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err = d.Start(ctx); err != nil {
		return err
	}

	for _, addr := range c.StringSlice("connect") {
		d.ConnectToPeer(addr)
	}

	tips := d.Subscribe()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case tip := <-tips:
			logger.Infof("New chain tip %d %s", tip.Height, tip.HashHex)
		case sig := <-signals:
			logger.Infof("Received %s, shutting down", sig)

			return d.Shutdown(ctx)
		}
	}
}
