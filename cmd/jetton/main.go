// Package main is a command line client for the ledger daemon.
//
// Amounts are human decimal values scaled by --decimals. Addresses are raw
// ("0:ab12..."), friendly base58, or "@seed" for the holder derived from seed.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	endpointFlag = "endpoint"
	tokenFlag    = "token"
	decimalsFlag = "decimals"
	attemptsFlag = "attempts"
	intervalFlag = "interval"
	noWaitFlag   = "no-wait"
)

func newApp() *cli.App {
	return &cli.App{
		Name:                 "jetton",
		Usage:                "drive fungible tokens on a ledger daemon",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    endpointFlag,
				Usage:   "ledger daemon base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"JETTON_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    tokenFlag,
				Usage:   "bearer token for mutating requests",
				EnvVars: []string{"JETTON_TOKEN"},
			},
			&cli.UintFlag{
				Name:  decimalsFlag,
				Usage: "decimals of human amounts",
				Value: 9,
			},
			&cli.IntFlag{
				Name:  attemptsFlag,
				Usage: "state polls after a mutating command",
				Value: 20,
			},
			&cli.DurationFlag{
				Name:  intervalFlag,
				Usage: "delay between state polls",
				Value: 250 * time.Millisecond,
			},
			&cli.BoolFlag{
				Name:  noWaitFlag,
				Usage: "return once the request is accepted",
			},
		},
		Commands: []*cli.Command{
			holderCmd,
			fundCmd,
			deployCmd,
			mintCmd,
			transferCmd,
			burnCmd,
			adminBurnCmd,
			changeAdminCmd,
			changeMetadataCmd,
			withdrawCmd,
			tokenDataCmd,
			walletDataCmd,
			walletAddressCmd,
			reportCmd,
			traceCmd,
			watchCmd,
		},
	}
}

func main() {
	app := newApp()
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %v\n", err) // nolint: errcheck
		os.Exit(1)
	}
}
