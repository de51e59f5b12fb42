package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"jetton-ledger/internal/api"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/metadata"
)

const (
	masterFlag   = "master"
	adminFlag    = "admin"
	ownerFlag    = "owner"
	toFlag       = "to"
	amountFlag   = "amount"
	forwardFlag  = "forward"
	totalFlag    = "total"
	valueFlag    = "value"
	responseFlag = "response"
	queryFlag    = "query-id"
	metaFlag     = "meta"
)

var (
	masterF = &cli.StringFlag{Name: masterFlag, Usage: "token master address", Required: true}
	adminF  = &cli.StringFlag{Name: adminFlag, Usage: "admin address", Required: true}
	ownerF  = &cli.StringFlag{Name: ownerFlag, Usage: "wallet owner address", Required: true}
	amountF = &cli.StringFlag{Name: amountFlag, Usage: "token amount", Required: true}
	queryF  = &cli.Uint64Flag{Name: queryFlag, Usage: "query id echoed in replies"}
	metaF   = &cli.StringSliceFlag{Name: metaFlag, Usage: "metadata attribute key=value (name, symbol, description, image, decimals)"}
)

func parseMeta(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--%s: %q is not key=value", metaFlag, p)
		}
		if _, known := metadata.Keys[metadata.Key(k)]; !known {
			return nil, fmt.Errorf("--%s: %w: %q", metaFlag, metadata.ErrUnsupportedKey, k)
		}
		out[k] = v
	}
	return out, nil
}

var holderCmd = &cli.Command{
	Name:      "holder",
	Usage:     "Create or top up the holder derived from a seed",
	ArgsUsage: "<seed>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: amountFlag, Usage: "value to credit", Value: "100"},
	},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		seed := cctx.Args().First()
		if seed == "" {
			return fmt.Errorf("seed is required")
		}
		amount, err := nano(cctx, amountFlag)
		if err != nil {
			return err
		}
		acc, err := s.client.CreateHolder(cctx.Context, seed, amount)
		if err != nil {
			return err
		}
		if err := s.await(cctx.Context, acc, "holder funded", func(ctx context.Context) (bool, error) {
			_, err := s.client.Account(ctx, acc.Address)
			if api.IsNotFound(err) {
				return false, nil
			}
			return err == nil, err
		}); err != nil {
			return err
		}
		fmt.Fprintln(s.out, acc.Address)
		return nil
	},
}

var fundCmd = &cli.Command{
	Name:      "fund",
	Usage:     "Credit value to an account",
	ArgsUsage: "<address> <amount>",
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		if cctx.NArg() != 2 {
			return fmt.Errorf("expected <address> <amount>")
		}
		addr, err := parseAddress(cctx.Args().Get(0))
		if err != nil {
			return err
		}
		amount, err := domain.ParseUnits(cctx.Args().Get(1), domain.NanoDecimals)
		if err != nil {
			return err
		}
		acc, err := s.client.Fund(cctx.Context, addr, amount)
		if err != nil {
			return err
		}
		return s.await(cctx.Context, acc, "account funded", func(ctx context.Context) (bool, error) {
			_, err := s.client.Account(ctx, addr)
			if api.IsNotFound(err) {
				return false, nil
			}
			return err == nil, err
		})
	},
}

var deployCmd = &cli.Command{
	Name:  "deploy",
	Usage: "Deploy a token master",
	Flags: []cli.Flag{adminF, metaF},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		admin, err := s.address(cctx, adminFlag)
		if err != nil {
			return err
		}
		meta, err := parseMeta(cctx.StringSlice(metaFlag))
		if err != nil {
			return err
		}
		acc, err := s.client.Deploy(cctx.Context, api.DeployRequest{Admin: admin, Metadata: meta})
		if err != nil {
			return err
		}
		if err := s.await(cctx.Context, acc, "master deployed", func(ctx context.Context) (bool, error) {
			_, err := s.client.TokenData(ctx, acc.Address)
			if api.IsNotFound(err) {
				return false, nil
			}
			return err == nil, err
		}); err != nil {
			return err
		}
		fmt.Fprintln(s.out, acc.Address)
		return nil
	},
}

// adminMintCommand builds mint and admin-burn, which share their body.
func adminMintCommand(name, usage string, burn bool) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			masterF, adminF, amountF, queryF,
			&cli.StringFlag{Name: toFlag, Usage: "holder whose wallet is affected", Required: true},
			&cli.StringFlag{Name: forwardFlag, Usage: "value forwarded to the wallet", Value: "0.05"},
			&cli.StringFlag{Name: totalFlag, Usage: "value attached to the internal message", Value: "0.1"},
		},
		Action: func(cctx *cli.Context) error {
			s, err := newSession(cctx)
			if err != nil {
				return err
			}
			master, err := s.address(cctx, masterFlag)
			if err != nil {
				return err
			}
			admin, err := s.address(cctx, adminFlag)
			if err != nil {
				return err
			}
			to, err := s.address(cctx, toFlag)
			if err != nil {
				return err
			}
			amount, err := s.amount(cctx, amountFlag)
			if err != nil {
				return err
			}
			forward, err := nano(cctx, forwardFlag)
			if err != nil {
				return err
			}
			total, err := nano(cctx, totalFlag)
			if err != nil {
				return err
			}
			before, err := s.client.Balance(cctx.Context, master, to)
			if err != nil {
				return err
			}

			req := api.MintRequest{
				Admin:         admin,
				QueryID:       cctx.Uint64(queryFlag),
				To:            to,
				Amount:        amount,
				ForwardAmount: forward,
				TotalAmount:   total,
			}
			var (
				acc  *api.Accepted
				want domain.Coins
			)
			if burn {
				if want, err = before.Sub(amount); err != nil {
					return fmt.Errorf("balance %s is below %s", s.format(before), s.format(amount))
				}
				acc, err = s.client.AdminBurn(cctx.Context, master, req)
			} else {
				if want, err = before.Add(amount); err != nil {
					return err
				}
				acc, err = s.client.Mint(cctx.Context, master, req)
			}
			if err != nil {
				return err
			}
			if err := s.await(cctx.Context, acc, "balance "+s.format(want), s.balanceBecomes(master, to, want)); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "balance of %s: %s\n", to, s.format(want))
			return nil
		},
	}
}

var (
	mintCmd      = adminMintCommand("mint", "Mint tokens to a holder", false)
	adminBurnCmd = adminMintCommand("admin-burn", "Burn tokens of a holder on behalf of the admin", true)
)

var transferCmd = &cli.Command{
	Name:  "transfer",
	Usage: "Transfer tokens between holders",
	Flags: []cli.Flag{
		masterF, ownerF, amountF, queryF,
		&cli.StringFlag{Name: toFlag, Usage: "destination holder", Required: true},
		&cli.StringFlag{Name: responseFlag, Usage: "receiver of excesses (default: owner)"},
		&cli.StringFlag{Name: forwardFlag, Usage: "value forwarded to the destination holder"},
		&cli.StringFlag{Name: valueFlag, Usage: "value attached to the request (default: computed)"},
	},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		owner, err := s.address(cctx, ownerFlag)
		if err != nil {
			return err
		}
		to, err := s.address(cctx, toFlag)
		if err != nil {
			return err
		}
		response, err := s.optionalAddress(cctx, responseFlag, owner)
		if err != nil {
			return err
		}
		amount, err := s.amount(cctx, amountFlag)
		if err != nil {
			return err
		}
		forward, err := nano(cctx, forwardFlag)
		if err != nil {
			return err
		}
		value, err := nano(cctx, valueFlag)
		if err != nil {
			return err
		}

		wallet, err := s.client.WalletAddress(cctx.Context, master, owner)
		if err != nil {
			return err
		}
		before, err := s.client.Balance(cctx.Context, master, owner)
		if err != nil {
			return err
		}
		want, err := before.Sub(amount)
		if err != nil {
			return fmt.Errorf("balance %s is below %s", s.format(before), s.format(amount))
		}
		acc, err := s.client.Transfer(cctx.Context, wallet, api.TransferRequest{
			QueryID:             cctx.Uint64(queryFlag),
			Amount:              amount,
			Destination:         to,
			ResponseDestination: response,
			ForwardAmount:       forward,
			Value:               value,
		})
		if err != nil {
			return err
		}
		return s.await(cctx.Context, acc, "sender balance "+s.format(want), s.balanceBecomes(master, owner, want))
	},
}

var burnCmd = &cli.Command{
	Name:  "burn",
	Usage: "Burn tokens held by the owner",
	Flags: []cli.Flag{
		masterF, ownerF, amountF, queryF,
		&cli.StringFlag{Name: responseFlag, Usage: "receiver of excesses (default: owner)"},
		&cli.StringFlag{Name: valueFlag, Usage: "value attached to the request (default: computed)"},
	},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		owner, err := s.address(cctx, ownerFlag)
		if err != nil {
			return err
		}
		response, err := s.optionalAddress(cctx, responseFlag, owner)
		if err != nil {
			return err
		}
		amount, err := s.amount(cctx, amountFlag)
		if err != nil {
			return err
		}
		value, err := nano(cctx, valueFlag)
		if err != nil {
			return err
		}

		wallet, err := s.client.WalletAddress(cctx.Context, master, owner)
		if err != nil {
			return err
		}
		before, err := s.client.Balance(cctx.Context, master, owner)
		if err != nil {
			return err
		}
		want, err := before.Sub(amount)
		if err != nil {
			return fmt.Errorf("balance %s is below %s", s.format(before), s.format(amount))
		}
		acc, err := s.client.Burn(cctx.Context, wallet, api.BurnRequest{
			QueryID:             cctx.Uint64(queryFlag),
			Amount:              amount,
			ResponseDestination: response,
			Value:               value,
		})
		if err != nil {
			return err
		}
		return s.await(cctx.Context, acc, "balance "+s.format(want), s.balanceBecomes(master, owner, want))
	},
}

var changeAdminCmd = &cli.Command{
	Name:  "change-admin",
	Usage: "Hand a token master to a new admin",
	Flags: []cli.Flag{
		masterF, adminF, queryF,
		&cli.StringFlag{Name: "new-admin", Usage: "next admin address", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		admin, err := s.address(cctx, adminFlag)
		if err != nil {
			return err
		}
		next, err := s.address(cctx, "new-admin")
		if err != nil {
			return err
		}
		acc, err := s.client.ChangeAdmin(cctx.Context, master, api.ChangeAdminRequest{
			Admin:    admin,
			QueryID:  cctx.Uint64(queryFlag),
			NewAdmin: next,
		})
		if err != nil {
			return err
		}
		return s.await(cctx.Context, acc, "admin "+next.String(), func(ctx context.Context) (bool, error) {
			data, err := s.client.TokenData(ctx, master)
			if err != nil {
				return false, err
			}
			return data.Admin == next, nil
		})
	},
}

var changeMetadataCmd = &cli.Command{
	Name:  "change-metadata",
	Usage: "Replace the metadata of a token master",
	Flags: []cli.Flag{masterF, adminF, queryF, metaF},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		admin, err := s.address(cctx, adminFlag)
		if err != nil {
			return err
		}
		meta, err := parseMeta(cctx.StringSlice(metaFlag))
		if err != nil {
			return err
		}
		acc, err := s.client.ChangeMetadata(cctx.Context, master, api.ChangeMetadataRequest{
			Admin:    admin,
			QueryID:  cctx.Uint64(queryFlag),
			Metadata: meta,
		})
		if err != nil {
			return err
		}
		return s.await(cctx.Context, acc, "metadata replaced", func(ctx context.Context) (bool, error) {
			data, err := s.client.TokenData(ctx, master)
			if err != nil {
				return false, err
			}
			if len(data.Metadata) != len(meta) {
				return false, nil
			}
			for k, v := range meta {
				if data.Metadata[metadata.Key(k)] != v {
					return false, nil
				}
			}
			return true, nil
		})
	},
}

var withdrawCmd = &cli.Command{
	Name:  "withdraw",
	Usage: "Return the spare funds of the owner's wallet",
	Flags: []cli.Flag{masterF, ownerF, queryF},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		owner, err := s.address(cctx, ownerFlag)
		if err != nil {
			return err
		}
		wallet, err := s.client.WalletAddress(cctx.Context, master, owner)
		if err != nil {
			return err
		}
		acc, err := s.client.Withdraw(cctx.Context, wallet, cctx.Uint64(queryFlag))
		if err != nil {
			return err
		}
		return s.await(cctx.Context, acc, "excesses delivered to "+owner.String(), func(ctx context.Context) (bool, error) {
			txs, err := s.client.Trace(ctx, acc.TraceID)
			if api.IsNotFound(err) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			for _, tx := range txs {
				if tx.Account == owner && tx.Opcode == uint32(domain.OpExcesses) && !tx.Aborted {
					return true, nil
				}
			}
			return false, nil
		})
	},
}

var tokenDataCmd = &cli.Command{
	Name:  "token-data",
	Usage: "Show the token record of a master",
	Flags: []cli.Flag{masterF},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		data, err := s.client.TokenData(cctx.Context, master)
		if err != nil {
			return err
		}
		return s.printJSON(data)
	},
}

var walletDataCmd = &cli.Command{
	Name:  "wallet-data",
	Usage: "Show the wallet of an owner",
	Flags: []cli.Flag{masterF, ownerF},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		owner, err := s.address(cctx, ownerFlag)
		if err != nil {
			return err
		}
		wallet, err := s.client.WalletAddress(cctx.Context, master, owner)
		if err != nil {
			return err
		}
		data, err := s.client.WalletData(cctx.Context, wallet)
		if err != nil {
			return err
		}
		return s.printJSON(data)
	},
}

var walletAddressCmd = &cli.Command{
	Name:  "wallet-address",
	Usage: "Print the wallet address of an owner",
	Flags: []cli.Flag{masterF, ownerF},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		owner, err := s.address(cctx, ownerFlag)
		if err != nil {
			return err
		}
		wallet, err := s.client.WalletAddress(cctx.Context, master, owner)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, wallet)
		return nil
	},
}

var reportCmd = &cli.Command{
	Name:  "report",
	Usage: "Show the holder report of a master",
	Flags: []cli.Flag{
		masterF,
		&cli.StringFlag{Name: "format", Usage: "json, md or csv", Value: "md"},
	},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		master, err := s.address(cctx, masterFlag)
		if err != nil {
			return err
		}
		if format := cctx.String("format"); format != "json" {
			out, err := s.client.RenderedReport(cctx.Context, master, format)
			if err != nil {
				return err
			}
			fmt.Fprint(s.out, out)
			return nil
		}
		rep, err := s.client.Report(cctx.Context, master)
		if err != nil {
			return err
		}
		return s.printJSON(rep)
	},
}

var traceCmd = &cli.Command{
	Name:      "trace",
	Usage:     "Show the transactions of a trace",
	ArgsUsage: "<trace-id>",
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		id := cctx.Args().First()
		if id == "" {
			return fmt.Errorf("trace id is required")
		}
		txs, err := s.client.Trace(cctx.Context, id)
		if err != nil {
			return err
		}
		return s.printJSON(txs)
	},
}

var watchCmd = &cli.Command{
	Name:  "watch",
	Usage: "Stream processed transactions",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "trace", Usage: "only this trace"},
		&cli.StringFlag{Name: "account", Usage: "only transactions at or from this account"},
	},
	Action: func(cctx *cli.Context) error {
		s, err := newSession(cctx)
		if err != nil {
			return err
		}
		filter := api.Filter{TraceID: cctx.String("trace")}
		if filter.Account, err = s.optionalAddress(cctx, "account", domain.NoneAddress); err != nil {
			return err
		}
		feed, err := s.client.Watch(cctx.Context, filter)
		if err != nil {
			return err
		}
		for tx := range feed {
			status := "ok"
			if tx.Aborted {
				status = fmt.Sprintf("exit %d", tx.ExitCode)
			}
			fmt.Fprintf(s.out, "%s lt=%d %-20s %s <- %s value=%s %s\n",
				tx.TraceID, tx.LT, tx.Op, tx.Account, tx.Sender, tx.Value.Format(domain.NanoDecimals), status)
		}
		return nil
	},
}
