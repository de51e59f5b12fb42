package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"jetton-ledger/internal/api"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
)

// ErrNotObserved is returned when polling runs out of attempts.
var ErrNotObserved = errors.New("expected state not observed")

// session carries the global flags of one invocation.
type session struct {
	client   *api.Client
	decimals uint8
	attempts int
	interval time.Duration
	noWait   bool
	out      io.Writer
}

func newSession(cctx *cli.Context) (*session, error) {
	decimals := cctx.Uint(decimalsFlag)
	if decimals > 77 {
		return nil, fmt.Errorf("--%s: %d is out of range", decimalsFlag, decimals)
	}
	attempts := cctx.Int(attemptsFlag)
	if attempts < 1 {
		attempts = 1
	}
	return &session{
		client:   api.NewClient(cctx.String(endpointFlag), api.WithToken(cctx.String(tokenFlag))),
		decimals: uint8(decimals),
		attempts: attempts,
		interval: cctx.Duration(intervalFlag),
		noWait:   cctx.Bool(noWaitFlag),
		out:      cctx.App.Writer,
	}, nil
}

// parseAddress accepts a raw or friendly address, or "@seed" for the
// holder derived from seed.
func parseAddress(s string) (domain.Address, error) {
	if seed, ok := strings.CutPrefix(s, "@"); ok {
		if seed == "" {
			return domain.NoneAddress, fmt.Errorf("%w: empty holder seed", domain.ErrInvalidAddress)
		}
		return idhash.HolderAddress(domain.BasechainID, seed), nil
	}
	return domain.ParseAddress(s)
}

func (s *session) address(cctx *cli.Context, flag string) (domain.Address, error) {
	v := cctx.String(flag)
	if v == "" {
		return domain.NoneAddress, fmt.Errorf("--%s is required", flag)
	}
	addr, err := parseAddress(v)
	if err != nil {
		return domain.NoneAddress, fmt.Errorf("--%s: %w", flag, err)
	}
	return addr, nil
}

// optionalAddress returns def when flag is unset.
func (s *session) optionalAddress(cctx *cli.Context, flag string, def domain.Address) (domain.Address, error) {
	if cctx.String(flag) == "" {
		return def, nil
	}
	return s.address(cctx, flag)
}

// amount parses a token amount scaled by --decimals.
func (s *session) amount(cctx *cli.Context, flag string) (domain.Coins, error) {
	v := cctx.String(flag)
	if v == "" {
		return domain.ZeroCoins, fmt.Errorf("--%s is required", flag)
	}
	c, err := domain.ParseUnits(v, s.decimals)
	if err != nil {
		return domain.ZeroCoins, fmt.Errorf("--%s: %w", flag, err)
	}
	return c, nil
}

// nano parses an attached value, always in 9-decimal units.
func nano(cctx *cli.Context, flag string) (domain.Coins, error) {
	v := cctx.String(flag)
	if v == "" {
		return domain.ZeroCoins, nil
	}
	c, err := domain.ParseUnits(v, domain.NanoDecimals)
	if err != nil {
		return domain.ZeroCoins, fmt.Errorf("--%s: %w", flag, err)
	}
	return c, nil
}

func (s *session) format(c domain.Coins) string {
	return c.Format(s.decimals)
}

func (s *session) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// await polls observed until it reports true. Between polls the trace of
// the accepted request is checked; an aborted transaction ends the wait
// with its exit code.
func (s *session) await(ctx context.Context, acc *api.Accepted, what string, observed func(context.Context) (bool, error)) error {
	if s.noWait {
		fmt.Fprintf(s.out, "accepted trace %s\n", acc.TraceID)
		return nil
	}
	for i := 0; i < s.attempts; i++ {
		ok, err := observed(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := s.checkTrace(ctx, acc.TraceID); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
	return fmt.Errorf("%w after %d attempts: %s (trace %s)", ErrNotObserved, s.attempts, what, acc.TraceID)
}

func (s *session) checkTrace(ctx context.Context, traceID string) error {
	txs, err := s.client.Trace(ctx, traceID)
	if api.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if tx.Aborted {
			return fmt.Errorf("%s at %s aborted with exit code %d (trace %s)", tx.Op, tx.Account, tx.ExitCode, traceID)
		}
	}
	return nil
}

// balanceBecomes waits for owner's balance of master to equal want.
func (s *session) balanceBecomes(master, owner domain.Address, want domain.Coins) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		got, err := s.client.Balance(ctx, master, owner)
		if err != nil {
			return false, err
		}
		return got.Cmp(want) == 0, nil
	}
}
