package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// TransactionStore implements storage.TransactionStore using ClickHouse.
type TransactionStore struct {
	conn *Conn
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(conn *Conn) *TransactionStore {
	return &TransactionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	message_id, trace_id, lt, account, sender, opcode, query_id, value,
	bounce, bounced, external, deployed, aborted, exit_code, out_messages,
	compute_fee, forward_fees, created_at_ms
`

// Insert adds a new transaction. Returns ErrDuplicateKey if message_id exists.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.MessageID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, tx.MessageID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO transactions (`+transactionColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		tx.MessageID, tx.TraceID, tx.LT, tx.Account.String(), tx.Sender.String(),
		tx.Opcode, tx.QueryID, tx.Value.Big(),
		tx.Bounce, tx.Bounced, tx.External, tx.Deployed, tx.Aborted,
		int32(tx.ExitCode), uint32(tx.OutMessages),
		tx.ComputeFee.Big(), tx.ForwardFees.Big(), tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTrace retrieves all transactions of a trace, ordered by lt ASC.
func (s *TransactionStore) GetByTrace(ctx context.Context, traceID string) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE trace_id = ?
		ORDER BY lt ASC
	`

	rows, err := s.conn.Query(ctx, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("query by trace: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetByAccount retrieves the latest transactions of an account, ordered by lt DESC.
func (s *TransactionStore) GetByAccount(ctx context.Context, addr domain.Address, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account = ?
		ORDER BY lt DESC
	`
	args := []any{addr.String()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ExitCodeCounts returns the number of processed messages per exit code,
// read from the daily rollup.
func (s *TransactionStore) ExitCodeCounts(ctx context.Context) (map[domain.ExitCode]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT exit_code, sum(messages)
		FROM exit_codes_daily
		GROUP BY exit_code
	`)
	if err != nil {
		return nil, fmt.Errorf("query exit codes: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ExitCode]uint64)
	for rows.Next() {
		var code int32
		var n uint64
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan exit code row: %w", err)
		}
		counts[domain.ExitCode(code)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit code rows: %w", err)
	}
	return counts, nil
}

// exists checks if a transaction for messageID is stored.
func (s *TransactionStore) exists(ctx context.Context, messageID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM transactions WHERE message_id = ?`, messageID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used by the scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTransactions scans multiple rows.
func scanTransactions(rows chRows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction

	for rows.Next() {
		var (
			tx                  domain.Transaction
			account, sender     string
			value, compute, fwd big.Int
			exitCode            int32
			outMessages         uint32
		)

		err := rows.Scan(
			&tx.MessageID, &tx.TraceID, &tx.LT, &account, &sender,
			&tx.Opcode, &tx.QueryID, &value,
			&tx.Bounce, &tx.Bounced, &tx.External, &tx.Deployed, &tx.Aborted,
			&exitCode, &outMessages,
			&compute, &fwd, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}

		if tx.Account, err = domain.ParseAddress(account); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		if tx.Sender, err = domain.ParseAddress(sender); err != nil {
			return nil, fmt.Errorf("decode sender: %w", err)
		}
		if tx.Value, err = domain.CoinsFromBig(&value); err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
		if tx.ComputeFee, err = domain.CoinsFromBig(&compute); err != nil {
			return nil, fmt.Errorf("decode compute fee: %w", err)
		}
		if tx.ForwardFees, err = domain.CoinsFromBig(&fwd); err != nil {
			return nil, fmt.Errorf("decode forward fees: %w", err)
		}
		tx.ExitCode = domain.ExitCode(exitCode)
		tx.OutMessages = int(outMessages)
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return txs, nil
}
