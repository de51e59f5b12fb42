package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// TraceSink receives every transaction once it is final.
type TraceSink interface {
	Record(ctx context.Context, tx *domain.Transaction) error
}

// TraceSinkFunc adapts a function to TraceSink.
type TraceSinkFunc func(ctx context.Context, tx *domain.Transaction) error

// Record calls f.
func (f TraceSinkFunc) Record(ctx context.Context, tx *domain.Transaction) error {
	return f(ctx, tx)
}

// StoreSink persists transactions to a TransactionStore.
func StoreSink(store storage.TransactionStore) TraceSink {
	return TraceSinkFunc(func(ctx context.Context, tx *domain.Transaction) error {
		if err := store.Insert(ctx, tx); err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.MessageID, err)
		}
		return nil
	})
}

// fanout records to every sink and reports all failures together.
type fanout []TraceSink

func (f fanout) Record(ctx context.Context, tx *domain.Transaction) error {
	var result *multierror.Error
	for _, s := range f {
		if err := s.Record(ctx, tx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Observer receives processing statistics.
type Observer interface {
	TransactionProcessed(tx *domain.Transaction, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) TransactionProcessed(*domain.Transaction, time.Duration) {}
