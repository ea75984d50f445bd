package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/gainzy/api/internal/platform/firestore"
)

// UnitOfWork implements repositories.UnitOfWork on top of Firestore
// transactions. The active transaction travels on the context handed to fn,
// and every repository built on the shared base joins it automatically.
type UnitOfWork struct {
	provider *pfirestore.Provider
	opts     []pfirestore.TxOption
}

// NewUnitOfWork constructs a Firestore-backed unit of work.
func NewUnitOfWork(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work requires firestore provider")
	}
	return &UnitOfWork{provider: provider, opts: opts}, nil
}

// RunInTx executes fn inside a serializable Firestore transaction. Firestore
// requires every read in the transaction to happen before the first write.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("unit of work not initialised")
	}
	if fn == nil {
		return errors.New("unit of work: fn is required")
	}

	return u.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTx(txCtx, tx))
	}, u.opts...)
}
