package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Documents() DocumentStore
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// DirectTx runs fn against store without a transaction. It serves backends
// whose individual writes are already atomic, such as the in-memory store.
func DirectTx(store DocumentStore) TxRunner {
	return directTx{repos: directRepos{store: store}}
}

type directTx struct {
	repos directRepos
}

func (d directTx) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(d.repos)
}

type directRepos struct {
	store DocumentStore
}

func (r directRepos) Documents() DocumentStore {
	return r.store
}
