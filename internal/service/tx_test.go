package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/obsidian/internal/memstore"
)

func TestDirectTx(t *testing.T) {
	store := memstore.New()
	runner := DirectTx(store)

	called := false
	err := runner.WithTx(context.Background(), func(repos TxRepositories) error {
		called = true
		assert.Same(t, store, repos.Documents())
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = runner.WithTx(ctx, func(TxRepositories) error {
		t.Fatal("fn must not run on a canceled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
