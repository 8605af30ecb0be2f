package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/adapters/file"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Locker = (*file.Locker)(nil)

func TestLocker_ExclusiveWithBoundedRetries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	locker := file.NewLocker(dir, file.WithRetries(2), file.WithRetryDelay(5*time.Millisecond))

	unlock, err := locker.Lock(ctx, "store", 0)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "store", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "unlock should be idempotent")

	unlock2, err := locker.Lock(ctx, "store", 0)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestLocker_ContextCanceled(t *testing.T) {
	dir := t.TempDir()
	locker := file.NewLocker(dir, file.WithRetries(1000), file.WithRetryDelay(10*time.Millisecond))

	unlock, err := locker.Lock(context.Background(), "store", 0)
	require.NoError(t, err)
	defer func() { _ = unlock(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "store", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
