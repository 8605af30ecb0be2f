package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/persistence/middleware"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunStoreContract(t, mw(NewMockStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := NewMockStore()
	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)

	ctx := context.Background()
	original := domain.NewRunState("run-1", "implement", time.Now().UTC())
	original.Data.Summary = &domain.Summary{BlockedReason: "secret-sauce"}

	require.NoError(t, secureStore.Save(ctx, "run-1", original))

	stored, err := underlyingStore.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, stored.Data.Summary, "summary should be hidden")
	assert.Empty(t, stored.Data.Run.Phase)
	assert.Equal(t, domain.RunRunning, stored.Data.Run.Status, "status stays visible for monitoring")
	assert.Contains(t, stored.Data.Extra, middleware.EnvelopeKey)

	loaded, err := secureStore.Load(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Data.Summary)
	assert.Equal(t, "secret-sauce", loaded.Data.Summary.BlockedReason)
	assert.Equal(t, "implement", loaded.Data.Run.Phase)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := NewMockStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	storeOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlyingStore)
	require.NoError(t, storeOld.Save(ctx, "run-1", domain.NewRunState("run-1", "plan", time.Now().UTC())))

	storeNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlyingStore)

	loaded, err := storeNew.Load(ctx, "run-1")
	require.NoError(t, err, "fallback key should decrypt")

	loaded.Data.Run.Phase = "verify"
	require.NoError(t, storeNew.Save(ctx, "run-1", loaded))

	_, err = storeOld.Load(ctx, "run-1")
	assert.Error(t, err, "old key alone cannot read documents written with the new key")
}

func TestEncryptionMiddleware_RejectsPlainDocument(t *testing.T) {
	underlyingStore := NewMockStore()
	ctx := context.Background()
	require.NoError(t, underlyingStore.Save(ctx, "run-1", domain.NewRunState("run-1", "plan", time.Now().UTC())))

	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	_, err := secureStore.Load(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestEncryptionMiddleware_CorruptEnvelopeIsNotFound(t *testing.T) {
	ctx := context.Background()
	for name, blob := range map[string]string{
		"not a string": `42`,
		"bad base64":   `"%%%not-base64%%%"`,
		"truncated":    `"AAAA"`,
	} {
		t.Run(name, func(t *testing.T) {
			underlyingStore := NewMockStore()
			doc := domain.NewRunState("run-1", "plan", time.Now().UTC())
			doc.Data.Extra = map[string]json.RawMessage{middleware.EnvelopeKey: json.RawMessage(blob)}
			require.NoError(t, underlyingStore.Save(ctx, "run-1", doc))

			secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
			_, err := secureStore.Load(ctx, "run-1")
			assert.ErrorIs(t, err, domain.ErrRunNotFound)
			assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
		})
	}
}

func TestEncryptionMiddleware_UnknownKeyStaysLoud(t *testing.T) {
	ctx := context.Background()
	underlyingStore := NewMockStore()
	writer := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	require.NoError(t, writer.Save(ctx, "run-1", domain.NewRunState("run-1", "plan", time.Now().UTC())))

	reader := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	_, err := reader.Load(ctx, "run-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRunNotFound)
}

func TestEncryptionMiddleware_EnvelopeBoundToRun(t *testing.T) {
	underlyingStore := NewMockStore()
	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	ctx := context.Background()
	require.NoError(t, secureStore.Save(ctx, "run-1", domain.NewRunState("run-1", "plan", time.Now().UTC())))

	stored, err := underlyingStore.Load(ctx, "run-1")
	require.NoError(t, err)
	require.NoError(t, underlyingStore.Save(ctx, "run-2", stored))

	_, err = secureStore.Load(ctx, "run-2")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    generateKey(t),
			FallbackKeys: [][]byte{[]byte("bad")},
		})
	}, "fallback keys are validated up front")
}
