package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
)

// EnvelopeKey is the data key holding the encrypted document.
const EnvelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts every saved document. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are retired keys still accepted on load, newest first.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.RunStore
	active cipher.AEAD
	// open holds the active key first, then the fallbacks.
	open []cipher.AEAD
}

// NewEncryptionMiddleware seals run documents with AES-256-GCM. The run id is
// bound as additional data, so an envelope copied to another run fails to open.
// Only the run status and timestamp stay readable in the stored envelope.
// It panics on a key of the wrong size.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	active := mustAEAD(config.ActiveKey)
	open := []cipher.AEAD{active}
	for _, k := range config.FallbackKeys {
		open = append(open, mustAEAD(k))
	}
	return func(next ports.RunStore) ports.RunStore {
		return &encryptionMiddleware{next: next, active: active, open: open}
	}
}

func mustAEAD(key []byte) cipher.AEAD {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(fmt.Sprintf("invalid encryption key: %v", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(fmt.Sprintf("invalid encryption key: %v", err))
	}
	return gcm
}

func (m *encryptionMiddleware) Save(ctx context.Context, runID string, state *domain.RunState) error {
	plain, err := domain.MarshalDocument(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	nonce := make([]byte, m.active.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to encrypt run state: %w", err)
	}
	sealed := m.active.Seal(nonce, nonce, plain, []byte(runID))

	blob, err := json.Marshal(base64.StdEncoding.EncodeToString(sealed))
	if err != nil {
		return err
	}

	envelope := &domain.RunState{
		Version: state.Version,
		RunID:   state.RunID,
		Data: domain.RunData{
			Run: domain.RunRecord{
				Status:    state.Data.Run.Status,
				UpdatedAt: state.Data.Run.UpdatedAt,
			},
			Extra: map[string]json.RawMessage{EnvelopeKey: blob},
		},
	}
	return m.next.Save(ctx, runID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, runID string) (*domain.RunState, error) {
	envelope, err := m.next.Load(ctx, runID)
	if err != nil {
		return nil, err
	}

	raw, ok := envelope.Data.Extra[EnvelopeKey]
	if !ok {
		// A configured key means every document must be encrypted.
		return nil, corrupt(runID, errors.New("missing encrypted data envelope"))
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, corrupt(runID, fmt.Errorf("invalid encrypted envelope: %w", err))
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, corrupt(runID, fmt.Errorf("failed to decode ciphertext base64: %w", err))
	}

	if len(sealed) < m.active.NonceSize()+m.active.Overhead() {
		return nil, corrupt(runID, errors.New("ciphertext too short"))
	}

	// No key opening the envelope is not corruption: the document may be
	// under a retired key and must not be overwritten as a fresh run.
	plain, err := m.unseal(sealed, []byte(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt run state: %w", err)
	}

	state, err := domain.UnmarshalDocument(plain)
	if err != nil {
		return nil, corrupt(runID, fmt.Errorf("failed to unmarshal decrypted run state: %w", err))
	}
	return state, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// corrupt reports an unreadable envelope the same way backends report an unreadable document.
func corrupt(runID string, cause error) error {
	return &domain.Error{
		Kind:    domain.KindNotFound,
		Op:      "store.load",
		Message: domain.ErrRunNotFound.Message,
		Details: map[string]any{"runId": runID, "corrupt": true},
		Err:     cause,
	}
}

func (m *encryptionMiddleware) unseal(sealed, additional []byte) ([]byte, error) {
	for _, aead := range m.open {
		n := aead.NonceSize()
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], additional); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}
