// Package vault owns the symmetric key of each domain. Key bytes never leave
// the package: callers seal and open through it and only ever see a KeyHandle.
package vault

import (
	"context"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/pkg/cache"
	"github.com/spounge-ai/medvault/pkg/crypto"
	"github.com/spounge-ai/medvault/pkg/memory"
)

// RecordPurger deletes every stored record that belongs to a domain.
type RecordPurger interface {
	PurgeDomain(ctx context.Context, d domain.Domain) (int, error)
}

type Options struct {
	// KeyBackends are tried in order on read and on write. Put the secure tier
	// first and the file tier last.
	KeyBackends []domain.Backend
	Wrapper     domain.KeyWrapper
	// Validity is the lifetime of a domain key. Zero or missing means no expiry.
	Validity map[domain.Domain]time.Duration
	Audit    domain.AuditSink
	Clock    func() time.Time
	Logger   *slog.Logger
}

type activeKey struct {
	handle domain.KeyHandle
	aead   cipher.AEAD
}

type Vault struct {
	backends []domain.Backend
	wrapper  domain.KeyWrapper
	validity map[domain.Domain]time.Duration
	audit    domain.AuditSink
	now      func() time.Time
	logger   *slog.Logger
	keyPool  *memory.SecureKeyPool

	mu     sync.Mutex
	keys   cache.Store[domain.Domain, *activeKey]
	purger RecordPurger
}

func New(opts Options) (*Vault, error) {
	if len(opts.KeyBackends) == 0 {
		return nil, errors.New("vault needs at least one key backend")
	}
	if opts.Wrapper == nil {
		return nil, errors.New("vault needs a key wrapper")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	validity := make(map[domain.Domain]time.Duration, len(opts.Validity))
	for d, v := range opts.Validity {
		validity[d] = v
	}

	return &Vault{
		backends: opts.KeyBackends,
		wrapper:  opts.Wrapper,
		validity: validity,
		audit:    opts.Audit,
		now:      opts.Clock,
		logger:   opts.Logger,
		keyPool:  memory.NewSecureKeyPool(crypto.KeySize),
		keys:     cache.New[domain.Domain, *activeKey](),
	}, nil
}

// SetPurger registers the record store so Reset can clear a domain's records.
func (v *Vault) SetPurger(p RecordPurger) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.purger = p
}

func keyName(d domain.Domain) string {
	return constants.VaultKeyPrefix + d.String()
}

// Initialize loads the domain key from the first backend that holds a valid
// one, or generates and persists a fresh key. An absent key is never an error.
func (v *Vault) Initialize(ctx context.Context, d domain.Domain) (domain.KeyHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	k, err := v.initializeLocked(ctx, d)
	if err != nil {
		return domain.KeyHandle{}, err
	}
	return k.handle, nil
}

// GetKey returns the cached handle, re-initializing when it is missing or expired.
func (v *Vault) GetKey(ctx context.Context, d domain.Domain) (domain.KeyHandle, error) {
	k, err := v.active(ctx, d)
	if err != nil {
		return domain.KeyHandle{}, err
	}
	return k.handle, nil
}

func (v *Vault) active(ctx context.Context, d domain.Domain) (*activeKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if k, ok := v.keys.Get(ctx, d); ok && !k.handle.Expired(v.now()) {
		return k, nil
	}
	return v.initializeLocked(ctx, d)
}

func (v *Vault) initializeLocked(ctx context.Context, d domain.Domain) (*activeKey, error) {
	for _, b := range v.backends {
		k, err := v.load(ctx, b, d)
		if err != nil {
			if !persistence.IsNotFound(err) {
				v.logger.WarnContext(ctx, "key backend unusable, trying next", "domain", d, "backend", b.Name(), "error", err)
			}
			continue
		}
		return k, nil
	}
	return v.generateLocked(ctx, d)
}

func (v *Vault) load(ctx context.Context, b domain.Backend, d domain.Domain) (*activeKey, error) {
	data, err := b.Get(ctx, keyName(d))
	if err != nil {
		return nil, err
	}

	var sk domain.StoredKey
	if err := json.Unmarshal(data, &sk); err != nil {
		return nil, fmt.Errorf("malformed key record: %w", err)
	}
	if sk.FormatVersion != domain.StoredKeyFormatVersion || sk.Domain != d {
		return nil, fmt.Errorf("key record version %d for %q does not match", sk.FormatVersion, sk.Domain)
	}
	if sk.Wrapper != v.wrapper.Name() {
		return nil, fmt.Errorf("key record wrapped by %q, configured wrapper is %q", sk.Wrapper, v.wrapper.Name())
	}

	if v.expired(d, sk.CreatedAt) {
		v.logger.InfoContext(ctx, "domain key expired, discarding", "domain", d, "backend", b.Name(), "created_at", sk.CreatedAt)
		if err := b.Delete(ctx, keyName(d)); err != nil {
			v.logger.WarnContext(ctx, "failed to delete expired key record", "domain", d, "backend", b.Name(), "error", err)
		}
		return nil, fmt.Errorf("expired key: %w", apperrors.ErrNotFound)
	}

	raw, err := v.wrapper.Unwrap(ctx, sk.WrappedKey, d)
	if err != nil {
		return nil, err
	}
	defer memory.SecureZeroBytes(raw)

	return v.install(ctx, d, raw, sk.CreatedAt, b.Name())
}

func (v *Vault) expired(d domain.Domain, createdAt time.Time) bool {
	validity := v.validity[d]
	return validity > 0 && !v.now().Before(createdAt.Add(validity))
}

func (v *Vault) generateLocked(ctx context.Context, d domain.Domain) (*activeKey, error) {
	raw := v.keyPool.Get()
	defer v.keyPool.Put(raw)

	fresh, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrKeyUnavailable, err)
	}
	copy(raw, fresh)
	memory.SecureZeroBytes(fresh)

	wrapped, err := v.wrapper.Wrap(ctx, raw, d)
	if err != nil {
		return nil, fmt.Errorf("%w: wrap failed: %v", apperrors.ErrKeyUnavailable, err)
	}
	defer memory.SecureZeroBytes(wrapped)

	createdAt := v.now().UTC()
	data, err := json.Marshal(domain.StoredKey{
		Domain:        d,
		WrappedKey:    wrapped,
		Wrapper:       v.wrapper.Name(),
		CreatedAt:     createdAt,
		FormatVersion: domain.StoredKeyFormatVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrKeyUnavailable, err)
	}
	defer memory.SecureZeroBytes(data)

	var source string
	var lastErr error
	for _, b := range v.backends {
		if err := b.Put(ctx, keyName(d), data); err != nil {
			v.logger.WarnContext(ctx, "key backend rejected write, trying next", "domain", d, "backend", b.Name(), "error", err)
			lastErr = err
			continue
		}
		source = b.Name()
		break
	}
	if source == "" {
		return nil, fmt.Errorf("%w: no backend accepted the key: %v", apperrors.ErrKeyUnavailable, lastErr)
	}

	k, err := v.install(ctx, d, raw, createdAt, source)
	if err != nil {
		return nil, err
	}

	v.logger.InfoContext(ctx, "domain key generated", "domain", d, "source", source, "fingerprint", k.handle.Fingerprint)
	v.logAudit(ctx, "key_generated", d, domain.SeverityMedium, map[string]any{"source": source, "fingerprint": k.handle.Fingerprint})
	return k, nil
}

func (v *Vault) install(ctx context.Context, d domain.Domain, raw []byte, createdAt time.Time, source string) (*activeKey, error) {
	aead, err := crypto.NewAEAD(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrKeyUnavailable, err)
	}

	handle := domain.KeyHandle{
		Domain:      d,
		CreatedAt:   createdAt,
		Source:      source,
		Fingerprint: crypto.Fingerprint(raw),
	}

	ttl := cache.NoExpiration
	if validity := v.validity[d]; validity > 0 {
		expiresAt := createdAt.Add(validity)
		handle.ExpiresAt = &expiresAt
		ttl = expiresAt.Sub(v.now())
		if ttl <= 0 {
			ttl = time.Nanosecond
		}
	}

	k := &activeKey{handle: handle, aead: aead}
	v.keys.Set(ctx, d, k, ttl)
	return k, nil
}

// Seal encrypts plaintext under the domain key with a fresh nonce.
func (v *Vault) Seal(ctx context.Context, d domain.Domain, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	k, err := v.active(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = crypto.RandomBytes(k.aead.NonceSize())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrKeyUnavailable, err)
	}
	return nonce, k.aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts and authenticates ciphertext. Any authentication failure is
// reported as ErrCorruptCiphertext.
func (v *Vault) Open(ctx context.Context, d domain.Domain, nonce, ciphertext, aad []byte) ([]byte, error) {
	k, err := v.active(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(nonce) != k.aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce length %d", apperrors.ErrCorruptCiphertext, len(nonce))
	}
	plain, err := k.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, apperrors.ErrCorruptCiphertext
	}
	return plain, nil
}

// Reset destroys the domain key and every record encrypted under it, then
// generates a new key.
func (v *Vault) Reset(ctx context.Context, d domain.Domain) (domain.KeyHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.keys.Delete(ctx, d)

	purged := 0
	if v.purger != nil {
		n, err := v.purger.PurgeDomain(ctx, d)
		if err != nil {
			v.logger.WarnContext(ctx, "failed to purge domain records during reset", "domain", d, "error", err)
		}
		purged = n
	}

	for _, b := range v.backends {
		if err := b.Delete(ctx, keyName(d)); err != nil {
			v.logger.WarnContext(ctx, "failed to delete key record during reset", "domain", d, "backend", b.Name(), "error", err)
		}
	}

	v.logAudit(ctx, "key_reset", d, domain.SeverityHigh, map[string]any{"purgedRecords": purged})

	k, err := v.generateLocked(ctx, d)
	if err != nil {
		return domain.KeyHandle{}, err
	}
	return k.handle, nil
}

func (v *Vault) logAudit(ctx context.Context, action string, d domain.Domain, sev domain.Severity, details map[string]any) {
	if v.audit == nil {
		return
	}
	details["domain"] = d.String()
	v.audit.LogEntry(ctx, action, details, domain.EntryOptions{
		Severity: sev,
		Details:  details,
		Success:  true,
	})
}

// Close drops every cached key.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys.Clear(context.Background())
	v.keys.Stop()
	return nil
}
