package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/keyring"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/observable"
)

// KeyStore persists the guest and account ids. Getters return
// keyring.ErrNotFound when nothing is stored.
type KeyStore interface {
	GetGuestID() (string, error)
	SetGuestID(id string) error
	DeleteGuestID() error
	GetAuthID() (string, error)
	SetAuthID(id string) error
	DeleteAuthID() error
}

type osKeyStore struct{}

// OSKeyStore stores ids in the OS keyring.
func OSKeyStore() KeyStore { return osKeyStore{} }

func (osKeyStore) GetGuestID() (string, error) { return keyring.GetGuestID() }
func (osKeyStore) SetGuestID(id string) error  { return keyring.SetGuestID(id) }
func (osKeyStore) DeleteGuestID() error        { return keyring.DeleteGuestID() }
func (osKeyStore) GetAuthID() (string, error)  { return keyring.GetAuthID() }
func (osKeyStore) SetAuthID(id string) error   { return keyring.SetAuthID(id) }
func (osKeyStore) DeleteAuthID() error         { return keyring.DeleteAuthID() }

// Identity is the owner every operation runs as.
type Identity struct {
	UserID string
	Guest  bool
}

// Manager resolves the current identity and runs the guest migration on sign-in.
type Manager struct {
	mu       sync.Mutex
	keys     KeyStore
	migrator *Migrator
	backup   func() (string, error)
	current  *observable.Store[Identity]
}

// NewManager creates a manager. backup, when set, runs before a migration.
func NewManager(keys KeyStore, migrator *Migrator, backup func() (string, error)) *Manager {
	return &Manager{keys: keys, migrator: migrator, backup: backup, current: observable.New(Identity{})}
}

// IsGuestID reports whether id was generated locally for a guest.
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, constants.GuestIDPrefix)
}

// Current returns the signed-in account, or the guest identity, creating
// and storing a guest id on first use.
func (m *Manager) Current() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.resolve()
	if err != nil {
		return Identity{}, err
	}
	m.current.Set(id)
	return id, nil
}

// resolve reads the stored identity. Caller holds m.mu.
func (m *Manager) resolve() (Identity, error) {
	authID, err := m.keys.GetAuthID()
	switch {
	case err == nil:
		return Identity{UserID: authID}, nil
	case !errors.Is(err, keyring.ErrNotFound):
		return Identity{}, err
	}

	guestID, err := m.keys.GetGuestID()
	switch {
	case err == nil:
		return Identity{UserID: guestID, Guest: true}, nil
	case !errors.Is(err, keyring.ErrNotFound):
		return Identity{}, err
	}

	guestID = constants.GuestIDPrefix + uuid.NewString()
	if err := m.keys.SetGuestID(guestID); err != nil {
		return Identity{}, err
	}
	logger.Info("Created guest identity", "guest", guestID)
	return Identity{UserID: guestID, Guest: true}, nil
}

// SignIn switches to authID. When a guest id is stored its data is migrated
// first; the guest id is discarded only after the migration succeeded, so a
// failed sign-in retries the migration next time.
func (m *Manager) SignIn(ctx context.Context, authID string) error {
	authID = strings.TrimSpace(authID)
	if authID == "" {
		return fmt.Errorf("account id cannot be empty")
	}
	if IsGuestID(authID) {
		return fmt.Errorf("account id %q uses the reserved guest prefix", authID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	guestID, err := m.keys.GetGuestID()
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	if err == nil && guestID != authID {
		if m.backup != nil {
			if path, err := m.backup(); err != nil {
				logger.Warn("Pre-migration backup failed", "error", err)
			} else {
				logger.Info("Created pre-migration backup", "path", path)
			}
		}
		if m.migrator != nil {
			if err := m.migrator.Migrate(ctx, guestID, authID); err != nil {
				return err
			}
		}
		if err := m.keys.DeleteGuestID(); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
	}

	if err := m.keys.SetAuthID(authID); err != nil {
		return err
	}
	m.current.Set(Identity{UserID: authID})
	return nil
}

// SignOut forgets the account. The next Current call starts a new guest.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.keys.DeleteAuthID(); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	id, err := m.resolve()
	if err != nil {
		return err
	}
	m.current.Set(id)
	return nil
}

// Subscribe calls fn with every identity change.
func (m *Manager) Subscribe(fn func(Identity)) (unsubscribe func()) {
	return m.current.Subscribe(fn)
}
