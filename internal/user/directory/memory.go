package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"auth-session/backend/internal/security"
	"auth-session/backend/internal/user/domain"
)

// DefaultRole is assigned to accounts created in the in-memory directory.
const DefaultRole = "USER"

type memoryAccount struct {
	user         domain.User
	passwordHash string
}

// MemoryDirectory is an in-process Directory for local development and tests.
// Passwords are stored as bcrypt hashes.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]*memoryAccount
	byID    map[string]*memoryAccount
	hasher  *security.Hasher
	nowF    func() time.Time
}

// NewMemoryDirectory returns an empty MemoryDirectory. hasher may be nil (bcrypt min cost).
func NewMemoryDirectory(hasher *security.Hasher) *MemoryDirectory {
	if hasher == nil {
		hasher = security.NewHasher(4)
	}
	return &MemoryDirectory{
		byEmail: make(map[string]*memoryAccount),
		byID:    make(map[string]*memoryAccount),
		hasher:  hasher,
		nowF:    time.Now,
	}
}

// CreateUser implements Directory.
func (d *MemoryDirectory) CreateUser(ctx context.Context, in domain.CreateUserInput) (*domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(in.Email)
	now := d.nowF().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[email]; ok {
		return nil, ErrConflict
	}
	acc := &memoryAccount{
		user: domain.User{
			ID:        uuid.New().String(),
			Email:     email,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Phone:     in.Phone,
			Avatar:    in.Avatar,
			BirthDate: in.DateOfBirth,
			Provider:  in.Provider,
			Role:      DefaultRole,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
	}
	d.byEmail[email] = acc
	d.byID[acc.user.ID] = acc
	u := acc.user
	return &u, nil
}

// FindByEmail implements Directory.
func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	u := acc.user
	return &u, nil
}

// FindByID implements Directory.
func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.byID[id]
	if !ok {
		return nil, nil
	}
	u := acc.user
	return &u, nil
}

// ValidateCredentials implements Directory.
func (d *MemoryDirectory) ValidateCredentials(ctx context.Context, email, password string) (bool, error) {
	d.mu.RLock()
	acc, ok := d.byEmail[domain.NormalizeEmail(email)]
	var hash string
	if ok {
		hash = acc.passwordHash
	}
	d.mu.RUnlock()
	return d.hasher.Match(hash, password), nil
}

// SetActive flips an account's active flag. Used to model deactivated accounts.
func (d *MemoryDirectory) SetActive(id string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if acc, ok := d.byID[id]; ok {
		acc.user.IsActive = active
		acc.user.UpdatedAt = d.nowF().UTC()
	}
}
