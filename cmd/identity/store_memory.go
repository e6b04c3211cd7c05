package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]User
	byEmail  map[string]string
	byPhone  map[string]string
	external map[string]string // provider + "\x00" + account id -> user id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]User),
		byEmail:  make(map[string]string),
		byPhone:  make(map[string]string),
		external: make(map[string]string),
	}
}

func phoneKey(countryCode, phone string) string {
	return NormalizeCountryCode(countryCode) + " " + NormalizePhone(phone)
}

func externalKey(provider, accountID string) string {
	return NormalizeProvider(provider) + "\x00" + strings.TrimSpace(accountID)
}

func (s *MemoryStore) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := normalizedCreate(op, in)
	if err != nil {
		return User{}, err
	}

	id, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[in.Email]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	var pk string
	if in.Phone != nil {
		pk = phoneKey(*in.CountryCode, *in.Phone)
		if _, ok := s.byPhone[pk]; ok {
			return User{}, ConflictError{Op: op, Field: "phone"}
		}
	}

	u := User{
		ID:            id,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Email:         in.Email,
		CountryCode:   in.CountryCode,
		Phone:         in.Phone,
		PasswordHash:  in.PasswordHash,
		EmailVerified: in.EmailVerified,
		PhoneVerified: in.PhoneVerified,
		CreatedAt:     in.Now,
		UpdatedAt:     in.Now,
	}
	s.users[id] = u
	s.byEmail[in.Email] = id
	if pk != "" {
		s.byPhone[pk] = id
	}
	return u, nil
}

func (s *MemoryStore) GetByID(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.TrimSpace(userID)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByID", Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (User, error) {
	return s.lookup("identity.GetByEmail", s.byEmail, NormalizeEmail(email))
}

func (s *MemoryStore) GetByPhone(_ context.Context, countryCode, phone string) (User, error) {
	return s.lookup("identity.GetByPhone", s.byPhone, phoneKey(countryCode, phone))
}

func (s *MemoryStore) GetByExternal(_ context.Context, provider, accountID string) (User, error) {
	return s.lookup("identity.GetByExternal", s.external, externalKey(provider, accountID))
}

func (s *MemoryStore) lookup(op string, index map[string]string, key string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.users[id], nil
}

func (s *MemoryStore) LinkExternal(_ context.Context, userID, provider, accountID string, _ time.Time) error {
	const op = "identity.LinkExternal"

	if NormalizeProvider(provider) == "" || strings.TrimSpace(accountID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "provider and account id are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	key := externalKey(provider, accountID)
	if owner, ok := s.external[key]; ok {
		if owner == userID {
			return nil
		}
		return ConflictError{Op: op, Field: "external_account"}
	}
	s.external[key] = userID
	return nil
}

func (s *MemoryStore) MarkPhoneVerified(_ context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: "identity.MarkPhoneVerified", Resource: "user"}
	}
	u.PhoneVerified = true
	u.UpdatedAt = now
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) SetPasswordHash(_ context.Context, userID, hash string, now time.Time) error {
	if strings.TrimSpace(hash) == "" {
		return OpError{Op: "identity.SetPasswordHash", Kind: ErrInvalidInput, Msg: "empty hash"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: "identity.SetPasswordHash", Resource: "user"}
	}
	u.PasswordHash = &hash
	u.UpdatedAt = now
	s.users[userID] = u
	return nil
}
