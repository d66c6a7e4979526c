package memory

import (
	"context"
	"sync"
	"time"
)

// AuthStore is the in-process counterpart of the Mongo-backed token blacklist
// and OTP store. Entries expire lazily on read.
type AuthStore struct {
	mu    sync.Mutex
	jtis  map[string]time.Time
	codes map[string]otpEntry
}

type otpEntry struct {
	otp       string
	expiresAt time.Time
}

func NewAuthStore() *AuthStore {
	return &AuthStore{
		jtis:  make(map[string]time.Time),
		codes: make(map[string]otpEntry),
	}
}

func (s *AuthStore) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jtis[jti] = time.Now().Add(ttl)
	return nil
}

func (s *AuthStore) IsTokenBlacklisted(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.jtis[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(s.jtis, jti)
		return false, nil
	}
	return true, nil
}

func (s *AuthStore) StoreOTP(_ context.Context, email, otp string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = otpEntry{otp: otp, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *AuthStore) VerifyOTP(_ context.Context, email, otp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.codes[email]
	if !ok || e.otp != otp || time.Now().After(e.expiresAt) {
		return false, nil
	}
	delete(s.codes, email)
	return true, nil
}
