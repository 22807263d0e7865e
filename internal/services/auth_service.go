package services

import (
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Clinician is the single configured staff account that can read archived
// submissions.
type Clinician struct {
	Email    string
	PassHash []byte
}

// NewClinician hashes password. An empty email or password yields nil, which
// disables login.
func NewClinician(email, password string) (*Clinician, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Clinician{Email: email, PassHash: hash}, nil
}

type TokenSigner func(subject string, ttl time.Duration) (string, error)

type AuthService struct {
	clinician *Clinician
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthService(clinician *Clinician, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{clinician: clinician, signToken: signer, tokenTTL: ttl}
}

func (s *AuthService) Enabled() bool { return s != nil && s.clinician != nil && s.signToken != nil }

func (s *AuthService) Login(email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if !s.Enabled() {
		return nil, NewUnavailableError("clinician login is not configured")
	}
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(email)), []byte(strings.ToLower(s.clinician.Email))) == 1
	// always compare the hash so both failure paths cost the same
	passErr := bcrypt.CompareHashAndPassword(s.clinician.PassHash, []byte(password))
	if !emailOK || passErr != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	token, err := s.signToken(s.clinician.Email, s.tokenTTL)
	if err != nil {
		return nil, NewInternalError("could not issue token", err)
	}
	return &AuthResult{Token: token, ExpiresAt: time.Now().Add(s.tokenTTL).UTC()}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
