package services

import (
	"chainwatch/internal/domain"
	"chainwatch/internal/ports"
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

const SessionKey = "chainwatch_simulated_user"

// SessionService keeps the single simulated login record. There is no
// authentication: any well-formed email may sign in as any role.
type SessionService struct {
	kv ports.KeyValueStore
}

func NewSessionService(kv ports.KeyValueStore) *SessionService {
	return &SessionService{kv: kv}
}

func (s *SessionService) Login(ctx context.Context, email string, role string) (domain.User, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.User{}, domain.NewValidationError("email", "invalid email address")
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return domain.User{}, &domain.ValidationError{Field: "role", Message: err.Error(), Err: err}
	}

	name, _, _ := strings.Cut(email, "@")
	if name == "" {
		name = "User"
	}
	u := domain.User{ID: uuid.NewString(), Email: email, Role: r, Name: name}

	b, err := json.Marshal(u)
	if err != nil {
		return domain.User{}, fmt.Errorf("login: encode user: %w", err)
	}
	if err := s.kv.Set(ctx, SessionKey, string(b)); err != nil {
		return domain.User{}, fmt.Errorf("login: save session: %w", err)
	}
	return u, nil
}

// Current returns the signed-in user; ok is false when nobody is signed in.
func (s *SessionService) Current(ctx context.Context) (domain.User, bool, error) {
	raw, ok, err := s.kv.Get(ctx, SessionKey)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("current user: %w", err)
	}
	if !ok {
		return domain.User{}, false, nil
	}

	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return domain.User{}, false, fmt.Errorf("current user: decode session: %w", err)
	}
	return u, true, nil
}

func (s *SessionService) Logout(ctx context.Context) error {
	if err := s.kv.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
