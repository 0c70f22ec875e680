package service

import (
	"context"
	"strings"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/model"

	"github.com/google/uuid"
)

const maxTokenLength = 4096

// TokenStore is the persistence side of the device registry. Add and remove
// must be atomic merges at the store level.
type TokenStore interface {
	AddToken(ctx context.Context, userID uuid.UUID, token string) error
	RemoveToken(ctx context.Context, userID uuid.UUID, token string) error
	ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// DeviceRegistry keeps the set of push tokens of every user.
type DeviceRegistry struct {
	store TokenStore
}

func NewDeviceRegistry(store TokenStore) *DeviceRegistry {
	return &DeviceRegistry{store: store}
}

// Add registers token for userID. Adding a token that is already present succeeds.
func (r *DeviceRegistry) Add(ctx context.Context, userID uuid.UUID, token string) error {
	if err := validateToken("registry.add", userID, token); err != nil {
		return err
	}
	if err := r.store.AddToken(ctx, userID, token); err != nil {
		return apperror.StoreFailure("registry.add", err)
	}
	return nil
}

// Remove drops token from userID's set. Removing an absent token succeeds.
func (r *DeviceRegistry) Remove(ctx context.Context, userID uuid.UUID, token string) error {
	if err := validateToken("registry.remove", userID, token); err != nil {
		return err
	}
	if err := r.store.RemoveToken(ctx, userID, token); err != nil {
		return apperror.StoreFailure("registry.remove", err)
	}
	return nil
}

// ListTokens returns the current token set, empty for unknown users.
func (r *DeviceRegistry) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if userID == uuid.Nil {
		return nil, apperror.InvalidArgument("registry.list", "user id is required")
	}
	tokens, err := r.store.ListTokens(ctx, userID)
	if err != nil {
		return nil, apperror.StoreFailure("registry.list", err)
	}
	if tokens == nil {
		tokens = []string{}
	}
	return tokens, nil
}

// RegisterDeviceToken adds a token to the caller's own set.
func (r *DeviceRegistry) RegisterDeviceToken(ctx context.Context, caller model.Caller, token string) error {
	if !caller.Authenticated() {
		return apperror.Unauthenticated("registry.register", "missing caller identity")
	}
	return r.Add(ctx, caller.UserID, token)
}

// UnregisterDeviceToken removes a token from the caller's own set.
func (r *DeviceRegistry) UnregisterDeviceToken(ctx context.Context, caller model.Caller, token string) error {
	if !caller.Authenticated() {
		return apperror.Unauthenticated("registry.unregister", "missing caller identity")
	}
	return r.Remove(ctx, caller.UserID, token)
}

func validateToken(op string, userID uuid.UUID, token string) error {
	if userID == uuid.Nil {
		return apperror.InvalidArgument(op, "user id is required")
	}
	if strings.TrimSpace(token) == "" {
		return apperror.InvalidArgument(op, "token is required")
	}
	if len(token) > maxTokenLength {
		return apperror.InvalidArgument(op, "token is too long")
	}
	return nil
}
