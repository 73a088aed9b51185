package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Register creates the user and their wallet atomically.
	Register(ctx context.Context, req RegisterRequest) (*Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
}

type RegisterRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Response struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	WalletID  string    `json:"wallet_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidID    = errors.New("invalid_id")
	ErrEmailTaken   = errors.New("email_taken")
	ErrNotFound     = errors.New("not_found")
)
