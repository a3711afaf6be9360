package wallet

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Roles carried in bearer tokens and stored on the user row
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ErrEmptyUsername = errors.New("username cannot be empty")

// User is a wallet holder. Balance is a cache of the success transaction log and
// is only written by the ledger engine.
type User struct {
	ID        uuid.UUID       `json:"id"`
	Username  string          `json:"username"`
	Role      string          `json:"role"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewUser creates a wallet with a zero balance
func NewUser(username, role string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	if role != RoleAdmin {
		role = RoleUser
	}

	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Username:  username,
		Role:      role,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
