package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// rolesKeyPrefix namespaces role membership sets on the shared Redis
// instance, one set per role.
const rolesKeyPrefix = "redemption:roles:"

var (
	// ErrInvalidRole is returned when a role outside the managed set is used.
	ErrInvalidRole = errors.New("invalid role")
	// ErrEmptyHolderID is returned when a role operation targets an empty holder.
	ErrEmptyHolderID = errors.New("holder id cannot be empty")
)

// RoleDirectory stores role membership in Redis sets shared by every gateway
// instance, implementing token.RoleDirectory. The directory owns membership
// state; the service layer only gates who may request changes.
type RoleDirectory struct {
	conn *Client
}

var _ token.RoleDirectory = (*RoleDirectory)(nil)

// NewRoleDirectory creates a role directory over the given connection.
func NewRoleDirectory(conn *Client) (*RoleDirectory, error) {
	if conn == nil {
		return nil, ErrNilClient
	}

	return &RoleDirectory{conn: conn}, nil
}

// HasRole reports whether the holder is a member of the role set.
func (d *RoleDirectory) HasRole(ctx context.Context, role token.Role, holderID string) (bool, error) {
	if err := d.validate(role, holderID); err != nil {
		return false, err
	}

	rdb, err := d.conn.GetClient(ctx)
	if err != nil {
		return false, fmt.Errorf("role directory: %w", err)
	}

	member, err := rdb.SIsMember(ctx, roleKey(role), holderID).Result()
	if err != nil {
		return false, fmt.Errorf("check role %s: %w", role, err)
	}

	return member, nil
}

// Grant adds the holder to the role set. Granting an existing member is a
// no-op.
func (d *RoleDirectory) Grant(ctx context.Context, role token.Role, holderID string) error {
	if err := d.validate(role, holderID); err != nil {
		return err
	}

	rdb, err := d.conn.GetClient(ctx)
	if err != nil {
		return fmt.Errorf("role directory: %w", err)
	}

	if err := rdb.SAdd(ctx, roleKey(role), holderID).Err(); err != nil {
		return fmt.Errorf("grant role %s: %w", role, err)
	}

	return nil
}

// Revoke removes the holder from the role set. Revoking a non-member is a
// no-op.
func (d *RoleDirectory) Revoke(ctx context.Context, role token.Role, holderID string) error {
	if err := d.validate(role, holderID); err != nil {
		return err
	}

	rdb, err := d.conn.GetClient(ctx)
	if err != nil {
		return fmt.Errorf("role directory: %w", err)
	}

	if err := rdb.SRem(ctx, roleKey(role), holderID).Err(); err != nil {
		return fmt.Errorf("revoke role %s: %w", role, err)
	}

	return nil
}

func (d *RoleDirectory) validate(role token.Role, holderID string) error {
	if d == nil || d.conn == nil {
		return ErrNilClient
	}

	if !role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role.String())
	}

	if strings.TrimSpace(holderID) == "" {
		return ErrEmptyHolderID
	}

	return nil
}

func roleKey(role token.Role) string {
	return rolesKeyPrefix + role.String()
}
