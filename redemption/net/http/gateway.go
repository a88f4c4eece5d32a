package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/service"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// Entity types stamped on business error envelopes.
const (
	entitySystem   = "System"
	entityAccount  = "Account"
	entityDeposit  = "Deposit"
	entityWithdraw = "Withdrawal"
	entityClaim    = "Claim"
	entityRole     = "Role"
	entityMetadata = "Metadata"
)

// ErrServiceRequired indicates NewGatewayHandler was called without an
// operation layer.
var ErrServiceRequired = errors.New("gateway service is required")

// GatewayService is the slice of the operation layer the HTTP handlers
// consume. *service.Service satisfies it.
type GatewayService interface {
	Initialize(ctx context.Context, callerID, syntheticAssetID, underlyingAssetID string) (service.SystemState, error)
	SetPause(ctx context.Context, callerID string, paused bool) (service.SystemState, error)
	State(ctx context.Context) (service.SystemState, error)

	Deposit(ctx context.Context, holderID string, amount uint64) (ledger.Account, error)
	Withdraw(ctx context.Context, holderID string, amount uint64) (ledger.Account, error)
	Claim(ctx context.Context, holderID string, amount uint64) (ledger.Account, error)
	Account(ctx context.Context, holderID string) (ledger.Account, error)

	GrantRole(ctx context.Context, callerID string, role token.Role, holderID string) error
	RevokeRole(ctx context.Context, callerID string, role token.Role, holderID string) error

	UpdateMetadata(ctx context.Context, callerID, holderID string, metadata map[string]any) error
	Metadata(ctx context.Context, holderID string) (map[string]any, error)
}

// GatewayHandler exposes the redemption operations over HTTP.
type GatewayHandler struct {
	service GatewayService
	scale   int32
}

// GatewayHandlerOption configures a GatewayHandler.
type GatewayHandlerOption func(*GatewayHandler)

// WithAmountScale sets the decimal scale used to render balances. A scale
// of 2 renders 1050 base units as "10.5"; the default scale of 0 renders
// integer amounts unchanged.
func WithAmountScale(scale int32) GatewayHandlerOption {
	return func(h *GatewayHandler) {
		if scale >= 0 {
			h.scale = scale
		}
	}
}

// NewGatewayHandler creates the HTTP handler set over the operation layer.
func NewGatewayHandler(svc GatewayService, opts ...GatewayHandlerOption) (*GatewayHandler, error) {
	if svc == nil {
		return nil, ErrServiceRequired
	}

	handler := &GatewayHandler{service: svc}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler, nil
}

// Initialize handles POST /v1/system/initialize.
func (h *GatewayHandler) Initialize(c *fiber.Ctx) error {
	ctx := c.UserContext()
	caller := redemption.HolderIDFromContext(ctx)

	var req InitializeRequest
	if err := ParseBodyAndValidate(c, entitySystem, &req); err != nil {
		return RenderError(c, err, entitySystem)
	}

	state, err := h.service.Initialize(ctx, caller, req.SyntheticAssetID, req.UnderlyingAssetID)
	if err != nil {
		return RenderError(c, err, entitySystem)
	}

	return Created(c, state)
}

// SetPause handles PUT /v1/system/pause.
func (h *GatewayHandler) SetPause(c *fiber.Ctx) error {
	ctx := c.UserContext()
	caller := redemption.HolderIDFromContext(ctx)

	var req PauseRequest
	if err := ParseBodyAndValidate(c, entitySystem, &req); err != nil {
		return RenderError(c, err, entitySystem)
	}

	state, err := h.service.SetPause(ctx, caller, *req.Paused)
	if err != nil {
		return RenderError(c, err, entitySystem)
	}

	return OK(c, state)
}

// GetState handles GET /v1/system.
func (h *GatewayHandler) GetState(c *fiber.Ctx) error {
	state, err := h.service.State(c.UserContext())
	if err != nil {
		return RenderError(c, err, entitySystem)
	}

	return OK(c, state)
}

// CreateDeposit handles POST /v1/deposits.
func (h *GatewayHandler) CreateDeposit(c *fiber.Ctx) error {
	return h.runOperation(c, entityDeposit, h.service.Deposit)
}

// CreateWithdrawal handles POST /v1/withdrawals.
func (h *GatewayHandler) CreateWithdrawal(c *fiber.Ctx) error {
	return h.runOperation(c, entityWithdraw, h.service.Withdraw)
}

// CreateClaim handles POST /v1/claims.
func (h *GatewayHandler) CreateClaim(c *fiber.Ctx) error {
	return h.runOperation(c, entityClaim, h.service.Claim)
}

// runOperation is the shared recipe for the three balance operations: the
// caller operates on their own account, identified by the holder header.
func (h *GatewayHandler) runOperation(
	c *fiber.Ctx,
	entityType string,
	operation func(ctx context.Context, holderID string, amount uint64) (ledger.Account, error),
) error {
	ctx := c.UserContext()
	holderID := redemption.HolderIDFromContext(ctx)

	var req OperationRequest
	if err := ParseBodyAndValidate(c, entityType, &req); err != nil {
		return RenderError(c, err, entityType)
	}

	account, err := operation(ctx, holderID, *req.Amount)
	if err != nil {
		return RenderError(c, err, entityType)
	}

	return Created(c, NewAccountResponse(account, h.scale))
}

// GetAccount handles GET /v1/accounts/:holder_id.
func (h *GatewayHandler) GetAccount(c *fiber.Ctx) error {
	holderID := c.Params("holder_id")
	opentelemetry.SetSpanAttributeForParam(c, "holder_id", holderID, "account")

	account, err := h.service.Account(c.UserContext(), holderID)
	if err != nil {
		return RenderError(c, err, entityAccount)
	}

	return OK(c, NewAccountResponse(account, h.scale))
}

// GetMetadata handles GET /v1/accounts/:holder_id/metadata.
func (h *GatewayHandler) GetMetadata(c *fiber.Ctx) error {
	holderID := c.Params("holder_id")
	opentelemetry.SetSpanAttributeForParam(c, "holder_id", holderID, "account")

	metadata, err := h.service.Metadata(c.UserContext(), holderID)
	if err != nil {
		return RenderError(c, err, entityMetadata)
	}

	return OK(c, MetadataResponse{HolderID: holderID, Metadata: metadata})
}

// PatchMetadata handles PATCH /v1/accounts/:holder_id/metadata. The body is
// the metadata document itself; the operation layer enforces size limits
// and the admin gate for foreign holders.
func (h *GatewayHandler) PatchMetadata(c *fiber.Ctx) error {
	ctx := c.UserContext()
	caller := redemption.HolderIDFromContext(ctx)
	holderID := c.Params("holder_id")
	opentelemetry.SetSpanAttributeForParam(c, "holder_id", holderID, "account")

	var metadata map[string]any
	if err := parseJSONBody(c, entityMetadata, &metadata); err != nil {
		return RenderError(c, err, entityMetadata)
	}

	if err := h.service.UpdateMetadata(ctx, caller, holderID, metadata); err != nil {
		return RenderError(c, err, entityMetadata)
	}

	return OK(c, MetadataResponse{HolderID: holderID, Metadata: metadata})
}

// GrantRole handles POST /v1/roles/grants.
func (h *GatewayHandler) GrantRole(c *fiber.Ctx) error {
	return h.changeRole(c, h.service.GrantRole)
}

// RevokeRole handles DELETE /v1/roles/grants.
func (h *GatewayHandler) RevokeRole(c *fiber.Ctx) error {
	return h.changeRole(c, h.service.RevokeRole)
}

func (h *GatewayHandler) changeRole(
	c *fiber.Ctx,
	change func(ctx context.Context, callerID string, role token.Role, holderID string) error,
) error {
	ctx := c.UserContext()
	caller := redemption.HolderIDFromContext(ctx)

	var req RoleRequest
	if err := ParseBodyAndValidate(c, entityRole, &req); err != nil {
		return RenderError(c, err, entityRole)
	}

	if err := change(ctx, caller, token.Role(req.Role), req.HolderID); err != nil {
		return RenderError(c, err, entityRole)
	}

	return NoContent(c)
}
