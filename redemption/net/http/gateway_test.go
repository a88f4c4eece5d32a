package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/redemption-gateway/redemption"
	cn "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
	"github.com/LerianStudio/redemption-gateway/redemption/service"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// fakeGatewayService lets each test script the operation layer. Unset
// functions return zero values.
type fakeGatewayService struct {
	initializeFn func(ctx context.Context, callerID, syntheticAssetID, underlyingAssetID string) (service.SystemState, error)
	setPauseFn   func(ctx context.Context, callerID string, paused bool) (service.SystemState, error)
	stateFn      func(ctx context.Context) (service.SystemState, error)
	depositFn    func(ctx context.Context, holderID string, amount uint64) (ledger.Account, error)
	withdrawFn   func(ctx context.Context, holderID string, amount uint64) (ledger.Account, error)
	claimFn      func(ctx context.Context, holderID string, amount uint64) (ledger.Account, error)
	accountFn    func(ctx context.Context, holderID string) (ledger.Account, error)
	grantRoleFn  func(ctx context.Context, callerID string, role token.Role, holderID string) error
	revokeRoleFn func(ctx context.Context, callerID string, role token.Role, holderID string) error
	updateMetaFn func(ctx context.Context, callerID, holderID string, metadata map[string]any) error
	metadataFn   func(ctx context.Context, holderID string) (map[string]any, error)
}

func (f *fakeGatewayService) Initialize(ctx context.Context, callerID, syntheticAssetID, underlyingAssetID string) (service.SystemState, error) {
	if f.initializeFn != nil {
		return f.initializeFn(ctx, callerID, syntheticAssetID, underlyingAssetID)
	}

	return service.SystemState{}, nil
}

func (f *fakeGatewayService) SetPause(ctx context.Context, callerID string, paused bool) (service.SystemState, error) {
	if f.setPauseFn != nil {
		return f.setPauseFn(ctx, callerID, paused)
	}

	return service.SystemState{}, nil
}

func (f *fakeGatewayService) State(ctx context.Context) (service.SystemState, error) {
	if f.stateFn != nil {
		return f.stateFn(ctx)
	}

	return service.SystemState{}, nil
}

func (f *fakeGatewayService) Deposit(ctx context.Context, holderID string, amount uint64) (ledger.Account, error) {
	if f.depositFn != nil {
		return f.depositFn(ctx, holderID, amount)
	}

	return ledger.Account{}, nil
}

func (f *fakeGatewayService) Withdraw(ctx context.Context, holderID string, amount uint64) (ledger.Account, error) {
	if f.withdrawFn != nil {
		return f.withdrawFn(ctx, holderID, amount)
	}

	return ledger.Account{}, nil
}

func (f *fakeGatewayService) Claim(ctx context.Context, holderID string, amount uint64) (ledger.Account, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, holderID, amount)
	}

	return ledger.Account{}, nil
}

func (f *fakeGatewayService) Account(ctx context.Context, holderID string) (ledger.Account, error) {
	if f.accountFn != nil {
		return f.accountFn(ctx, holderID)
	}

	return ledger.Account{}, nil
}

func (f *fakeGatewayService) GrantRole(ctx context.Context, callerID string, role token.Role, holderID string) error {
	if f.grantRoleFn != nil {
		return f.grantRoleFn(ctx, callerID, role, holderID)
	}

	return nil
}

func (f *fakeGatewayService) RevokeRole(ctx context.Context, callerID string, role token.Role, holderID string) error {
	if f.revokeRoleFn != nil {
		return f.revokeRoleFn(ctx, callerID, role, holderID)
	}

	return nil
}

func (f *fakeGatewayService) UpdateMetadata(ctx context.Context, callerID, holderID string, metadata map[string]any) error {
	if f.updateMetaFn != nil {
		return f.updateMetaFn(ctx, callerID, holderID, metadata)
	}

	return nil
}

func (f *fakeGatewayService) Metadata(ctx context.Context, holderID string) (map[string]any, error) {
	if f.metadataFn != nil {
		return f.metadataFn(ctx, holderID)
	}

	return nil, nil
}

func newTestRouter(t *testing.T, svc GatewayService) *fiber.App {
	t.Helper()

	app, err := NewRouter(RouterConfig{
		ServiceName: "redemption-gateway-test",
		Service:     svc,
		AmountScale: 2,
	})
	require.NoError(t, err)

	return app
}

func jsonRequest(method, target, holderID, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)

	if body != "" {
		req.Header.Set(cn.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	if holderID != "" {
		req.Header.Set(cn.HeaderHolderID, holderID)
	}

	return req
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { require.NoError(t, resp.Body.Close()) }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out T
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", string(body))

	return out
}

// ---------------------------------------------------------------------------
// NewGatewayHandler
// ---------------------------------------------------------------------------

func TestNewGatewayHandler_RequiresService(t *testing.T) {
	t.Parallel()

	_, err := NewGatewayHandler(nil)
	require.ErrorIs(t, err, ErrServiceRequired)
}

func TestNewRouter_RequiresService(t *testing.T) {
	t.Parallel()

	_, err := NewRouter(RouterConfig{})
	require.ErrorIs(t, err, ErrServiceRequired)
}

// ---------------------------------------------------------------------------
// Balance operations
// ---------------------------------------------------------------------------

func TestCreateDeposit_Success(t *testing.T) {
	t.Parallel()

	var gotHolder string

	var gotAmount uint64

	svc := &fakeGatewayService{
		depositFn: func(_ context.Context, holderID string, amount uint64) (ledger.Account, error) {
			gotHolder = holderID
			gotAmount = amount

			return ledger.Account{HolderID: holderID, Unexchanged: 1050, Version: 1}, nil
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/deposits", "alice", `{"amount":1050}`))
	require.NoError(t, err)

	account := decodeJSON[AccountResponse](t, resp)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice", gotHolder)
	assert.Equal(t, uint64(1050), gotAmount)
	assert.Equal(t, "alice", account.HolderID)
	assert.Equal(t, int64(1050), account.Unexchanged)
	// Scale 2 renders 1050 base units as 10.5.
	assert.Equal(t, "10.5", account.UnexchangedAmount)
	assert.Equal(t, "0", account.ExchangedAmount)
}

func TestCreateDeposit_MissingHolderHeader(t *testing.T) {
	t.Parallel()

	app := newTestRouter(t, &fakeGatewayService{})

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/deposits", "", `{"amount":100}`))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, cn.ErrInvalidInput.Error(), envelope.Code)
	assert.Contains(t, envelope.Message, cn.HeaderHolderID)
}

func TestCreateDeposit_MissingAmount(t *testing.T) {
	t.Parallel()

	app := newTestRouter(t, &fakeGatewayService{})

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/deposits", "alice", `{}`))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, cn.ErrInvalidInput.Error(), envelope.Code)
	assert.Equal(t, entityDeposit, envelope.EntityType)
}

func TestCreateWithdrawal_PausedSystem(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		withdrawFn: func(context.Context, string, uint64) (ledger.Account, error) {
			return ledger.Account{}, fmt.Errorf("withdraw: %w", cn.ErrSystemPaused)
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/withdrawals", "alice", `{"amount":10}`))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, cn.ErrSystemPaused.Error(), envelope.Code)
	assert.Equal(t, entityWithdraw, envelope.EntityType)
}

func TestCreateClaim_InsufficientBalance(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		claimFn: func(context.Context, string, uint64) (ledger.Account, error) {
			return ledger.Account{}, fmt.Errorf("claim: %w", cn.ErrInsufficientBalance)
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/claims", "alice", `{"amount":10}`))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, cn.ErrInsufficientBalance.Error(), envelope.Code)
	assert.Equal(t, entityClaim, envelope.EntityType)
}

func TestCreateClaim_TransferFailure(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		claimFn: func(context.Context, string, uint64) (ledger.Account, error) {
			return ledger.Account{}, fmt.Errorf("claim: %w", cn.ErrTransferFailure)
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/claims", "alice", `{"amount":10}`))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusFailedDependency, resp.StatusCode)
	assert.Equal(t, cn.ErrTransferFailure.Error(), envelope.Code)
}

// ---------------------------------------------------------------------------
// System administration
// ---------------------------------------------------------------------------

func TestInitialize_Success(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		initializeFn: func(_ context.Context, callerID, syntheticAssetID, underlyingAssetID string) (service.SystemState, error) {
			assert.Equal(t, "admin-1", callerID)

			return service.SystemState{
				Initialized:       true,
				SyntheticAssetID:  syntheticAssetID,
				UnderlyingAssetID: underlyingAssetID,
				Version:           1,
			}, nil
		},
	}

	app := newTestRouter(t, svc)

	body := `{"syntheticAssetId":"synthetic-usd","underlyingAssetId":"usd"}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/system/initialize", "admin-1", body))
	require.NoError(t, err)

	state := decodeJSON[service.SystemState](t, resp)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, state.Initialized)
	assert.Equal(t, "synthetic-usd", state.SyntheticAssetID)
	assert.Equal(t, "usd", state.UnderlyingAssetID)
}

func TestInitialize_Unauthorized(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		initializeFn: func(context.Context, string, string, string) (service.SystemState, error) {
			return service.SystemState{}, fmt.Errorf("initialize: %w", cn.ErrUnauthorized)
		},
	}

	app := newTestRouter(t, svc)

	body := `{"syntheticAssetId":"s","underlyingAssetId":"u"}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/system/initialize", "mallory", body))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, cn.ErrUnauthorized.Error(), envelope.Code)
	assert.Equal(t, entitySystem, envelope.EntityType)
}

func TestSetPause_Success(t *testing.T) {
	t.Parallel()

	var gotPaused bool

	svc := &fakeGatewayService{
		setPauseFn: func(_ context.Context, _ string, paused bool) (service.SystemState, error) {
			gotPaused = paused

			return service.SystemState{Initialized: true, Paused: paused}, nil
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodPut, "/v1/system/pause", "sentinel-1", `{"paused":true}`))
	require.NoError(t, err)

	state := decodeJSON[service.SystemState](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, gotPaused)
	assert.True(t, state.Paused)
}

func TestGetState_PublicRead(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		stateFn: func(context.Context) (service.SystemState, error) {
			return service.SystemState{Initialized: true, SyntheticAssetID: "s", UnderlyingAssetID: "u"}, nil
		},
	}

	app := newTestRouter(t, svc)

	// No holder header: reads stay open.
	resp, err := app.Test(jsonRequest(http.MethodGet, "/v1/system", "", ""))
	require.NoError(t, err)

	state := decodeJSON[service.SystemState](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, state.Initialized)
}

// ---------------------------------------------------------------------------
// Account reads
// ---------------------------------------------------------------------------

func TestGetAccount_Success(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		accountFn: func(_ context.Context, holderID string) (ledger.Account, error) {
			return ledger.Account{HolderID: holderID, Unexchanged: 250, Exchanged: 100, Version: 3}, nil
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodGet, "/v1/accounts/alice", "", ""))
	require.NoError(t, err)

	account := decodeJSON[AccountResponse](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", account.HolderID)
	assert.Equal(t, int64(250), account.Unexchanged)
	assert.Equal(t, int64(100), account.Exchanged)
	assert.Equal(t, "2.5", account.UnexchangedAmount)
	assert.Equal(t, "1", account.ExchangedAmount)
	assert.Equal(t, int64(3), account.Version)
}

func TestGetAccount_NotFound(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		accountFn: func(context.Context, string) (ledger.Account, error) {
			return ledger.Account{}, fmt.Errorf("account: %w", cn.ErrAccountNotFound)
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodGet, "/v1/accounts/nobody", "", ""))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, cn.ErrAccountNotFound.Error(), envelope.Code)
	assert.Equal(t, entityAccount, envelope.EntityType)
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

func TestGrantRole_Success(t *testing.T) {
	t.Parallel()

	var gotRole token.Role

	var gotCaller, gotHolder string

	svc := &fakeGatewayService{
		grantRoleFn: func(_ context.Context, callerID string, role token.Role, holderID string) error {
			gotCaller, gotRole, gotHolder = callerID, role, holderID
			return nil
		},
	}

	app := newTestRouter(t, svc)

	body := `{"role":"SENTINEL","holderId":"bob"}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/roles/grants", "admin-1", body))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "admin-1", gotCaller)
	assert.Equal(t, token.RoleSentinel, gotRole)
	assert.Equal(t, "bob", gotHolder)
}

func TestRevokeRole_Unauthorized(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		revokeRoleFn: func(context.Context, string, token.Role, string) error {
			return fmt.Errorf("revoke: %w", cn.ErrUnauthorized)
		},
	}

	app := newTestRouter(t, svc)

	body := `{"role":"ADMIN","holderId":"bob"}`

	resp, err := app.Test(jsonRequest(http.MethodDelete, "/v1/roles/grants", "mallory", body))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, entityRole, envelope.EntityType)
}

func TestGrantRole_RejectsUnknownRole(t *testing.T) {
	t.Parallel()

	app := newTestRouter(t, &fakeGatewayService{})

	body := `{"role":"ROOT","holderId":"bob"}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/roles/grants", "admin-1", body))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, cn.ErrInvalidInput.Error(), envelope.Code)
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

func TestPatchMetadata_Success(t *testing.T) {
	t.Parallel()

	var gotCaller, gotHolder string

	var gotMetadata map[string]any

	svc := &fakeGatewayService{
		updateMetaFn: func(_ context.Context, callerID, holderID string, metadata map[string]any) error {
			gotCaller, gotHolder, gotMetadata = callerID, holderID, metadata
			return nil
		},
	}

	app := newTestRouter(t, svc)

	body := `{"tier":"gold","note":null}`

	resp, err := app.Test(jsonRequest(http.MethodPatch, "/v1/accounts/alice/metadata", "alice", body))
	require.NoError(t, err)

	result := decodeJSON[MetadataResponse](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", gotCaller)
	assert.Equal(t, "alice", gotHolder)
	assert.Equal(t, "gold", gotMetadata["tier"])
	assert.Contains(t, gotMetadata, "note")
	assert.Equal(t, "alice", result.HolderID)
}

func TestPatchMetadata_ForeignHolderUnauthorized(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		updateMetaFn: func(context.Context, string, string, map[string]any) error {
			return fmt.Errorf("metadata: %w", cn.ErrUnauthorized)
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodPatch, "/v1/accounts/bob/metadata", "alice", `{"k":"v"}`))
	require.NoError(t, err)

	envelope := decodeJSON[errorEnvelope](t, resp)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, entityMetadata, envelope.EntityType)
}

func TestGetMetadata_NullForAbsentDocument(t *testing.T) {
	t.Parallel()

	svc := &fakeGatewayService{
		metadataFn: func(context.Context, string) (map[string]any, error) {
			return nil, nil
		},
	}

	app := newTestRouter(t, svc)

	resp, err := app.Test(jsonRequest(http.MethodGet, "/v1/accounts/alice/metadata", "", ""))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"metadata":null`)
}

// ---------------------------------------------------------------------------
// Utility routes
// ---------------------------------------------------------------------------

func TestUtilityRoutes(t *testing.T) {
	t.Parallel()

	app := newTestRouter(t, &fakeGatewayService{})

	resp, err := app.Test(jsonRequest(http.MethodGet, "/ping", "", ""))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/health", "", ""))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/version", "", ""))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHolderIdentityReachesContext(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(WithHolderIdentity())

	var captured string

	app.Get("/who", func(c *fiber.Ctx) error {
		captured = redemption.HolderIDFromContext(c.UserContext())
		return c.SendStatus(http.StatusOK)
	})

	resp, err := app.Test(jsonRequest(http.MethodGet, "/who", "  alice  ", ""))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "alice", captured)
}
