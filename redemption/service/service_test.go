package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

const (
	testAdminID       = "hld-admin"
	testSyntheticID   = "asset-syn"
	testUnderlyingID  = "asset-und"
	testCustodyID     = constant.DefaultCustodyAccountID
	testSeedSynthetic = uint64(1_000)
	testSeedCustody   = uint64(1_000)
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeAccounts struct {
	mu      sync.Mutex
	records map[string]ledger.Account

	findErr     error
	saveErr     error
	saveErrCall int // 1-based save call to fail; 0 fails every save while saveErr is set
	saveCalls   int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{records: map[string]ledger.Account{}}
}

func (f *fakeAccounts) Find(_ context.Context, holderID string) (ledger.Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return ledger.Account{}, false, f.findErr
	}

	account, found := f.records[holderID]

	return account, found, nil
}

func (f *fakeAccounts) Save(_ context.Context, account ledger.Account) (ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++

	if f.saveErr != nil && (f.saveErrCall == 0 || f.saveCalls == f.saveErrCall) {
		return ledger.Account{}, f.saveErr
	}

	stored, exists := f.records[account.HolderID]
	if exists && account.Version != stored.Version+1 {
		return ledger.Account{}, fmt.Errorf("account %s: %w", account.HolderID, ErrVersionConflict)
	}

	account.UpdatedAt = time.Now().UTC()
	f.records[account.HolderID] = account

	return account, nil
}

func (f *fakeAccounts) stored(holderID string) (ledger.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, found := f.records[holderID]

	return account, found
}

func (f *fakeAccounts) seed(account ledger.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records[account.HolderID] = account
}

type fakeSystem struct {
	mu     sync.Mutex
	state  SystemState
	exists bool

	loadErr     error
	saveErr     error
	saveErrCall int
	saveCalls   int
}

func (f *fakeSystem) Load(_ context.Context) (SystemState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadErr != nil {
		return SystemState{}, false, f.loadErr
	}

	return f.state, f.exists, nil
}

func (f *fakeSystem) Save(_ context.Context, state SystemState) (SystemState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++

	if f.saveErr != nil && (f.saveErrCall == 0 || f.saveCalls == f.saveErrCall) {
		return SystemState{}, f.saveErr
	}

	if f.exists && state.Version != f.state.Version+1 {
		return SystemState{}, fmt.Errorf("system state: %w", ErrVersionConflict)
	}

	state.UpdatedAt = time.Now().UTC()
	f.state = state
	f.exists = true

	return state, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	balances map[string]map[string]uint64
	burned   map[string]uint64

	failTransferIn  error
	failTransferOut error
	failBurn        error

	transferInCalls  int
	transferOutCalls int
	burnCalls        int

	// reentry, when set, runs at the start of TransferIn with the operation
	// context, mimicking a collaborator that calls back into the service.
	reentry func(ctx context.Context)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balances: map[string]map[string]uint64{},
		burned:   map[string]uint64{},
	}
}

func (g *fakeGateway) credit(assetID, owner string, amount uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.add(assetID, owner, amount)
}

func (g *fakeGateway) add(assetID, owner string, amount uint64) {
	if g.balances[assetID] == nil {
		g.balances[assetID] = map[string]uint64{}
	}

	g.balances[assetID][owner] += amount
}

func (g *fakeGateway) remove(assetID, owner string, amount uint64) error {
	if g.balances[assetID][owner] < amount {
		return fmt.Errorf("asset %s: owner %s holds %d, needs %d", assetID, owner, g.balances[assetID][owner], amount)
	}

	g.balances[assetID][owner] -= amount

	return nil
}

func (g *fakeGateway) balance(assetID, owner string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.balances[assetID][owner]
}

func (g *fakeGateway) burnedTotal(assetID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.burned[assetID]
}

func (g *fakeGateway) setFailures(transferIn, transferOut, burn error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failTransferIn = transferIn
	g.failTransferOut = transferOut
	g.failBurn = burn
}

func (g *fakeGateway) TransferIn(ctx context.Context, assetID, from, to string, amount uint64) error {
	if g.reentry != nil {
		g.reentry(ctx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.transferInCalls++

	if g.failTransferIn != nil {
		return g.failTransferIn
	}

	if err := g.remove(assetID, from, amount); err != nil {
		return err
	}

	g.add(assetID, to, amount)

	return nil
}

func (g *fakeGateway) TransferOut(_ context.Context, assetID, to string, amount uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.transferOutCalls++

	if g.failTransferOut != nil {
		return g.failTransferOut
	}

	if err := g.remove(assetID, testCustodyID, amount); err != nil {
		return err
	}

	g.add(assetID, to, amount)

	return nil
}

func (g *fakeGateway) Burn(_ context.Context, assetID string, amount uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.burnCalls++

	if g.failBurn != nil {
		return g.failBurn
	}

	if err := g.remove(assetID, testCustodyID, amount); err != nil {
		return err
	}

	g.burned[assetID] += amount

	return nil
}

type roleChange struct {
	role     token.Role
	holderID string
}

type fakeRoles struct {
	mu      sync.Mutex
	members map[token.Role]map[string]bool

	hasRoleErr error
	grantErr   error
	revokeErr  error

	lookups []token.Role
	grants  []roleChange
	revokes []roleChange
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{members: map[token.Role]map[string]bool{}}
}

func (f *fakeRoles) HasRole(_ context.Context, role token.Role, holderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups = append(f.lookups, role)

	if f.hasRoleErr != nil {
		return false, f.hasRoleErr
	}

	return f.members[role][holderID], nil
}

func (f *fakeRoles) Grant(_ context.Context, role token.Role, holderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.grantErr != nil {
		return f.grantErr
	}

	if f.members[role] == nil {
		f.members[role] = map[string]bool{}
	}

	f.members[role][holderID] = true
	f.grants = append(f.grants, roleChange{role: role, holderID: holderID})

	return nil
}

func (f *fakeRoles) Revoke(_ context.Context, role token.Role, holderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.revokeErr != nil {
		return f.revokeErr
	}

	delete(f.members[role], holderID)
	f.revokes = append(f.revokes, roleChange{role: role, holderID: holderID})

	return nil
}

func (f *fakeRoles) holds(role token.Role, holderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.members[role][holderID]
}

func (f *fakeRoles) lookupOrder() []token.Role {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]token.Role(nil), f.lookups...)
}

type fakeEventStore struct {
	events.EventRepository

	mu        sync.Mutex
	created   []*events.OperationEvent
	createErr error
}

func (f *fakeEventStore) Create(_ context.Context, event *events.OperationEvent) (*events.OperationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	f.created = append(f.created, event)

	return event, nil
}

func (f *fakeEventStore) recorded() []*events.OperationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*events.OperationEvent(nil), f.created...)
}

func (f *fakeEventStore) recordedOfType(eventType string) []*events.OperationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*events.OperationEvent

	for _, event := range f.created {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

type fakeMetadataStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any

	upsertErr error
	findErr   error
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{docs: map[string]map[string]any{}}
}

func (f *fakeMetadataStore) Upsert(_ context.Context, holderID string, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return f.upsertErr
	}

	f.docs[holderID] = metadata

	return nil
}

func (f *fakeMetadataStore) Find(_ context.Context, holderID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}

	return f.docs[holderID], nil
}

type fakeLocker struct {
	mu         sync.Mutex
	acquireErr error
	releaseErr error
	acquired   []string
	released   []string
}

func (f *fakeLocker) Acquire(_ context.Context, holderID string) (func(ctx context.Context) error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.acquireErr != nil {
		return nil, f.acquireErr
	}

	f.acquired = append(f.acquired, holderID)

	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.releaseErr != nil {
			return f.releaseErr
		}

		f.released = append(f.released, holderID)

		return nil
	}, nil
}

// ---------------------------------------------------------------------------
// test environment
// ---------------------------------------------------------------------------

type testEnv struct {
	svc      *Service
	accounts *fakeAccounts
	system   *fakeSystem
	gateway  *fakeGateway
	roles    *fakeRoles
	events   *fakeEventStore
	metadata *fakeMetadataStore
}

func newEnv(t *testing.T, extra ...Option) *testEnv {
	t.Helper()

	env := &testEnv{
		accounts: newFakeAccounts(),
		system:   &fakeSystem{},
		gateway:  newFakeGateway(),
		roles:    newFakeRoles(),
		events:   &fakeEventStore{},
		metadata: newFakeMetadataStore(),
	}

	opts := append([]Option{
		WithEventRepository(env.events),
		WithMetadataRepository(env.metadata),
	}, extra...)

	svc, err := New(env.accounts, env.system, env.gateway, env.roles, opts...)
	require.NoError(t, err)

	env.svc = svc

	return env
}

// initializeSystem bootstraps the gateway through the real Initialize
// operation and seeds external holdings for the given holder.
func (e *testEnv) initializeSystem(t *testing.T, holderIDs ...string) {
	t.Helper()

	_, err := e.svc.Initialize(context.Background(), testAdminID, testSyntheticID, testUnderlyingID)
	require.NoError(t, err)

	e.gateway.credit(testUnderlyingID, testCustodyID, testSeedCustody)

	for _, holderID := range holderIDs {
		e.gateway.credit(testSyntheticID, holderID, testSeedSynthetic)
	}
}

func decodeEventPayload(t *testing.T, event *events.OperationEvent) map[string]any {
	t.Helper()

	var payload map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &payload))

	return payload
}
