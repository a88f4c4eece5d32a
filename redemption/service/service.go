package service

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// Service is the operation layer of the redemption gateway.
//
// All mutating operations run under a single mutex with no yield point
// between delta validation and commit; nested calls from collaborators are
// rejected through the reentrancy guard (see gate.go). A Service is safe for
// concurrent use.
type Service struct {
	accounts AccountRepository
	system   SystemRepository
	gateway  token.Gateway
	roles    token.RoleDirectory

	eventsRepo events.EventRepository
	metadata   MetadataRepository
	locker     OperationLocker

	custodyAccountID string

	opMu    sync.Mutex
	entered atomic.Bool
}

// Option mutates service configuration at construction.
type Option func(*Service)

// WithEventRepository enables outbox event recording for every committed
// operation. Without it, operations complete silently.
func WithEventRepository(repo events.EventRepository) Option {
	return func(s *Service) {
		if isNil(repo) {
			s.eventsRepo = nil

			return
		}

		s.eventsRepo = repo
	}
}

// WithMetadataRepository enables per-holder metadata storage.
func WithMetadataRepository(repo MetadataRepository) Option {
	return func(s *Service) {
		if isNil(repo) {
			s.metadata = nil

			return
		}

		s.metadata = repo
	}
}

// WithOperationLocker enables cross-instance per-holder locking for balance
// operations. Single-instance deployments can omit it.
func WithOperationLocker(locker OperationLocker) Option {
	return func(s *Service) {
		if isNil(locker) {
			s.locker = nil

			return
		}

		s.locker = locker
	}
}

// WithCustodyAccount overrides the account that holds deposited synthetic
// assets until they are withdrawn or burned.
func WithCustodyAccount(accountID string) Option {
	return func(s *Service) {
		if strings.TrimSpace(accountID) != "" {
			s.custodyAccountID = accountID
		}
	}
}

// New creates the operation layer over the given stores and collaborators.
func New(
	accounts AccountRepository,
	system SystemRepository,
	gateway token.Gateway,
	roles token.RoleDirectory,
	opts ...Option,
) (*Service, error) {
	if isNil(accounts) {
		return nil, ErrAccountRepositoryRequired
	}

	if isNil(system) {
		return nil, ErrSystemRepositoryRequired
	}

	if isNil(gateway) {
		return nil, ErrGatewayRequired
	}

	if isNil(roles) {
		return nil, ErrRoleDirectoryRequired
	}

	svc := &Service{
		accounts:         accounts,
		system:           system,
		gateway:          gateway,
		roles:            roles,
		custodyAccountID: constant.DefaultCustodyAccountID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}

	return svc, nil
}

// InFlight reports whether a mutating operation is currently executing.
func (s *Service) InFlight() bool {
	if s == nil {
		return false
	}

	return s.entered.Load()
}

// isNil reports whether v is nil or an interface wrapping a typed nil value.
func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
