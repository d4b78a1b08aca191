package entitlement

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/melodix/backend/internal/metrics"
	"github.com/melodix/backend/internal/models"
	"github.com/melodix/backend/internal/tier"
)

var (
	// ErrAccountNotFound is returned when no entitlement row exists for the account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountInactive is returned when a deactivated account tries to consume or be rewarded.
	ErrAccountInactive = errors.New("account inactive")
	// ErrQuotaExhausted is returned when the relevant balance is already zero.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrInvalidResource is returned for a resource outside Streaming/Download.
	ErrInvalidResource = errors.New("invalid resource")
)

// Resource selects which balance a consume call meters.
type Resource string

const (
	Streaming Resource = "streaming"
	Download  Resource = "download"
)

// ConsumeResult reports the outcome of a consumption attempt. Remaining is
// tier.Unlimited when the tier bypasses metering for the resource.
type ConsumeResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Store is the minimal repository interface the consumption service needs.
type Store interface {
	Create(ctx context.Context, e *models.Entitlement) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Entitlement, error)
	ConsumeStreaming(ctx context.Context, accountID uuid.UUID) (int, error)
	ConsumeDownload(ctx context.Context, accountID uuid.UUID) (int, error)
}

type Service interface {
	Register(ctx context.Context, accountID uuid.UUID) (*models.Entitlement, error)
	Get(ctx context.Context, accountID uuid.UUID) (*models.Entitlement, error)
	Consume(ctx context.Context, accountID uuid.UUID, resource Resource) (ConsumeResult, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

// Register creates the entitlement row for a new account with Free ceilings.
func (s *service) Register(ctx context.Context, accountID uuid.UUID) (*models.Entitlement, error) {
	c := tier.CeilingsFor(tier.Free)
	e := &models.Entitlement{
		AccountID:        accountID,
		Tier:             tier.Free,
		StreamingBalance: c.Streaming,
		DownloadBalance:  c.Download,
		Active:           true,
	}
	if err := s.store.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID) (*models.Entitlement, error) {
	return s.store.GetByAccountID(ctx, accountID)
}

// Consume gatekeeps one stream/download action. An unlimited balance passes
// without mutation; a metered balance is decremented by a single conditional
// update so concurrent calls never overdraw it.
func (s *service) Consume(ctx context.Context, accountID uuid.UUID, resource Resource) (ConsumeResult, error) {
	e, err := s.store.GetByAccountID(ctx, accountID)
	if err != nil {
		return ConsumeResult{}, err
	}
	if !e.Active {
		metrics.QuotaConsume.WithLabelValues(string(resource), "inactive").Inc()
		return ConsumeResult{}, ErrAccountInactive
	}

	var balance int
	var decrement func(context.Context, uuid.UUID) (int, error)
	switch resource {
	case Streaming:
		balance = e.StreamingBalance
		decrement = s.store.ConsumeStreaming
	case Download:
		balance = e.DownloadBalance
		decrement = s.store.ConsumeDownload
	default:
		return ConsumeResult{}, ErrInvalidResource
	}

	if balance == tier.Unlimited {
		metrics.QuotaConsume.WithLabelValues(string(resource), "unlimited").Inc()
		return ConsumeResult{Allowed: true, Remaining: tier.Unlimited}, nil
	}

	remaining, err := decrement(ctx, accountID)
	if errors.Is(err, ErrQuotaExhausted) {
		metrics.QuotaConsume.WithLabelValues(string(resource), "exhausted").Inc()
		return ConsumeResult{Allowed: false, Remaining: 0}, ErrQuotaExhausted
	}
	if err != nil {
		return ConsumeResult{}, err
	}
	metrics.QuotaConsume.WithLabelValues(string(resource), "allowed").Inc()
	return ConsumeResult{Allowed: true, Remaining: remaining}, nil
}
