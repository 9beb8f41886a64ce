package connect

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	pkgerrors "github.com/streamcart-live/streamcart-backend/pkg/errors"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
)

// Outcome mirrors the payment handlers' result taxonomy for account events.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// Capabilities that mark a Connect account ready to take payments.
const (
	capabilityCardPayments = "card_payments"
	capabilityTransfers    = "transfers"
)

type sellerStore interface {
	FindByStripeAccountID(ctx context.Context, accountID string) (*models.Seller, error)
	MarkConnected(ctx context.Context, sellerID uuid.UUID, now time.Time) (int64, error)
	MarkDeauthorized(ctx context.Context, accountID string, now time.Time) (int64, error)
}

// AccountEventParams carry the flags from an account.updated payload.
type AccountEventParams struct {
	EventID        string
	AccountID      string
	ChargesEnabled bool
	PayoutsEnabled bool
}

// CapabilityEventParams carry one capability transition.
type CapabilityEventParams struct {
	EventID    string
	AccountID  string
	Capability string
	Active     bool
}

// DeauthorizedParams identify the account that revoked platform access.
type DeauthorizedParams struct {
	EventID   string
	AccountID string
}

// ServiceParams configure the Connect status sync service.
type ServiceParams struct {
	Logger  *logger.Logger
	Sellers sellerStore
}

// Service keeps seller Connect status in sync with account events. Enablement
// only ever moves forward here: disabled flags are ignored, and a
// deauthorized seller stays deauthorized no matter what arrives later.
type Service struct {
	logg    *logger.Logger
	sellers sellerStore
	now     func() time.Time
}

// NewService wires Connect sync dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Sellers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sellers repository required")
	}
	return &Service{
		logg:    params.Logger,
		sellers: params.Sellers,
		now:     time.Now,
	}, nil
}

// HandleAccountUpdated marks the seller connected once charges and payouts
// are both enabled. Events with either flag off are acknowledged untouched;
// revocation only ever happens through deauthorization.
func (s *Service) HandleAccountUpdated(ctx context.Context, params AccountEventParams) (Outcome, error) {
	if params.AccountID == "" {
		return OutcomeSkipped, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if !params.ChargesEnabled || !params.PayoutsEnabled {
		return OutcomeSkipped, nil
	}
	return s.markConnected(ctx, params.AccountID)
}

// HandleCapabilityUpdated treats an active payments capability as the same
// readiness signal as a fully enabled account.
func (s *Service) HandleCapabilityUpdated(ctx context.Context, params CapabilityEventParams) (Outcome, error) {
	if params.AccountID == "" {
		return OutcomeSkipped, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if !params.Active {
		return OutcomeSkipped, nil
	}
	if params.Capability != capabilityCardPayments && params.Capability != capabilityTransfers {
		return OutcomeSkipped, nil
	}
	return s.markConnected(ctx, params.AccountID)
}

// HandleDeauthorized latches the seller off. The guard in the repository
// makes replays no-ops and the latch permanent.
func (s *Service) HandleDeauthorized(ctx context.Context, params DeauthorizedParams) (Outcome, error) {
	if params.AccountID == "" {
		return OutcomeSkipped, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	rows, err := s.sellers.MarkDeauthorized(ctx, params.AccountID, s.now().UTC())
	if err != nil {
		return OutcomeProcessed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark seller deauthorized")
	}
	if rows == 0 {
		s.logg.Info(s.logg.WithField(ctx, "stripe_account_id", params.AccountID),
			"deauthorization already recorded or account unknown")
		return OutcomeDuplicate, nil
	}
	return OutcomeProcessed, nil
}

func (s *Service) markConnected(ctx context.Context, accountID string) (Outcome, error) {
	seller, err := s.sellers.FindByStripeAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "stripe_account_id", accountID),
				"account event references no seller")
			return OutcomeSkipped, nil
		}
		return OutcomeProcessed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find seller by account")
	}

	rows, err := s.sellers.MarkConnected(ctx, seller.ID, s.now().UTC())
	if err != nil {
		return OutcomeProcessed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark seller connected")
	}
	if rows == 0 {
		// Already connected, or the deauthorization latch is set.
		return OutcomeDuplicate, nil
	}
	return OutcomeProcessed, nil
}
