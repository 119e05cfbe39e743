package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	ledgerdomain "github.com/iamafoodie/buddy/internal/ledger/domain"
	"github.com/iamafoodie/buddy/internal/observability/metrics"
	"github.com/iamafoodie/buddy/internal/payment/domain"
	"github.com/iamafoodie/buddy/pkg/db"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Ledger  ledgerdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	ledger  ledgerdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		ledger:  p.Ledger,
		metrics: p.Metrics,
	}
}

// Dispatch routes a normalized event to the ledger operation its kind
// implies. A false result with nil error means the event was acknowledged
// but deliberately not acted on; the caller must still answer the
// provider with success so it stops re-delivering.
func (s *service) Dispatch(ctx context.Context, event domain.NormalizedEvent, payload []byte) (bool, error) {
	action := domain.ClassifyKind(event.Kind)
	log := s.log.With(zap.String("kind", event.Kind))

	handled, err := s.dispatchOnce(ctx, action, event, log)
	if err != nil && db.IsTransientConnErr(err) {
		// Storage connections go stale behind NAT and poolers. One
		// immediate retry on a fresh pooled connection recovers the
		// common case without queueing.
		log.Warn("transient storage error, retrying once", zap.Error(err))
		handled, err = s.dispatchOnce(ctx, action, event, log)
	}

	s.recordAudit(ctx, event, handled, payload)
	s.recordMetrics(event.Kind, handled, err)
	return handled, err
}

func (s *service) dispatchOnce(ctx context.Context, action domain.Action, event domain.NormalizedEvent, log *zap.Logger) (bool, error) {
	switch action {
	case domain.ActionApplyPayment:
		account, err := s.ledger.ApplyPayment(ctx, ledgerdomain.ApplyPaymentRequest{
			Identity:        event.IdentityRaw,
			PlanLabel:       event.PlanLabel,
			CreditsHint:     event.CreditsHint,
			IsRecurringHint: event.IsRecurringHint,
			PeriodEnd:       event.PeriodEndHint,
			CustomerRef:     event.CustomerRef,
		})
		if errors.Is(err, ledgerdomain.ErrInvalidIdentity) {
			log.Warn("event carries no usable identity")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		log.Info("payment applied",
			zap.String("plan", account.PlanLabel),
			zap.Int("balance", account.CreditBalance),
		)
		return true, nil

	case domain.ActionUpdateStatus:
		status := event.StatusHint
		if status == "" {
			status = ledgerdomain.StatusActive
		}
		handled, err := s.ledger.UpdateStatus(ctx, event.IdentityRaw, status, event.PeriodEndHint)
		if errors.Is(err, ledgerdomain.ErrInvalidIdentity) {
			log.Warn("event carries no usable identity")
			return false, nil
		}
		return handled, err

	case domain.ActionCancel:
		handled, err := s.ledger.Cancel(ctx, event.IdentityRaw)
		if errors.Is(err, ledgerdomain.ErrInvalidIdentity) {
			log.Warn("event carries no usable identity")
			return false, nil
		}
		return handled, err

	default:
		log.Info("ignoring unknown event kind")
		return false, nil
	}
}

// recordAudit writes the trail row best-effort. An audit failure never
// fails the dispatch; the provider would only re-deliver and re-apply.
func (s *service) recordAudit(ctx context.Context, event domain.NormalizedEvent, handled bool, payload []byte) {
	record := &domain.EventRecord{
		ID:         s.genID.Generate(),
		Kind:       event.Kind,
		Identity:   event.IdentityRaw,
		PlanLabel:  event.PlanLabel,
		Credits:    event.CreditsHint,
		Handled:    handled,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertEvent(ctx, s.db, record); err != nil {
		s.log.Warn("failed to record payment event", zap.Error(err))
	}
}

func (s *service) recordMetrics(kind string, handled bool, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ignored"
	switch {
	case err != nil:
		outcome = "error"
	case handled:
		outcome = "handled"
	}
	s.metrics.RecordPaymentEvent(kind, outcome)
}
