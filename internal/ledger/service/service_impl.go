package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/iamafoodie/buddy/internal/config"
	"github.com/iamafoodie/buddy/internal/identity"
	"github.com/iamafoodie/buddy/internal/ledger/domain"
	"github.com/iamafoodie/buddy/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const trialPlanLabel = "Trial"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Cfg        config.Config
	Plans      *config.PlanConfigHolder
	Normalizer *identity.Normalizer
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	trial      config.TrialConfig
	defaults   config.PaymentConfig
	plans      *config.PlanConfigHolder
	normalizer *identity.Normalizer
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		trial:      p.Cfg.Trial,
		defaults:   p.Cfg.Payment,
		plans:      p.Plans,
		normalizer: p.Normalizer,
	}
}

func (s *Service) GetOrCreateTrial(ctx context.Context, rawIdentity string) (*domain.Account, error) {
	canonical, ok := s.normalizer.Normalize(rawIdentity)
	if !ok {
		return nil, domain.ErrInvalidIdentity
	}

	account, err := s.find(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 0, s.trial.Days)
	account = &domain.Account{
		ID:                     s.genID.Generate(),
		Identity:               canonical,
		Status:                 domain.StatusActive,
		PlanLabel:              trialPlanLabel,
		IsTrial:                true,
		CreditBalance:          s.trial.Credits,
		LifetimeCreditsGranted: 0,
		PeriodStart:            &now,
		PeriodEnd:              &periodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.repo.Insert(ctx, s.db, account); err != nil {
		// A concurrent first message won the insert; use its row.
		if db.IsDuplicateKeyErr(err) {
			return s.find(ctx, canonical)
		}
		return nil, err
	}

	s.log.Info("trial account created",
		zap.String("identity", maskIdentity(canonical)),
		zap.Int("credits", s.trial.Credits),
	)
	return account, nil
}

func (s *Service) Get(ctx context.Context, rawIdentity string) (*domain.Account, error) {
	canonical, ok := s.normalizer.Normalize(rawIdentity)
	if !ok {
		return nil, domain.ErrInvalidIdentity
	}
	return s.find(ctx, canonical)
}

func (s *Service) CanTransact(ctx context.Context, rawIdentity string) (bool, error) {
	account, err := s.Get(ctx, rawIdentity)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}
	if account.Status != domain.StatusActive {
		return false, nil
	}
	now := time.Now().UTC()
	if account.Expired(now) {
		return false, nil
	}
	if account.CreditBalance < 1 {
		return false, nil
	}
	if account.IsTrial && account.QuestionCount >= s.trial.MaxQuestions {
		return false, nil
	}
	return true, nil
}

func (s *Service) ConsumeOneCredit(ctx context.Context, rawIdentity string) (bool, error) {
	account, err := s.Get(ctx, rawIdentity)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}

	ok, err := s.repo.ConsumeCredit(ctx, s.db, account.Identity, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if ok {
		s.log.Debug("credit consumed",
			zap.String("identity", maskIdentity(account.Identity)),
		)
	}
	return ok, nil
}

func (s *Service) ApplyPayment(ctx context.Context, req domain.ApplyPaymentRequest) (*domain.Account, error) {
	canonical, ok := s.normalizer.Normalize(req.Identity)
	if !ok {
		return nil, domain.ErrInvalidIdentity
	}

	grant := s.resolveGrant(req)
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByIdentity(ctx, tx, s.normalizer.LookupCandidates(canonical))
		if err != nil {
			return err
		}

		if account == nil {
			created := s.newPaidAccount(canonical, req, grant, now)
			if err := s.repo.Insert(ctx, tx, created); err != nil {
				if !db.IsDuplicateKeyErr(err) {
					return err
				}
				// Lost a create race; fall through to the grant update.
				account, err = s.repo.FindByIdentity(ctx, tx, s.normalizer.LookupCandidates(canonical))
				if err != nil {
					return err
				}
				if account == nil {
					return gorm.ErrRecordNotFound
				}
			} else {
				return nil
			}
		}

		applied, err := s.repo.ApplyGrant(ctx, tx, account.Identity, grant, now)
		if err != nil {
			return err
		}
		if !applied {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	account, err := s.find(ctx, canonical)
	if err != nil {
		return nil, err
	}
	s.log.Info("payment applied",
		zap.String("identity", maskIdentity(canonical)),
		zap.String("plan", req.PlanLabel),
		zap.Int("credits", grant.Credits),
		zap.Bool("replace", grant.Replace),
	)
	return account, nil
}

func (s *Service) UpdateStatus(ctx context.Context, rawIdentity string, status string, periodEnd *time.Time) (bool, error) {
	switch status {
	case domain.StatusActive, domain.StatusExpired, domain.StatusBlocked:
	default:
		return false, domain.ErrInvalidStatus
	}

	account, err := s.Get(ctx, rawIdentity)
	if err != nil {
		return false, err
	}
	if account == nil {
		s.log.Warn("status update for unknown identity",
			zap.String("identity", maskIdentity(rawIdentity)),
			zap.String("status", status),
		)
		return false, nil
	}

	return s.repo.UpdateStatus(ctx, s.db, account.Identity, status, periodEnd, time.Now().UTC())
}

func (s *Service) Cancel(ctx context.Context, rawIdentity string) (bool, error) {
	account, err := s.Get(ctx, rawIdentity)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}

	found, err := s.repo.UpdateStatus(ctx, s.db, account.Identity, domain.StatusExpired, nil, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if found {
		s.log.Info("account cancelled",
			zap.String("identity", maskIdentity(account.Identity)),
		)
	}
	return found, nil
}

// resolveGrant turns the request into a concrete credit policy: explicit
// hint first, then the plan table, then the configured default so a
// payment always grants something.
func (s *Service) resolveGrant(req domain.ApplyPaymentRequest) domain.Grant {
	plan, matched := s.plans.Get().ResolvePlan(req.PlanLabel)

	credits := s.defaults.DefaultCredits
	switch {
	case req.CreditsHint != nil && *req.CreditsHint > 0:
		credits = *req.CreditsHint
	case matched:
		credits = plan.Credits
	}

	recurring := req.IsRecurringHint
	replace := false
	if matched {
		recurring = recurring || plan.Recurring
		replace = plan.Recurring
	}

	grant := domain.Grant{
		Credits:     credits,
		Replace:     replace,
		IsRecurring: recurring,
		PeriodEnd:   req.PeriodEnd,
	}
	if label := req.PlanLabel; label != "" {
		grant.PlanLabel = &label
	}
	if ref := req.CustomerRef; ref != "" {
		grant.CustomerRef = &ref
	}
	return grant
}

func (s *Service) newPaidAccount(canonical string, req domain.ApplyPaymentRequest, grant domain.Grant, now time.Time) *domain.Account {
	planLabel := req.PlanLabel
	if planLabel == "" {
		planLabel = "Default Plan"
	}
	return &domain.Account{
		ID:                     s.genID.Generate(),
		Identity:               canonical,
		Status:                 domain.StatusActive,
		PlanLabel:              planLabel,
		CustomerRef:            req.CustomerRef,
		IsRecurring:            grant.IsRecurring,
		IsTrial:                false,
		CreditBalance:          grant.Credits,
		LifetimeCreditsGranted: grant.Credits,
		PeriodStart:            &now,
		PeriodEnd:              req.PeriodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func (s *Service) find(ctx context.Context, canonical string) (*domain.Account, error) {
	return s.repo.FindByIdentity(ctx, s.db, s.normalizer.LookupCandidates(canonical))
}

// maskIdentity keeps only the last digits out of logs.
func maskIdentity(identity string) string {
	if len(identity) <= 4 {
		return "***"
	}
	return "***" + identity[len(identity)-4:]
}
