package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/iamafoodie/buddy/internal/chat/domain"
	"github.com/iamafoodie/buddy/internal/config"
	"github.com/iamafoodie/buddy/internal/identity"
	inboxdomain "github.com/iamafoodie/buddy/internal/inbox/domain"
	ledgerdomain "github.com/iamafoodie/buddy/internal/ledger/domain"
	"github.com/iamafoodie/buddy/internal/observability/metrics"
	"github.com/iamafoodie/buddy/internal/providers/whatsapp"
	"github.com/iamafoodie/buddy/internal/ratelimit"
	"github.com/iamafoodie/buddy/pkg/db"
)

const answerTimeout = 60 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Normalizer *identity.Normalizer
	Repo       domain.Repository
	Inbox      inboxdomain.Repository
	Ledger     ledgerdomain.Service
	Sender     whatsapp.Provider
	Answerer   domain.Answerer
	Limiter    *ratelimit.ChatLimiter `optional:"true"`
	Metrics    *metrics.Metrics       `optional:"true"`
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.Config
	normalizer *identity.Normalizer
	repo       domain.Repository
	inbox      inboxdomain.Repository
	ledger     ledgerdomain.Service
	sender     whatsapp.Provider
	answerer   domain.Answerer
	limiter    *ratelimit.ChatLimiter
	metrics    *metrics.Metrics

	// background makes the answer flow synchronous in tests.
	background func(func())
}

func New(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("chat.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		normalizer: p.Normalizer,
		repo:       p.Repo,
		inbox:      p.Inbox,
		ledger:     p.Ledger,
		sender:     p.Sender,
		answerer:   p.Answerer,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
		background: func(fn func()) { go fn() },
	}
}

// HandleInbound runs the admission path inline so the webhook response
// stays fast, then answers on a detached context. The platform has
// already been told "received" by the time the answer goes out.
func (s *service) HandleInbound(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	if strings.TrimSpace(msg.Text) == "" || strings.TrimSpace(msg.MessageID) == "" {
		return false, nil
	}

	canonical, ok := s.normalizer.Normalize(msg.From)
	if !ok {
		s.log.Warn("inbound message with unusable sender")
		return false, nil
	}
	log := s.log.With(zap.String("identity", maskIdentity(canonical)))

	account, err := s.ledger.GetOrCreateTrial(ctx, canonical)
	if err != nil && db.IsTransientConnErr(err) {
		log.Warn("transient storage error creating trial account, retrying once", zap.Error(err))
		account, err = s.ledger.GetOrCreateTrial(ctx, canonical)
	}
	if err != nil {
		return false, err
	}

	admitted, err := s.inbox.Admit(ctx, s.db, msg.MessageID)
	if err != nil && db.IsTransientConnErr(err) {
		log.Warn("transient storage error admitting message, retrying once", zap.Error(err))
		admitted, err = s.inbox.Admit(ctx, s.db, msg.MessageID)
	}
	if err != nil {
		return false, err
	}
	if !admitted {
		log.Info("duplicate delivery dropped", zap.String("message_id", msg.MessageID))
		if s.metrics != nil {
			s.metrics.RecordMessageDuplicate()
		}
		return false, nil
	}
	if s.metrics != nil {
		s.metrics.RecordMessageAdmitted()
	}

	s.background(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), answerTimeout)
		defer cancel()
		s.answer(bgCtx, log, account.Identity, msg.Text)
	})
	return true, nil
}

// answer is the post-admission flow: entitlement gate, rate gate, answer
// generation, delivery, then payment. The credit is only spent once the
// reply actually went out.
func (s *service) answer(ctx context.Context, log *zap.Logger, canonical, question string) {
	ok, err := s.ledger.CanTransact(ctx, canonical)
	if err != nil {
		log.Error("entitlement check failed", zap.Error(err))
		return
	}
	if !ok {
		if err := s.sender.SendText(ctx, canonical, s.cfg.Trial.UpgradeMessage); err != nil {
			log.Warn("failed to deliver upgrade notice", zap.Error(err))
		}
		return
	}

	allowed, err := s.limiter.Allow(ctx, canonical)
	if err != nil {
		// The limiter is advisory. When redis is down we answer anyway.
		log.Warn("rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		log.Warn("daily message limit reached")
		return
	}

	reply, err := s.answerer.Answer(ctx, canonical, question)
	if err != nil {
		log.Error("answer generation failed", zap.Error(err))
		return
	}
	reply = s.appendTrialWarning(ctx, canonical, reply, log)

	if err := s.sender.SendText(ctx, canonical, reply); err != nil {
		log.Error("failed to deliver answer", zap.Error(err))
		return
	}

	consumed, err := s.ledger.ConsumeOneCredit(ctx, canonical)
	if err != nil {
		log.Error("failed to consume credit", zap.Error(err))
	} else if !consumed {
		// The balance raced to zero between the gate and here. The
		// answer was already sent; nothing to claw back.
		log.Warn("no credit left to consume after answering")
	} else if s.metrics != nil {
		s.metrics.RecordCreditConsumed()
	}

	s.recordLog(ctx, canonical, question, reply, log)
}

// appendTrialWarning tacks the heads-up text onto the answer when a trial
// account reaches the configured question number.
func (s *service) appendTrialWarning(ctx context.Context, canonical, reply string, log *zap.Logger) string {
	account, err := s.ledger.Get(ctx, canonical)
	if err != nil || account == nil {
		return reply
	}
	if !account.IsTrial {
		return reply
	}
	if account.QuestionCount+1 != s.cfg.Trial.WarningAtQuestion {
		return reply
	}
	log.Info("appending trial warning", zap.Int("question", account.QuestionCount+1))
	return reply + "\n\n" + s.cfg.Trial.WarningMessage
}

func (s *service) recordLog(ctx context.Context, canonical, question, answer string, log *zap.Logger) {
	balance := 0
	if account, err := s.ledger.Get(ctx, canonical); err == nil && account != nil {
		balance = account.CreditBalance
	}
	entry := &domain.ChatLog{
		ID:          s.genID.Generate(),
		Identity:    canonical,
		Question:    question,
		Answer:      answer,
		CreditsLeft: balance,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.InsertLog(ctx, s.db, entry); err != nil {
		log.Warn("failed to record chat log", zap.Error(err))
	}
}

func maskIdentity(identity string) string {
	if len(identity) <= 4 {
		return "****"
	}
	return "****" + identity[len(identity)-4:]
}
