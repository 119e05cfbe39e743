package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	chatdomain "github.com/iamafoodie/buddy/internal/chat/domain"
	chatrepo "github.com/iamafoodie/buddy/internal/chat/repository"
	"github.com/iamafoodie/buddy/internal/config"
	"github.com/iamafoodie/buddy/internal/identity"
	inboxrepo "github.com/iamafoodie/buddy/internal/inbox/repository"
	ledgerdomain "github.com/iamafoodie/buddy/internal/ledger/domain"
	ledgerrepo "github.com/iamafoodie/buddy/internal/ledger/repository"
	ledgerservice "github.com/iamafoodie/buddy/internal/ledger/service"
)

type recordingSender struct {
	mu    sync.Mutex
	sends []string
}

func (s *recordingSender) SendText(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, body)
	return nil
}

func (s *recordingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sends...)
}

func testChatConfig() config.Config {
	return config.Config{
		Identity: config.IdentityConfig{
			DefaultCountryCode: "31",
			MobilePrefix:       "6",
			MinNationalDigits:  9,
		},
		Trial: config.TrialConfig{
			Days:              7,
			Credits:           10,
			MaxQuestions:      10,
			WarningAtQuestion: 7,
			UpgradeMessage:    "Je proefperiode is voorbij.",
			WarningMessage:    "Nog even en je proefperiode zit erop.",
		},
		Payment: config.PaymentConfig{DefaultCredits: 50},
	}
}

func newChatService(t *testing.T, db *gorm.DB, sender *recordingSender) *service {
	t.Helper()

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	cfg := testChatConfig()
	normalizer := identity.NewNormalizer(cfg.Identity)
	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       ledgerrepo.Provide(),
		Cfg:        cfg,
		Plans:      config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
		Normalizer: normalizer,
	})

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Cfg:        cfg,
		Normalizer: normalizer,
		Repo:       chatrepo.Provide(),
		Inbox:      inboxrepo.Provide(),
		Ledger:     ledgerSvc,
		Sender:     sender,
		Answerer:   &chatdomain.StaticAnswerer{Reply: "Probeer na de training een eiwitrijke maaltijd."},
	}).(*service)
	svc.background = func(fn func()) { fn() }
	return svc
}

func TestHandleInboundAnswersAndConsumes(t *testing.T) {
	ctx := context.Background()
	db := setupChatTestDB(t)
	sender := &recordingSender{}
	svc := newChatService(t, db, sender)

	admitted, err := svc.HandleInbound(ctx, chatdomain.InboundMessage{
		MessageID: "wamid.001",
		From:      "31612345678",
		Text:      "Wat eet ik na de training?",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if !admitted {
		t.Fatal("first delivery was not admitted")
	}

	sends := sender.all()
	if len(sends) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(sends))
	}

	account, err := svc.ledger.Get(ctx, "+31612345678")
	if err != nil || account == nil {
		t.Fatalf("get account: %v", err)
	}
	if account.CreditBalance != 9 {
		t.Fatalf("expected 9 credits left, got %d", account.CreditBalance)
	}
	if account.QuestionCount != 1 {
		t.Fatalf("expected question count 1, got %d", account.QuestionCount)
	}

	var logged int64
	if err := db.Raw(`SELECT COUNT(*) FROM chat_logs`).Scan(&logged).Error; err != nil {
		t.Fatalf("count chat logs: %v", err)
	}
	if logged != 1 {
		t.Fatalf("expected 1 chat log, got %d", logged)
	}
}

func TestHandleInboundDuplicateDeliveryIsDropped(t *testing.T) {
	ctx := context.Background()
	db := setupChatTestDB(t)
	sender := &recordingSender{}
	svc := newChatService(t, db, sender)

	msg := chatdomain.InboundMessage{
		MessageID: "wamid.dup",
		From:      "+31612345678",
		Text:      "Hoeveel water moet ik drinken?",
	}
	if admitted, err := svc.HandleInbound(ctx, msg); err != nil || !admitted {
		t.Fatalf("first delivery: admitted=%v err=%v", admitted, err)
	}
	admitted, err := svc.HandleInbound(ctx, msg)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if admitted {
		t.Fatal("duplicate delivery was admitted")
	}

	if sends := sender.all(); len(sends) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(sends))
	}
	account, err := svc.ledger.Get(ctx, "+31612345678")
	if err != nil || account == nil {
		t.Fatalf("get account: %v", err)
	}
	if account.CreditBalance != 9 {
		t.Fatalf("duplicate consumed a credit: balance %d", account.CreditBalance)
	}
}

func TestHandleInboundConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	db := setupChatTestDB(t)
	sender := &recordingSender{}
	svc := newChatService(t, db, sender)

	msg := chatdomain.InboundMessage{
		MessageID: "wamid.race",
		From:      "+31612345678",
		Text:      "Hoeveel eiwit per dag?",
	}

	var wg sync.WaitGroup
	admittedCount := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := svc.HandleInbound(ctx, msg)
			if err != nil {
				t.Errorf("handle inbound: %v", err)
				return
			}
			if admitted {
				mu.Lock()
				admittedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admittedCount != 1 {
		t.Fatalf("expected exactly 1 admission, got %d", admittedCount)
	}
}

func TestHandleInboundExhaustedTrialGetsUpgradeNotice(t *testing.T) {
	ctx := context.Background()
	db := setupChatTestDB(t)
	sender := &recordingSender{}
	svc := newChatService(t, db, sender)

	if _, err := svc.ledger.GetOrCreateTrial(ctx, "+31612345678"); err != nil {
		t.Fatalf("create trial: %v", err)
	}
	if err := db.Exec(`UPDATE accounts SET credit_balance = 0`).Error; err != nil {
		t.Fatalf("drain balance: %v", err)
	}

	admitted, err := svc.HandleInbound(ctx, chatdomain.InboundMessage{
		MessageID: "wamid.broke",
		From:      "+31612345678",
		Text:      "Nog een vraag?",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if !admitted {
		t.Fatal("message should be admitted even without credits")
	}

	sends := sender.all()
	if len(sends) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(sends))
	}
	if sends[0] != svc.cfg.Trial.UpgradeMessage {
		t.Fatalf("expected upgrade notice, got %q", sends[0])
	}
}

func TestHandleInboundTrialWarningAppended(t *testing.T) {
	ctx := context.Background()
	db := setupChatTestDB(t)
	sender := &recordingSender{}
	svc := newChatService(t, db, sender)

	if _, err := svc.ledger.GetOrCreateTrial(ctx, "+31612345678"); err != nil {
		t.Fatalf("create trial: %v", err)
	}
	// Question 7 is the configured warning moment.
	if err := db.Exec(`UPDATE accounts SET question_count = 6, credit_balance = 4`).Error; err != nil {
		t.Fatalf("seed question count: %v", err)
	}

	if _, err := svc.HandleInbound(ctx, chatdomain.InboundMessage{
		MessageID: "wamid.warn",
		From:      "+31612345678",
		Text:      "Vraag zeven",
	}); err != nil {
		t.Fatalf("handle inbound: %v", err)
	}

	sends := sender.all()
	if len(sends) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(sends))
	}
	warning := svc.cfg.Trial.WarningMessage
	if len(sends[0]) <= len(warning) || sends[0][len(sends[0])-len(warning):] != warning {
		t.Fatalf("expected trial warning appended, got %q", sends[0])
	}
}

// flakyTrialLedger drops the first GetOrCreateTrial calls with a
// connection error, then delegates.
type flakyTrialLedger struct {
	ledgerdomain.Service
	failuresLeft int
	trialCalls   int
}

func (l *flakyTrialLedger) GetOrCreateTrial(ctx context.Context, identity string) (*ledgerdomain.Account, error) {
	l.trialCalls++
	if l.failuresLeft > 0 {
		l.failuresLeft--
		return nil, errors.New("driver: bad connection")
	}
	return l.Service.GetOrCreateTrial(ctx, identity)
}

func TestHandleInboundRetriesTrialCreationOnTransientError(t *testing.T) {
	ctx := context.Background()
	db := setupChatTestDB(t)
	sender := &recordingSender{}
	svc := newChatService(t, db, sender)

	flaky := &flakyTrialLedger{Service: svc.ledger, failuresLeft: 1}
	svc.ledger = flaky

	admitted, err := svc.HandleInbound(ctx, chatdomain.InboundMessage{
		MessageID: "wamid.flaky",
		From:      "+31612345678",
		Text:      "Werkt dit nog?",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if !admitted {
		t.Fatal("message should be admitted after retried trial creation")
	}
	if flaky.trialCalls != 2 {
		t.Fatalf("expected 2 trial calls, got %d", flaky.trialCalls)
	}
	if sends := sender.all(); len(sends) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(sends))
	}
}

func TestHandleInboundIgnoresEmptyText(t *testing.T) {
	ctx := context.Background()
	db := setupChatTestDB(t)
	sender := &recordingSender{}
	svc := newChatService(t, db, sender)

	admitted, err := svc.HandleInbound(ctx, chatdomain.InboundMessage{
		MessageID: "wamid.empty",
		From:      "+31612345678",
		Text:      "   ",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if admitted {
		t.Fatal("empty message should not be admitted")
	}
}

func setupChatTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_chat_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE accounts (
			id BIGINT PRIMARY KEY,
			identity VARCHAR(20) NOT NULL,
			status TEXT NOT NULL,
			plan_label TEXT NOT NULL DEFAULT '',
			customer_ref TEXT NOT NULL DEFAULT '',
			is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
			is_trial BOOLEAN NOT NULL DEFAULT FALSE,
			credit_balance INTEGER NOT NULL DEFAULT 0,
			lifetime_credits_granted INTEGER NOT NULL DEFAULT 0,
			question_count INTEGER NOT NULL DEFAULT 0,
			period_start TIMESTAMP,
			period_end TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_accounts_identity ON accounts(identity)`,
		`CREATE TABLE delivery_records (
			message_id VARCHAR(255) PRIMARY KEY,
			received_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE chat_logs (
			id BIGINT PRIMARY KEY,
			identity VARCHAR(20) NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			credits_left INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
