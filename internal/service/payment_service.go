package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/retry"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

var (
	ProductStarter   = models.Product{Key: "starter", Name: "Starter", PriceRUB: 490, Credits: 20}
	ProductPro       = models.Product{Key: "pro", Name: "Pro", PriceRUB: 1490, Credits: 100}
	ProductUnlimited = models.Product{Key: "unlimited", Name: "Unlimited", PriceRUB: 2990, Credits: 999999, Duration: 30 * 24 * time.Hour}
)

// Products lists the catalog in display order.
func Products() []models.Product {
	return []models.Product{ProductStarter, ProductPro, ProductUnlimited}
}

// ResolveProduct picks a product from a free-form product name. Unknown
// names fall back to the starter package.
func ResolveProduct(name string) models.Product {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "unlimited"):
		return ProductUnlimited
	case strings.Contains(name, "pro"):
		return ProductPro
	default:
		return ProductStarter
	}
}

// Receipt describes a processed payment.
type Receipt struct {
	AccountKey      string
	OrderID         string
	Product         models.Product
	CreditsAdded    int
	PreviousCredits int
	NewCredits      int
	ExpiresAt       *time.Time
	TelegramID      *int64
	PaidAt          time.Time
	// Redelivered is set when the order was already processed.
	Redelivered bool
}

// Notifier tells the buyer and the operators about a payment.
type Notifier interface {
	NotifyPayment(ctx context.Context, receipt Receipt) error
}

type PaymentService struct {
	credits  *CreditService
	payments PaymentStore
	policy   retry.Policy
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewPaymentService(credits *CreditService, payments PaymentStore, policy retry.Policy, notifier Notifier, log *slog.Logger) *PaymentService {
	return &PaymentService{
		credits:  credits,
		payments: payments,
		policy:   policy,
		notifier: notifier,
		log:      log,
		now:      utcNow,
	}
}

// Process grants the purchased credits. The order id is claimed in
// payments_log before any credit is granted, so concurrent or repeated
// deliveries of one order credit it exactly once; the losers get a receipt
// marked Redelivered.
func (s *PaymentService) Process(ctx context.Context, email, productName, orderID string) (Receipt, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return Receipt{}, err
	}
	now := s.now()
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		orderID = fmt.Sprintf("unknown_%d", now.UnixNano())
	}
	product := ResolveProduct(productName)

	rec := models.PaymentRecord{
		AccountKey:   key,
		OrderID:      orderID,
		Product:      product.Key,
		CreditsAdded: product.Credits,
		AmountRUB:    product.PriceRUB,
		CreatedAt:    now,
	}
	err = call(ctx, s.policy, "log payment", func(ctx context.Context) error {
		return s.payments.Log(ctx, &rec)
	})
	if storeerr.IsDuplicate(err) {
		return s.redelivered(ctx, key, orderID)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("claim order: %w", err)
	}

	previous, err := s.credits.GetBalance(ctx, key)
	if err == nil {
		_, err = s.credits.Credit(ctx, key, product.Credits)
	}
	if err != nil {
		s.release(ctx, orderID)
		return Receipt{}, fmt.Errorf("grant credits: %w", err)
	}

	receipt := Receipt{
		AccountKey:      key,
		OrderID:         orderID,
		Product:         product,
		CreditsAdded:    product.Credits,
		PreviousCredits: previous,
		NewCredits:      previous + product.Credits,
		PaidAt:          now,
	}
	purchase := models.Purchase{Tariff: product.Key, PaidAt: now}
	if product.Duration > 0 {
		expires := now.Add(product.Duration)
		purchase.SubscriptionExpires = &expires
		purchase.Premium = true
		receipt.ExpiresAt = &expires
	}
	if err := s.credits.RecordPurchase(ctx, key, purchase); err != nil && s.log != nil {
		s.log.Error("failed to record purchase", "account", key, "order_id", orderID, "err", err)
	}

	if acc, err := s.credits.Account(ctx, key); err == nil && acc != nil {
		receipt.NewCredits = acc.Credits
		receipt.TelegramID = acc.TelegramID
	}

	if s.log != nil {
		s.log.Info("payment processed",
			"account", key,
			"order_id", orderID,
			"product", product.Key,
			"credits_added", product.Credits,
			"new_credits", receipt.NewCredits,
		)
	}
	return receipt, nil
}

func (s *PaymentService) redelivered(ctx context.Context, key, orderID string) (Receipt, error) {
	prior, err := s.findOrder(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{AccountKey: key, OrderID: orderID, Redelivered: true}
	if prior != nil {
		receipt.AccountKey = prior.AccountKey
		receipt.Product = ResolveProduct(prior.Product)
		receipt.CreditsAdded = prior.CreditsAdded
		receipt.PaidAt = prior.CreatedAt
	}
	balance, err := s.credits.GetBalance(ctx, receipt.AccountKey)
	if err != nil {
		return Receipt{}, err
	}
	receipt.NewCredits = balance
	if s.log != nil {
		s.log.Info("payment redelivered", "order_id", orderID, "account", receipt.AccountKey)
	}
	return receipt, nil
}

// release drops the claim of an order whose credit failed so the next
// delivery can retry it. It runs even when ctx is already cancelled.
func (s *PaymentService) release(ctx context.Context, orderID string) {
	err := call(context.WithoutCancel(ctx), s.policy, "release payment", func(ctx context.Context) error {
		return s.payments.Release(ctx, orderID)
	})
	if err != nil && s.log != nil {
		s.log.Error("failed to release order claim", "order_id", orderID, "err", err)
	}
}

// Notify sends the receipt through the configured notifier. Failures are
// logged, never returned.
func (s *PaymentService) Notify(ctx context.Context, receipt Receipt) {
	if s.notifier == nil || receipt.Redelivered {
		return
	}
	if err := s.notifier.NotifyPayment(ctx, receipt); err != nil && s.log != nil {
		s.log.Warn("payment notification failed", "account", receipt.AccountKey, "order_id", receipt.OrderID, "err", err)
	}
}

func (s *PaymentService) findOrder(ctx context.Context, orderID string) (*models.PaymentRecord, error) {
	var rec *models.PaymentRecord
	err := call(ctx, s.policy, "find payment", func(ctx context.Context) error {
		var err error
		rec, err = s.payments.FindByOrderID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
