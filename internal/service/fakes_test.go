package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/retry"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

var errConnReset = errors.New("connection reset by peer")

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

// faults injects failures per operation name.
type faults struct {
	mu        sync.Mutex
	transient map[string]int
	permanent map[string]error
	calls     map[string]int
}

func newFaults() *faults {
	return &faults{transient: map[string]int{}, permanent: map[string]error{}, calls: map[string]int{}}
}

// failTransiently makes the next n calls of op fail with a retryable error.
func (f *faults) failTransiently(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transient[op] = n
}

func (f *faults) failPermanently(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permanent[op] = err
}

func (f *faults) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err, ok := f.permanent[op]; ok {
		return err
	}
	if f.transient[op] > 0 {
		f.transient[op]--
		return storeerr.Transient(fmt.Errorf("%s: %w", op, errConnReset))
	}
	return nil
}

func (f *faults) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

type memAccounts struct {
	*faults
	mu   sync.Mutex
	rows map[string]models.Account
	// beforeCreate runs inside Create, before the duplicate check.
	beforeCreate func(acc *models.Account)
}

func newMemAccounts() *memAccounts {
	return &memAccounts{faults: newFaults(), rows: map[string]models.Account{}}
}

func (m *memAccounts) Get(ctx context.Context, key string) (*models.Account, error) {
	if err := m.hit("get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (m *memAccounts) Create(ctx context.Context, acc *models.Account) error {
	if err := m.hit("create"); err != nil {
		return err
	}
	if m.beforeCreate != nil {
		m.beforeCreate(acc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[acc.Key]; ok {
		return storeerr.Duplicate(fmt.Errorf("account %s exists", acc.Key))
	}
	m.rows[acc.Key] = *acc
	return nil
}

func (m *memAccounts) UpdateProfile(ctx context.Context, key string, profile models.Profile, now time.Time) error {
	if err := m.hit("update_profile"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.rows[key]
	if !ok {
		return nil
	}
	if profile.TelegramID != nil {
		acc.TelegramID = profile.TelegramID
	}
	if profile.DisplayName != "" {
		acc.DisplayName = profile.DisplayName
	}
	acc.UpdatedAt = now
	m.rows[key] = acc
	return nil
}

func (m *memAccounts) Debit(ctx context.Context, key string, amount int, now time.Time) (bool, error) {
	if err := m.hit("debit"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.rows[key]
	if !ok || acc.Credits < amount {
		return false, nil
	}
	acc.Credits -= amount
	acc.UpdatedAt = now
	m.rows[key] = acc
	return true, nil
}

func (m *memAccounts) AddCredits(ctx context.Context, key string, amount int, now time.Time) (bool, error) {
	if err := m.hit("add"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.rows[key]
	if !ok {
		return false, nil
	}
	acc.Credits += amount
	acc.UpdatedAt = now
	m.rows[key] = acc
	return true, nil
}

func (m *memAccounts) BumpGenerations(ctx context.Context, key string, now time.Time) error {
	if err := m.hit("bump"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.rows[key]; ok {
		acc.Generations++
		m.rows[key] = acc
	}
	return nil
}

func (m *memAccounts) RecordPurchase(ctx context.Context, key string, p models.Purchase) error {
	if err := m.hit("purchase"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.rows[key]
	if !ok {
		return nil
	}
	acc.Tariff = p.Tariff
	paid := p.PaidAt
	acc.LastPaymentAt = &paid
	if p.SubscriptionExpires != nil {
		acc.SubscriptionExpires = p.SubscriptionExpires
		acc.IsPremium = p.Premium
	}
	m.rows[key] = acc
	return nil
}

func (m *memAccounts) List(ctx context.Context) ([]models.Account, error) {
	if err := m.hit("list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Account, 0, len(m.rows))
	for _, acc := range m.rows {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memAccounts) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	if err := m.hit("expire"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, acc := range m.rows {
		if acc.IsPremium && acc.SubscriptionExpires != nil && acc.SubscriptionExpires.Before(now) {
			acc.IsPremium = false
			acc.Tariff = ""
			m.rows[key] = acc
			n++
		}
	}
	return n, nil
}

func (m *memAccounts) balance(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key].Credits
}

type memQuizzes struct {
	*faults
	mu        sync.Mutex
	rows      map[string]models.Quiz
	lastLimit int
}

func newMemQuizzes() *memQuizzes {
	return &memQuizzes{faults: newFaults(), rows: map[string]models.Quiz{}}
}

func (m *memQuizzes) Insert(ctx context.Context, quiz *models.Quiz) error {
	if err := m.hit("insert"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[quiz.ID]; ok {
		return storeerr.Duplicate(fmt.Errorf("quiz %s exists", quiz.ID))
	}
	// Store a deep copy the way a database would.
	stored := *quiz
	stored.Questions = append([]models.Question(nil), quiz.Questions...)
	stored.Hints = append([]string(nil), quiz.Hints...)
	m.rows[quiz.ID] = stored
	return nil
}

func (m *memQuizzes) Get(ctx context.Context, id string) (*models.Quiz, error) {
	if err := m.hit("get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	quiz, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &quiz, nil
}

func (m *memQuizzes) ListByOwner(ctx context.Context, owner string, limit int) ([]models.Quiz, error) {
	if err := m.hit("list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []models.Quiz
	for _, quiz := range m.rows {
		if quiz.OwnerKey == owner {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memQuizzes) CreatedSince(ctx context.Context, since time.Time) ([]models.Quiz, error) {
	if err := m.hit("since"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Quiz
	for _, quiz := range m.rows {
		if !quiz.CreatedAt.Before(since) {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memQuizzes) SetPublic(ctx context.Context, id string, public bool) (bool, error) {
	if err := m.hit("set_public"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	quiz, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	quiz.IsPublic = public
	m.rows[id] = quiz
	return true, nil
}

type memPayments struct {
	*faults
	mu     sync.Mutex
	rows   []models.PaymentRecord
	nextID int64
}

func newMemPayments() *memPayments {
	return &memPayments{faults: newFaults()}
}

func (m *memPayments) Log(ctx context.Context, rec *models.PaymentRecord) error {
	if err := m.hit("log"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.OrderID == rec.OrderID {
			return storeerr.Duplicate(fmt.Errorf("order %s logged", rec.OrderID))
		}
	}
	m.nextID++
	rec.ID = m.nextID
	m.rows = append(m.rows, *rec)
	return nil
}

func (m *memPayments) Release(ctx context.Context, orderID string) error {
	if err := m.hit("release"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.OrderID != orderID {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

func (m *memPayments) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error) {
	if err := m.hit("find"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.rows {
		if rec.OrderID == orderID {
			return &rec, nil
		}
	}
	return nil, nil
}

type memGenerations struct {
	*faults
	mu   sync.Mutex
	rows []models.GenerationLog
}

func newMemGenerations() *memGenerations {
	return &memGenerations{faults: newFaults()}
}

func (m *memGenerations) Log(ctx context.Context, entry *models.GenerationLog) error {
	if err := m.hit("log"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *entry)
	return nil
}

func (m *memGenerations) CountByType(ctx context.Context) (map[string]int, error) {
	if err := m.hit("count"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, entry := range m.rows {
		counts[entry.Kind]++
	}
	return counts, nil
}
