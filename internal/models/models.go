package models

import "time"

// Account is the billing identity keyed by a normalized email-like string.
type Account struct {
	Key                 string     `json:"email" db:"email"`
	Credits             int        `json:"credits" db:"credits"`
	TelegramID          *int64     `json:"telegram_id,omitempty" db:"telegram_id"`
	DisplayName         string     `json:"display_name,omitempty" db:"display_name"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	IsPremium           bool       `json:"is_premium" db:"is_premium"`
	Generations         int        `json:"generations" db:"generations"`
	Tariff              string     `json:"tariff,omitempty" db:"tariff"`
	SubscriptionExpires *time.Time `json:"subscription_expires,omitempty" db:"subscription_expires"`
	LastPaymentAt       *time.Time `json:"last_payment_at,omitempty" db:"last_payment_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// Profile carries the optional fields refreshed on every EnsureAccount call.
type Profile struct {
	TelegramID  *int64
	DisplayName string
}

// Purchase describes the account-side effects of a completed payment.
type Purchase struct {
	Tariff              string
	Premium             bool
	PaidAt              time.Time
	SubscriptionExpires *time.Time
}

type Quiz struct {
	ID        string     `json:"id"`
	OwnerKey  string     `json:"owner_email"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	Hints     []string   `json:"hints"`
	IsPublic  bool       `json:"is_public"`
	CreatedAt time.Time  `json:"created_at"`
}

type PaymentRecord struct {
	ID           int64     `json:"id" db:"id"`
	AccountKey   string    `json:"email" db:"email"`
	OrderID      string    `json:"order_id" db:"order_id"`
	Product      string    `json:"product" db:"product"`
	CreditsAdded int       `json:"credits_added" db:"credits_added"`
	AmountRUB    int       `json:"amount_rub" db:"amount_rub"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type GenerationLog struct {
	ID         int64     `json:"id" db:"id"`
	AccountKey string    `json:"email" db:"email"`
	TelegramID *int64    `json:"telegram_id,omitempty" db:"telegram_id"`
	Kind       string    `json:"generation_type" db:"generation_type"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Product is a purchasable credit package.
type Product struct {
	Key      string
	Name     string
	PriceRUB int
	Credits  int
	// Duration is zero for one-off packages.
	Duration time.Duration
}
