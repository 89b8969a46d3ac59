package core

import (
	"fmt"
	"strings"
	"time"
)

// PurchaseDateLayout is the absolute date-time encoding used by the API.
// Seconds are mandatory; an explicit zone (Z or an offset) is required.
const PurchaseDateLayout = time.RFC3339

type (
	// MonthKey is the zero-padded YYYY-MM projection of a purchase date.
	MonthKey string

	Store struct {
		Name string `json:"name"`
	}

	Amount struct {
		Amount Money `json:"amount"`
	}

	// Receipt is the summary record of one purchase. Key is stable across
	// fetches and never changes once assigned.
	Receipt struct {
		Key          string `json:"key"`
		Store        Store  `json:"store"`
		PurchaseDate string `json:"purchaseDate"`
		TotalAmount  Amount `json:"totalAmount"`
	}

	LineItem struct {
		Text     string  `json:"text"`
		Quantity float64 `json:"quantity"`
		Cost     Money   `json:"cost"`
	}

	// ReceiptDetail is the expanded line-item payload for one Receipt.
	ReceiptDetail struct {
		Key       string     `json:"key"`
		StoreName string     `json:"storeName,omitempty"`
		Items     []LineItem `json:"items"`
	}
)

// Amount returns the receipt total.
func (r Receipt) Amount() Money {
	return r.TotalAmount.Amount
}

// PurchasedAt parses the purchase timestamp. The returned time keeps the
// zone it was encoded in; no conversion is applied.
func (r Receipt) PurchasedAt() (time.Time, error) {
	t, err := time.Parse(PurchaseDateLayout, r.PurchaseDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: receipt %q purchase date %q: %v", ErrParse, r.Key, r.PurchaseDate, err)
	}
	return t, nil
}

// Validate checks the invariants a fetched receipt must satisfy.
func (r Receipt) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return ErrEmptyKey
	}
	if r.Amount().IsNegative() {
		return fmt.Errorf("receipt %q: %w", r.Key, ErrNegativeAmount)
	}
	return nil
}

// MonthKeyOf derives the grouping key of a receipt.
func MonthKeyOf(r Receipt) (MonthKey, error) {
	t, err := r.PurchasedAt()
	if err != nil {
		return "", err
	}
	return MonthKey(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))), nil
}

func (k MonthKey) String() string {
	return string(k)
}

// ReceiptList is the cached, fully paginated list of one sender.
type ReceiptList struct {
	Sender   string    `json:"sender"`
	Receipts []Receipt `json:"receipts"`
}
