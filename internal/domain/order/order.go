package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment states of an order as reported by the storefront backend.
const (
	PaymentPending   = "Pending"
	PaymentSuccess   = "Success"
	PaymentFailed    = "Failed"
	PaymentCancelled = "Cancelled"
)

// Item is one line of an order.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Record is an order row as returned by the backend. Rows of the same order repeat the
// parent's status and payment fields and carry a slice of its items.
type Record struct {
	OrderReference string          `json:"order_reference"`
	Status         string          `json:"status"`
	Payment        string          `json:"payment"`
	PaymentMethod  string          `json:"payment_method"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Address        string          `json:"address"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []Item          `json:"items"`
}

// Order is a customer order with a single status/payment pair.
type Order struct {
	Reference     string          `json:"order_reference"`
	Status        string          `json:"status"`
	Payment       string          `json:"payment"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Address       string          `json:"address"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []Item          `json:"items"`
}

// Aggregate groups records by order reference. The first record seen for a reference decides
// the order's status, payment and totals; items of later records are appended. Orders keep the
// position of their first record. Records without a reference are skipped.
func Aggregate(records []Record) []Order {
	orders := make([]Order, 0, len(records))
	index := make(map[string]int, len(records))

	for _, r := range records {
		if r.OrderReference == "" {
			continue
		}
		if i, ok := index[r.OrderReference]; ok {
			orders[i].Items = append(orders[i].Items, r.Items...)
			continue
		}
		index[r.OrderReference] = len(orders)
		orders = append(orders, Order{
			Reference:     r.OrderReference,
			Status:        r.Status,
			Payment:       r.Payment,
			PaymentMethod: r.PaymentMethod,
			TotalAmount:   r.TotalAmount,
			Address:       r.Address,
			CreatedAt:     r.CreatedAt,
			Items:         append([]Item(nil), r.Items...),
		})
	}
	return orders
}

// IsMpesa reports whether the order was placed with M-Pesa.
func (o Order) IsMpesa() bool {
	m := strings.ToLower(strings.ReplaceAll(o.PaymentMethod, "-", ""))
	return m == "mpesa"
}

// CanRetryPayment reports whether the customer may push a new STK prompt for this order.
func (o Order) CanRetryPayment() bool {
	if !o.IsMpesa() {
		return false
	}
	switch o.Payment {
	case PaymentFailed, PaymentPending, PaymentCancelled:
		return true
	default:
		return false
	}
}

// Find returns the order with the given reference.
func Find(orders []Order, reference string) (Order, bool) {
	for _, o := range orders {
		if o.Reference == reference {
			return o, true
		}
	}
	return Order{}, false
}
