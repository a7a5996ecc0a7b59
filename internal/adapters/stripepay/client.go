// Package stripepay reads revenue figures from Stripe for the KPI
// dashboard. It only reads; billing mutations stay in Stripe's own UI.
package stripepay

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/balance"
	"github.com/stripe/stripe-go/v81/subscription"
)

// RevenueSummary is the revenue snapshot for one Stripe account.
type RevenueSummary struct {
	ActiveSubscriptions int       `json:"active_subscriptions"`
	MRRCents            int64     `json:"mrr_cents"`
	Currency            string    `json:"currency"`
	FetchedAt           time.Time `json:"fetched_at"`
}

// Source fetches revenue figures. The KPI aggregator depends on this
// interface so tests can stub Stripe out.
type Source interface {
	GetRevenueSummary(ctx context.Context) (*RevenueSummary, error)
	Ping(ctx context.Context) error
}

// Client is a read-only Stripe client.
type Client struct {
	key string
}

// NewClient creates a Stripe client. The key is set process-wide, which
// is how the stripe-go SDK works.
func NewClient(key string) *Client {
	stripe.Key = key
	return &Client{key: key}
}

// GetRevenueSummary lists active subscriptions and sums their recurring
// value into a monthly figure.
func (c *Client) GetRevenueSummary(ctx context.Context) (*RevenueSummary, error) {
	params := &stripe.SubscriptionListParams{
		Status: stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	summary := &RevenueSummary{FetchedAt: time.Now()}
	iter := subscription.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		summary.ActiveSubscriptions++
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			summary.MRRCents += monthlyAmount(item.Price) * item.Quantity
			if summary.Currency == "" {
				summary.Currency = string(item.Price.Currency)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return summary, nil
}

// monthlyAmount normalizes a price's unit amount to a per-month figure.
func monthlyAmount(price *stripe.Price) int64 {
	if price.Recurring == nil {
		return 0
	}
	amount := price.UnitAmount
	count := price.Recurring.IntervalCount
	if count <= 0 {
		count = 1
	}
	switch price.Recurring.Interval {
	case stripe.PriceRecurringIntervalMonth:
		return amount / count
	case stripe.PriceRecurringIntervalYear:
		return amount / (12 * count)
	case stripe.PriceRecurringIntervalWeek:
		return amount * 4 / count
	case stripe.PriceRecurringIntervalDay:
		return amount * 30 / count
	default:
		return 0
	}
}

// Ping verifies the API key with a cheap balance read.
func (c *Client) Ping(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := balance.Get(params); err != nil {
		return fmt.Errorf("stripe ping: %w", err)
	}
	return nil
}
