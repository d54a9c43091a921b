package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

// SubscriptionByUser returns the stored subscription of userID.
func (s *Store) SubscriptionByUser(ctx context.Context, userID string) (*subscription.Record, error) {
	var (
		rec                  subscription.Record
		periodEnd            int64
		cancel               bool
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, stripe_customer_id, stripe_subscription_id,
		stripe_price_id, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM user_subscriptions WHERE user_id = ?`, userID).
		Scan(&rec.UserID, &rec.CustomerID, &rec.SubscriptionID, &rec.PriceID,
			&periodEnd, &cancel, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.subscription", "subscription")
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	rec.CurrentPeriodEnd = fromMillis(periodEnd)
	rec.CancelAtPeriodEnd = cancel
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

// UpsertSubscription creates or updates the subscription keyed by user id.
// Replaying the same event leaves the row unchanged apart from updated_at.
func (s *Store) UpsertSubscription(ctx context.Context, rec subscription.Record) error {
	now := toMillis(s.now())
	return s.runTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO user_subscriptions
			(user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
			 current_period_end, cancel_at_period_end, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				stripe_customer_id = excluded.stripe_customer_id,
				stripe_subscription_id = excluded.stripe_subscription_id,
				stripe_price_id = excluded.stripe_price_id,
				current_period_end = excluded.current_period_end,
				cancel_at_period_end = excluded.cancel_at_period_end,
				updated_at = excluded.updated_at`,
			rec.UserID, rec.CustomerID, rec.SubscriptionID, rec.PriceID,
			toMillis(rec.CurrentPeriodEnd), rec.CancelAtPeriodEnd, now, now)
		if err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}
		return nil
	})
}

// DeleteSubscriptionByCustomer removes the subscription of a billing
// customer and reports how many rows went away. No matching row is not an
// error.
func (s *Store) DeleteSubscriptionByCustomer(ctx context.Context, customerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM user_subscriptions WHERE stripe_customer_id = ?", customerID)
	if err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}
	return n, nil
}

// SetCustomer records the billing customer of userID.
func (s *Store) SetCustomer(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_customers (user_id, stripe_customer_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = excluded.stripe_customer_id`,
		userID, customerID, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("set customer: %w", err)
	}
	return nil
}

// CustomerByUser returns the billing customer id of userID.
func (s *Store) CustomerByUser(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT stripe_customer_id FROM user_customers WHERE user_id = ?", userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("store.customer", "billing customer")
	}
	if err != nil {
		return "", fmt.Errorf("get customer: %w", err)
	}
	return id, nil
}
