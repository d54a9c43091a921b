package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider returns a provider authenticated with secretKey.
func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

// GetSubscription fetches the current state of subscription id.
func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", id, err)
	}
	return fromStripe(sub)
}

func fromStripe(sub *stripe.Subscription) (*Subscription, error) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return nil, fmt.Errorf("subscription %s has no items", sub.ID)
	}
	item := sub.Items.Data[0]
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		PriceID:           item.Price.ID,
		CurrentPeriodEnd:  time.Unix(item.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		UserID:            sub.Metadata["userId"],
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

// CreateCheckoutSession opens a subscription checkout. Existing customers are
// reused; new buyers are identified by email.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (string, error) {
	meta := map[string]string{"userId": cp.UserID}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(cp.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:       stripe.String(cp.SuccessURL),
		CancelURL:        stripe.String(cp.CancelURL),
		Metadata:         meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
		ConsentCollection: &stripe.CheckoutSessionConsentCollectionParams{
			TermsOfService: stripe.String(string(stripe.CheckoutSessionConsentCollectionTermsOfServiceRequired)),
		},
		CustomText: &stripe.CheckoutSessionCustomTextParams{
			TermsOfServiceAcceptance: &stripe.CheckoutSessionCustomTextTermsOfServiceAcceptanceParams{
				Message: stripe.String(fmt.Sprintf("I have read and agree to the [terms of service](%s).", cp.TermsURL)),
			},
		},
	}
	if cp.CustomerID != "" {
		params.Customer = stripe.String(cp.CustomerID)
	} else if cp.Email != "" {
		params.CustomerEmail = stripe.String(cp.Email)
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession opens the customer billing portal.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	if sess.URL == "" {
		return "", errors.New("portal session has no url")
	}
	return sess.URL, nil
}

// PlanName returns the product name behind priceID.
func (p *StripeProvider) PlanName(ctx context.Context, priceID string) (string, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	params.AddExpand("product")
	price, err := p.api.Prices.Get(priceID, params)
	if err != nil {
		return "", fmt.Errorf("retrieve price %s: %w", priceID, err)
	}
	if price.Product != nil && price.Product.Name != "" {
		return price.Product.Name, nil
	}
	return price.Nickname, nil
}
