package gateway

import "context"

// Client defines the payment gateway interactions the reconciliation
// engine relies on. Lookup methods return (nil, nil) when the gateway
// reports the resource does not exist, so callers can distinguish
// "missing" from transport failure without inspecting provider errors.
type Client interface {
	// Configured reports whether the gateway holds usable credentials.
	// Every other method fails when it returns false.
	Configured() bool

	GetCustomer(ctx context.Context, id string) (*Customer, error)
	CreateCustomer(ctx context.Context, params CustomerCreateParams) (*Customer, error)

	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CreateSubscription(ctx context.Context, customerID, planID string) (*Subscription, error)
	ChangeSubscriptionPlan(ctx context.Context, subscriptionID, planID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)
	ContinueSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)

	GetCardPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
}

// CustomerCreateParams captures the fields used when the engine creates
// a remote customer for a member.
type CustomerCreateParams struct {
	Email string
	Name  string
}
