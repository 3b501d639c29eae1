package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"

	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
	pkgstripe "github.com/rowanpress/members-backend/pkg/stripe"
)

// cancellationReasonKey is the metadata field admin tooling writes when
// it cancels a subscription on the member's behalf.
const cancellationReasonKey = "cancellation_reason"

// NewStripeClient wraps the shared Stripe client behind the engine-facing
// Client interface.
func NewStripeClient(client *pkgstripe.Client) Client {
	return &stripeClient{client: client}
}

type stripeClient struct {
	client *pkgstripe.Client
}

func (c *stripeClient) Configured() bool {
	return c != nil && c.client.Configured()
}

func (c *stripeClient) api() (*stripe.Client, error) {
	if !c.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayNotConfigured, "stripe client has no credentials")
	}
	return c.client.API(), nil
}

func (c *stripeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	params := &stripe.CustomerRetrieveParams{}
	params.AddExpand("subscriptions")
	cust, err := api.V1Customers.Retrieve(ctx, id, params)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	return convertCustomer(cust), nil
}

func (c *stripeClient) CreateCustomer(ctx context.Context, params CustomerCreateParams) (*Customer, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	create := &stripe.CustomerCreateParams{}
	if strings.TrimSpace(params.Email) != "" {
		create.Email = stripe.String(params.Email)
	}
	if strings.TrimSpace(params.Name) != "" {
		create.Name = stripe.String(params.Name)
	}
	cust, err := api.V1Customers.Create(ctx, create)
	if err != nil {
		return nil, err
	}
	return convertCustomer(cust), nil
}

func (c *stripeClient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("default_payment_method")
	sub, err := api.V1Subscriptions.Retrieve(ctx, id, params)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	return convertSubscription(sub), nil
}

func (c *stripeClient) CreateSubscription(ctx context.Context, customerID, planID string) (*Subscription, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(planID)},
		},
	}
	params.AddExpand("default_payment_method")
	sub, err := api.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return convertSubscription(sub), nil
}

func (c *stripeClient) ChangeSubscriptionPlan(ctx context.Context, subscriptionID, planID string) (*Subscription, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	current, err := api.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, err
	}
	itemID := firstItemID(current)
	if itemID == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "subscription %s has no billable item", subscriptionID)
	}
	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{ID: stripe.String(itemID), Price: stripe.String(planID)},
		},
	}
	params.AddExpand("default_payment_method")
	sub, err := api.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return convertSubscription(sub), nil
}

func (c *stripeClient) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	sub, err := api.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	if err != nil {
		return nil, err
	}
	return convertSubscription(sub), nil
}

func (c *stripeClient) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return c.setCancelAtPeriodEnd(ctx, subscriptionID, true)
}

func (c *stripeClient) ContinueSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return c.setCancelAtPeriodEnd(ctx, subscriptionID, false)
}

func (c *stripeClient) setCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	sub, err := api.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return convertSubscription(sub), nil
}

func (c *stripeClient) GetCardPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	pm, err := api.V1PaymentMethods.Retrieve(ctx, id, nil)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	return convertPaymentMethod(pm), nil
}

func firstItemID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	return sub.Items.Data[0].ID
}

func convertCustomer(cust *stripe.Customer) *Customer {
	if cust == nil {
		return nil
	}
	out := &Customer{
		ID:      cust.ID,
		Email:   cust.Email,
		Name:    cust.Name,
		Deleted: cust.Deleted,
	}
	if cust.Subscriptions != nil {
		for _, sub := range cust.Subscriptions.Data {
			if converted := convertSubscription(sub); converted != nil {
				out.Subscriptions = append(out.Subscriptions, converted)
			}
		}
	}
	return out
}

func convertSubscription(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:                   sub.ID,
		Status:               strings.ToLower(string(sub.Status)),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		StartDate:            sub.StartDate,
		DefaultPaymentMethod: convertPaymentMethodRef(sub.DefaultPaymentMethod),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if reason, ok := sub.Metadata[cancellationReasonKey]; ok {
		out.CancellationReason = reason
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			out.Price = &Price{
				ID:       item.Price.ID,
				Nickname: item.Price.Nickname,
				Amount:   item.Price.UnitAmount,
				Currency: strings.ToLower(string(item.Price.Currency)),
			}
			if item.Price.Recurring != nil {
				out.Price.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	return out
}

// convertPaymentMethodRef maps the SDK's always-a-struct representation
// back onto the wire's three shapes: absent, bare id, expanded object.
func convertPaymentMethodRef(pm *stripe.PaymentMethod) PaymentMethodRef {
	if pm == nil || pm.ID == "" {
		return UnsetPaymentMethodRef()
	}
	if pm.Card != nil {
		return ExpandedPaymentMethodRef(convertPaymentMethod(pm))
	}
	return PaymentMethodIDRef(pm.ID)
}

func convertPaymentMethod(pm *stripe.PaymentMethod) *PaymentMethod {
	if pm == nil {
		return nil
	}
	out := &PaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.CardLast4 = pm.Card.Last4
	}
	return out
}

func isMissing(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound ||
			stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
