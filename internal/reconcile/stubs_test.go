package reconcile

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/rowanpress/members-backend/internal/gateway"
	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// memStore is an in-memory Store for engine tests.
type memStore struct {
	members   map[uuid.UUID]*models.Member
	customers []models.Customer
	subs      map[string]models.Subscription

	cancelFlagWrites map[string]bool
	createCustomerErr error
}

func newMemStore() *memStore {
	return &memStore{
		members:          map[uuid.UUID]*models.Member{},
		subs:             map[string]models.Subscription{},
		cancelFlagWrites: map[string]bool{},
	}
}

func (s *memStore) MemberByID(_ context.Context, memberID uuid.UUID) (*models.Member, error) {
	return s.members[memberID], nil
}

func (s *memStore) CustomersByMember(_ context.Context, memberID uuid.UUID) ([]models.Customer, error) {
	var out []models.Customer
	for _, c := range s.customers {
		if c.MemberID == memberID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) CustomerForMember(_ context.Context, memberID uuid.UUID, customerID string) (*models.Customer, error) {
	for i := range s.customers {
		if s.customers[i].MemberID == memberID && s.customers[i].CustomerID == customerID {
			c := s.customers[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateCustomer(_ context.Context, customer *models.Customer) error {
	if s.createCustomerErr != nil {
		return s.createCustomerErr
	}
	for _, c := range s.customers {
		if c.CustomerID == customer.CustomerID {
			return fmt.Errorf("duplicate key value violates unique constraint %q", "customers_customer_id_key")
		}
	}
	s.customers = append(s.customers, *customer)
	return nil
}

func (s *memStore) UpsertCustomer(_ context.Context, customer *models.Customer) error {
	for i := range s.customers {
		if s.customers[i].CustomerID == customer.CustomerID {
			s.customers[i] = *customer
			return nil
		}
	}
	s.customers = append(s.customers, *customer)
	return nil
}

func (s *memStore) SubscriptionsByMember(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error) {
	customers, _ := s.CustomersByMember(ctx, memberID)
	var out []models.Subscription
	for _, sub := range s.subs {
		for _, c := range customers {
			if sub.CustomerID == c.CustomerID {
				out = append(out, sub)
			}
		}
	}
	return out, nil
}

func (s *memStore) SubscriptionsByCustomer(_ context.Context, customerID string) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.CustomerID == customerID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *memStore) SubscriptionForMember(ctx context.Context, memberID uuid.UUID, subscriptionID string) (*models.Subscription, error) {
	sub, ok := s.subs[subscriptionID]
	if !ok {
		return nil, nil
	}
	customers, _ := s.CustomersByMember(ctx, memberID)
	for _, c := range customers {
		if sub.CustomerID == c.CustomerID {
			out := sub
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpsertSubscription(_ context.Context, subscription *models.Subscription) error {
	s.subs[subscription.SubscriptionID] = *subscription
	return nil
}

func (s *memStore) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) error {
	sub, ok := s.subs[subscriptionID]
	if ok {
		sub.CancelAtPeriodEnd = cancel
		s.subs[subscriptionID] = sub
	}
	s.cancelFlagWrites[subscriptionID] = cancel
	return nil
}

// stubGateway is an in-memory gateway.Client. calls counts every remote
// operation so tests can assert the configuration guard fires before any
// traffic.
type stubGateway struct {
	unconfigured bool
	calls        int

	customers      map[string]*gateway.Customer
	subscriptions  map[string]*gateway.Subscription
	paymentMethods map[string]*gateway.PaymentMethod
	prices         map[string]*gateway.Price

	customerErrs  map[string]error
	changePlanErr map[string]error
	cancelErr     map[string]error

	createdCustomers []gateway.CustomerCreateParams
	createdSubs      []string
	cancelCalls      []string
	flagWrites       map[string]bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		customers:      map[string]*gateway.Customer{},
		subscriptions:  map[string]*gateway.Subscription{},
		paymentMethods: map[string]*gateway.PaymentMethod{},
		prices:         map[string]*gateway.Price{},
		customerErrs:   map[string]error{},
		changePlanErr:  map[string]error{},
		cancelErr:      map[string]error{},
		flagWrites:     map[string]bool{},
	}
}

func (g *stubGateway) Configured() bool {
	return !g.unconfigured
}

func (g *stubGateway) GetCustomer(_ context.Context, id string) (*gateway.Customer, error) {
	g.calls++
	if err := g.customerErrs[id]; err != nil {
		return nil, err
	}
	return g.customers[id], nil
}

func (g *stubGateway) CreateCustomer(_ context.Context, params gateway.CustomerCreateParams) (*gateway.Customer, error) {
	g.calls++
	g.createdCustomers = append(g.createdCustomers, params)
	created := &gateway.Customer{
		ID:    fmt.Sprintf("cust_new_%d", len(g.createdCustomers)),
		Email: params.Email,
		Name:  params.Name,
	}
	g.customers[created.ID] = created
	return created, nil
}

func (g *stubGateway) GetSubscription(_ context.Context, id string) (*gateway.Subscription, error) {
	g.calls++
	sub, ok := g.subscriptions[id]
	if !ok {
		return nil, nil
	}
	out := *sub
	return &out, nil
}

func (g *stubGateway) CreateSubscription(_ context.Context, customerID, planID string) (*gateway.Subscription, error) {
	g.calls++
	g.createdSubs = append(g.createdSubs, planID)
	price := g.prices[planID]
	if price == nil {
		price = &gateway.Price{ID: planID, Interval: "month", Currency: "usd"}
	}
	sub := &gateway.Subscription{
		ID:         fmt.Sprintf("sub_new_%d", len(g.createdSubs)),
		CustomerID: customerID,
		Status:     "active",
		Price:      price,
	}
	g.subscriptions[sub.ID] = sub
	return sub, nil
}

func (g *stubGateway) ChangeSubscriptionPlan(_ context.Context, subscriptionID, planID string) (*gateway.Subscription, error) {
	g.calls++
	if err := g.changePlanErr[subscriptionID]; err != nil {
		return nil, err
	}
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", subscriptionID)
	}
	price := g.prices[planID]
	if price == nil {
		price = &gateway.Price{ID: planID, Interval: "month", Currency: "usd"}
	}
	sub.Price = price
	out := *sub
	return &out, nil
}

func (g *stubGateway) CancelSubscription(_ context.Context, subscriptionID string) (*gateway.Subscription, error) {
	g.calls++
	g.cancelCalls = append(g.cancelCalls, subscriptionID)
	if err := g.cancelErr[subscriptionID]; err != nil {
		return nil, err
	}
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", subscriptionID)
	}
	sub.Status = "canceled"
	out := *sub
	return &out, nil
}

func (g *stubGateway) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	return g.setFlag(subscriptionID, true)
}

func (g *stubGateway) ContinueSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	return g.setFlag(subscriptionID, false)
}

func (g *stubGateway) setFlag(subscriptionID string, cancel bool) (*gateway.Subscription, error) {
	g.calls++
	g.flagWrites[subscriptionID] = cancel
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", subscriptionID)
	}
	sub.CancelAtPeriodEnd = cancel
	out := *sub
	return &out, nil
}

func (g *stubGateway) GetCardPaymentMethod(_ context.Context, id string) (*gateway.PaymentMethod, error) {
	g.calls++
	return g.paymentMethods[id], nil
}

// stubCatalog serves canned plans.
type stubCatalog struct {
	plans []models.BillingPlan
}

func (c *stubCatalog) Plans(context.Context) ([]models.BillingPlan, error) {
	return c.plans, nil
}

func (c *stubCatalog) ComplimentaryPlan(_ context.Context, currency string) (*models.BillingPlan, error) {
	for i := range c.plans {
		if c.plans[i].Complimentary && c.plans[i].Currency == currency {
			return &c.plans[i], nil
		}
	}
	return nil, nil
}

func newTestEngine(t *testing.T, store Store, gw gateway.Client, catalog *stubCatalog) *Engine {
	t.Helper()
	engine, err := NewEngine(store, gw, catalog, testLogger(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return engine
}
