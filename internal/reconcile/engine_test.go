package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/rowanpress/members-backend/internal/gateway"
	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/enums"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
)

func usdPlans() *stubCatalog {
	return &stubCatalog{plans: []models.BillingPlan{
		{ID: "price_monthly_usd", Interval: enums.BillingIntervalMonth, Amount: 500, Currency: "usd"},
		{ID: "price_comp_usd", Interval: enums.BillingIntervalMonth, Amount: 0, Currency: "usd", Complimentary: true},
		{ID: "price_comp_eur", Interval: enums.BillingIntervalMonth, Amount: 0, Currency: "eur", Complimentary: true},
	}}
}

func TestOperationsFailFastWhenGatewayUnconfigured(t *testing.T) {
	store := newMemStore()
	gw := newStubGateway()
	gw.unconfigured = true
	engine := newTestEngine(t, store, gw, usdPlans())

	memberID := uuid.New()
	flag := true

	checks := []struct {
		name string
		run  func() error
	}{
		{"link customer", func() error { return engine.LinkCustomer(context.Background(), memberID, "cust_1") }},
		{"link subscription", func() error {
			return engine.LinkSubscription(context.Background(), memberID, &gateway.Subscription{ID: "sub_1"})
		}},
		{"update cancellation", func() error {
			_, err := engine.UpdateSubscriptionCancellation(context.Background(), memberID, "sub_1", &flag)
			return err
		}},
		{"grant complimentary", func() error { return engine.GrantComplimentary(context.Background(), memberID) }},
		{"cancel complimentary", func() error {
			_, err := engine.CancelComplimentary(context.Background(), memberID)
			return err
		}},
	}
	for _, check := range checks {
		err := check.run()
		if !pkgerrors.HasCode(err, pkgerrors.CodeGatewayNotConfigured) {
			t.Fatalf("%s: expected gateway-not-configured error, got %v", check.name, err)
		}
	}
	if gw.calls != 0 {
		t.Fatalf("expected zero gateway calls, got %d", gw.calls)
	}
}

func TestLinkCustomerMissingAtGatewayIsNoOp(t *testing.T) {
	store := newMemStore()
	gw := newStubGateway()
	engine := newTestEngine(t, store, gw, usdPlans())

	if err := engine.LinkCustomer(context.Background(), uuid.New(), "cust_gone"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if len(store.customers) != 0 {
		t.Fatalf("no customer row should be written")
	}
}

func TestLinkCustomerLinksAllSubscriptions(t *testing.T) {
	store := newMemStore()
	gw := newStubGateway()
	memberID := uuid.New()

	subA := &gateway.Subscription{
		ID:         "sub_a",
		CustomerID: "cust_1",
		Status:     "active",
		Price:      &gateway.Price{ID: "price_monthly_usd", Nickname: "Monthly", Interval: "month", Amount: 500, Currency: "usd"},
	}
	subB := &gateway.Subscription{
		ID:         "sub_b",
		CustomerID: "cust_1",
		Status:     "trialing",
		Price:      &gateway.Price{ID: "price_yearly_usd", Interval: "year", Amount: 5000, Currency: "usd"},
	}
	gw.subscriptions["sub_a"] = subA
	gw.subscriptions["sub_b"] = subB
	gw.customers["cust_1"] = &gateway.Customer{
		ID:            "cust_1",
		Email:         "jo@example.com",
		Name:          "Jo",
		Subscriptions: []*gateway.Subscription{subA, subB},
	}

	engine := newTestEngine(t, store, gw, usdPlans())
	if err := engine.LinkCustomer(context.Background(), memberID, "cust_1"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if len(store.customers) != 1 || store.customers[0].CustomerID != "cust_1" {
		t.Fatalf("expected one linked customer, got %+v", store.customers)
	}
	if store.customers[0].MemberID != memberID {
		t.Fatalf("customer bound to wrong member")
	}
	if len(store.subs) != 2 {
		t.Fatalf("expected both subscriptions mirrored, got %d", len(store.subs))
	}
	if store.subs["sub_b"].PlanNickname != "year" {
		t.Fatalf("expected interval nickname fallback, got %q", store.subs["sub_b"].PlanNickname)
	}
}

func TestLinkCustomerAlreadyLinkedConflicts(t *testing.T) {
	store := newMemStore()
	otherMember := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: otherMember})

	gw := newStubGateway()
	gw.customers["cust_1"] = &gateway.Customer{ID: "cust_1"}

	engine := newTestEngine(t, store, gw, usdPlans())
	err := engine.LinkCustomer(context.Background(), uuid.New(), "cust_1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLinkSubscriptionRequiresLinkedCustomer(t *testing.T) {
	store := newMemStore()
	gw := newStubGateway()
	engine := newTestEngine(t, store, gw, usdPlans())

	err := engine.LinkSubscription(context.Background(), uuid.New(), &gateway.Subscription{
		ID:         "sub_1",
		CustomerID: "cust_unknown",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnlinkedCustomer) {
		t.Fatalf("expected unlinked-customer error, got %v", err)
	}
	if len(store.subs) != 0 {
		t.Fatalf("no subscription row should be written")
	}
}

func TestLinkSubscriptionUsesCanonicalRecord(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})

	gw := newStubGateway()
	gw.subscriptions["sub_1"] = &gateway.Subscription{
		ID:         "sub_1",
		CustomerID: "cust_1",
		Status:     "past_due",
		Price:      &gateway.Price{ID: "price_monthly_usd", Interval: "month", Amount: 500, Currency: "USD"},
	}

	engine := newTestEngine(t, store, gw, usdPlans())
	// Caller's snapshot claims active; the canonical record says past_due.
	stale := &gateway.Subscription{
		ID:         "sub_1",
		CustomerID: "cust_1",
		Status:     "active",
		Price:      &gateway.Price{ID: "price_monthly_usd", Interval: "month", Amount: 500, Currency: "usd"},
	}
	if err := engine.LinkSubscription(context.Background(), memberID, stale); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	row := store.subs["sub_1"]
	if row.Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("expected canonical status past_due, got %q", row.Status)
	}
	if row.PlanCurrency != "usd" {
		t.Fatalf("expected lowered currency, got %q", row.PlanCurrency)
	}
}

func TestLinkSubscriptionResolvesCardDigits(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})

	gw := newStubGateway()
	gw.subscriptions["sub_1"] = &gateway.Subscription{
		ID:                   "sub_1",
		CustomerID:           "cust_1",
		Status:               "active",
		Price:                &gateway.Price{ID: "price_monthly_usd", Interval: "month", Amount: 500, Currency: "usd"},
		DefaultPaymentMethod: gateway.PaymentMethodIDRef("pm_1"),
	}
	gw.paymentMethods["pm_1"] = &gateway.PaymentMethod{ID: "pm_1", CardLast4: "4242"}

	engine := newTestEngine(t, store, gw, usdPlans())
	if err := engine.LinkSubscription(context.Background(), memberID, gw.subscriptions["sub_1"]); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	row := store.subs["sub_1"]
	if row.CardLast4 == nil || *row.CardLast4 != "4242" {
		t.Fatalf("expected card digits mirrored, got %v", row.CardLast4)
	}
}

func TestLinkSubscriptionIsIdempotent(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})

	gw := newStubGateway()
	gw.subscriptions["sub_1"] = &gateway.Subscription{
		ID:         "sub_1",
		CustomerID: "cust_1",
		Status:     "active",
		Price:      &gateway.Price{ID: "price_monthly_usd", Interval: "month", Amount: 500, Currency: "usd"},
	}

	engine := newTestEngine(t, store, gw, usdPlans())
	for i := 0; i < 3; i++ {
		if err := engine.LinkSubscription(context.Background(), memberID, gw.subscriptions["sub_1"]); err != nil {
			t.Fatalf("link %d: %v", i, err)
		}
	}
	if len(store.subs) != 1 {
		t.Fatalf("expected a single mirrored row, got %d", len(store.subs))
	}
}

func TestUpdateCancellationRequiresExplicitFlag(t *testing.T) {
	store := newMemStore()
	gw := newStubGateway()
	engine := newTestEngine(t, store, gw, usdPlans())

	_, err := engine.UpdateSubscriptionCancellation(context.Background(), uuid.New(), "sub_1", nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("expected zero gateway calls, got %d", gw.calls)
	}
}

func TestUpdateCancellationUnknownSubscription(t *testing.T) {
	store := newMemStore()
	gw := newStubGateway()
	engine := newTestEngine(t, store, gw, usdPlans())

	flag := true
	_, err := engine.UpdateSubscriptionCancellation(context.Background(), uuid.New(), "sub_missing", &flag)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestUpdateCancellationWritesGatewayThenFlag(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})
	store.subs["sub_1"] = models.Subscription{
		SubscriptionID: "sub_1",
		CustomerID:     "cust_1",
		Status:         enums.SubscriptionStatusActive,
	}

	gw := newStubGateway()
	gw.subscriptions["sub_1"] = &gateway.Subscription{ID: "sub_1", CustomerID: "cust_1", Status: "active"}

	engine := newTestEngine(t, store, gw, usdPlans())
	flag := true
	sub, err := engine.UpdateSubscriptionCancellation(context.Background(), memberID, "sub_1", &flag)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatalf("expected flag set on returned row")
	}
	if got, ok := gw.flagWrites["sub_1"]; !ok || !got {
		t.Fatalf("expected gateway flag write, got %v", gw.flagWrites)
	}
	if got, ok := store.cancelFlagWrites["sub_1"]; !ok || !got {
		t.Fatalf("expected local flag write, got %v", store.cancelFlagWrites)
	}

	flag = false
	if _, err := engine.UpdateSubscriptionCancellation(context.Background(), memberID, "sub_1", &flag); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if store.cancelFlagWrites["sub_1"] {
		t.Fatalf("expected flag cleared locally")
	}
}

func TestGrantComplimentaryMovesActiveSubscription(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})
	store.subs["sub_1"] = models.Subscription{
		SubscriptionID: "sub_1",
		CustomerID:     "cust_1",
		Status:         enums.SubscriptionStatusActive,
		PlanCurrency:   "eur",
	}

	gw := newStubGateway()
	gw.subscriptions["sub_1"] = &gateway.Subscription{
		ID:         "sub_1",
		CustomerID: "cust_1",
		Status:     "active",
		Price:      &gateway.Price{ID: "price_monthly_eur", Interval: "month", Amount: 500, Currency: "eur"},
	}
	gw.prices["price_comp_eur"] = &gateway.Price{ID: "price_comp_eur", Interval: "month", Amount: 0, Currency: "eur"}

	engine := newTestEngine(t, store, gw, usdPlans())
	if err := engine.GrantComplimentary(context.Background(), memberID); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// The currency comes from the member's own subscription, not the
	// catalog's monthly fallback.
	row := store.subs["sub_1"]
	if row.PlanID != "price_comp_eur" {
		t.Fatalf("expected eur complimentary plan, got %q", row.PlanID)
	}
	if len(gw.createdSubs) != 0 {
		t.Fatalf("no new subscription should be created")
	}
}

func TestGrantComplimentaryCreatesFreshSubscription(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})

	gw := newStubGateway()
	gw.customers["cust_1"] = &gateway.Customer{ID: "cust_1", Email: "jo@example.com"}
	gw.prices["price_comp_usd"] = &gateway.Price{ID: "price_comp_usd", Interval: "month", Amount: 0, Currency: "usd"}

	engine := newTestEngine(t, store, gw, usdPlans())
	if err := engine.GrantComplimentary(context.Background(), memberID); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if len(gw.createdSubs) != 1 || gw.createdSubs[0] != "price_comp_usd" {
		t.Fatalf("expected one subscription on the usd complimentary plan, got %v", gw.createdSubs)
	}
	if len(gw.createdCustomers) != 0 {
		t.Fatalf("existing customer should be reused")
	}
	if len(store.subs) != 1 {
		t.Fatalf("expected the new subscription mirrored")
	}
}

func TestGrantComplimentaryCreatesCustomerWhenNoneUsable(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.members[memberID] = &models.Member{ID: memberID, Email: "jo@example.com", Name: "Jo"}
	store.customers = append(store.customers,
		models.Customer{CustomerID: "cust_deleted", MemberID: memberID},
		models.Customer{CustomerID: "cust_flaky", MemberID: memberID},
	)

	gw := newStubGateway()
	gw.customers["cust_deleted"] = &gateway.Customer{ID: "cust_deleted", Deleted: true}
	gw.customerErrs["cust_flaky"] = context.DeadlineExceeded
	gw.prices["price_comp_usd"] = &gateway.Price{ID: "price_comp_usd", Interval: "month", Amount: 0, Currency: "usd"}

	engine := newTestEngine(t, store, gw, usdPlans())
	if err := engine.GrantComplimentary(context.Background(), memberID); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if len(gw.createdCustomers) != 1 {
		t.Fatalf("expected one customer created, got %d", len(gw.createdCustomers))
	}
	if gw.createdCustomers[0].Email != "jo@example.com" {
		t.Fatalf("expected customer created from member record")
	}
	if len(store.customers) != 3 {
		t.Fatalf("expected new customer linked locally, got %d rows", len(store.customers))
	}
	if len(store.subs) != 1 {
		t.Fatalf("expected complimentary subscription mirrored")
	}
}

func TestGrantComplimentaryNoMonthlyPlanFails(t *testing.T) {
	store := newMemStore()
	gw := newStubGateway()
	catalog := &stubCatalog{plans: []models.BillingPlan{
		{ID: "price_yearly_usd", Interval: enums.BillingIntervalYear, Amount: 5000, Currency: "usd"},
	}}

	engine := newTestEngine(t, store, gw, catalog)
	err := engine.GrantComplimentary(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeComplimentaryPlan) {
		t.Fatalf("expected complimentary-plan error, got %v", err)
	}
}

func TestGrantComplimentaryMissingPlanForCurrency(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})
	store.subs["sub_1"] = models.Subscription{
		SubscriptionID: "sub_1",
		CustomerID:     "cust_1",
		Status:         enums.SubscriptionStatusActive,
		PlanCurrency:   "gbp",
	}

	gw := newStubGateway()
	engine := newTestEngine(t, store, gw, usdPlans())
	err := engine.GrantComplimentary(context.Background(), memberID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeComplimentaryPlan) {
		t.Fatalf("expected complimentary-plan error for gbp, got %v", err)
	}
}

func TestCancelComplimentaryBestEffort(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})
	for _, id := range []string{"sub_1", "sub_2", "sub_3"} {
		store.subs[id] = models.Subscription{
			SubscriptionID: id,
			CustomerID:     "cust_1",
			Status:         enums.SubscriptionStatusActive,
		}
	}

	gw := newStubGateway()
	for _, id := range []string{"sub_1", "sub_2", "sub_3"} {
		gw.subscriptions[id] = &gateway.Subscription{
			ID:         id,
			CustomerID: "cust_1",
			Status:     "active",
			Price:      &gateway.Price{ID: "price_monthly_usd", Interval: "month", Amount: 500, Currency: "usd"},
		}
	}
	gw.cancelErr["sub_2"] = context.DeadlineExceeded

	engine := newTestEngine(t, store, gw, usdPlans())
	outcomes, err := engine.CancelComplimentary(context.Background(), memberID)
	if err != nil {
		t.Fatalf("sweep must not fail as a whole, got %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected three outcomes, got %d", len(outcomes))
	}

	byID := map[string]CancelOutcome{}
	for _, o := range outcomes {
		byID[o.SubscriptionID] = o
	}
	if !byID["sub_1"].Canceled || !byID["sub_3"].Canceled {
		t.Fatalf("expected sub_1 and sub_3 canceled: %+v", outcomes)
	}
	if byID["sub_2"].Canceled || byID["sub_2"].Error == "" {
		t.Fatalf("expected sub_2 failure recorded: %+v", byID["sub_2"])
	}
	if store.subs["sub_1"].Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled status mirrored")
	}
}

func TestCancelComplimentarySkipsCanceledRows(t *testing.T) {
	store := newMemStore()
	memberID := uuid.New()
	store.customers = append(store.customers, models.Customer{CustomerID: "cust_1", MemberID: memberID})
	store.subs["sub_old"] = models.Subscription{
		SubscriptionID: "sub_old",
		CustomerID:     "cust_1",
		Status:         enums.SubscriptionStatusCanceled,
	}

	gw := newStubGateway()
	engine := newTestEngine(t, store, gw, usdPlans())
	outcomes, err := engine.CancelComplimentary(context.Background(), memberID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("already-canceled rows must be skipped, got %+v", outcomes)
	}
	if len(gw.cancelCalls) != 0 {
		t.Fatalf("no gateway cancel expected, got %v", gw.cancelCalls)
	}
}
