package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rowanpress/members-backend/internal/gateway"
	"github.com/rowanpress/members-backend/internal/plans"
	"github.com/rowanpress/members-backend/pkg/db"
	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/enums"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
	"github.com/rowanpress/members-backend/pkg/logger"
	"github.com/rowanpress/members-backend/pkg/metrics"
)

const (
	opLinkCustomer        = "link_customer"
	opLinkSubscription    = "link_subscription"
	opUpdateCancellation  = "update_cancellation"
	opGrantComplimentary  = "grant_complimentary"
	opCancelComplimentary = "cancel_complimentary"
)

// CancelOutcome reports what happened to one subscription during a
// best-effort cancel sweep.
type CancelOutcome struct {
	SubscriptionID string `json:"subscription_id"`
	Canceled       bool   `json:"canceled"`
	Error          string `json:"error,omitempty"`
}

// Engine reconciles the local member mirror with the payment gateway.
// The gateway is the source of truth for subscription state; the engine
// re-fetches canonical records before every local write.
type Engine struct {
	store   Store
	gateway gateway.Client
	catalog plans.Catalog
	logg    *logger.Logger
	metrics *metrics.ReconcileMetrics
}

// NewEngine wires the reconciliation engine. metrics may be nil.
func NewEngine(store Store, gw gateway.Client, catalog plans.Catalog, logg *logger.Logger, m *metrics.ReconcileMetrics) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	if gw == nil {
		return nil, fmt.Errorf("reconcile: gateway client is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("reconcile: plan catalog is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("reconcile: logger is required")
	}
	return &Engine{
		store:   store,
		gateway: gw,
		catalog: catalog,
		logg:    logg,
		metrics: m,
	}, nil
}

// guard rejects every operation before any read or write when no gateway
// is configured. A mirror without a gateway has nothing to reconcile
// against.
func (e *Engine) guard(op string) error {
	if e.gateway.Configured() {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeGatewayNotConfigured, "%s requires a configured payment gateway", strings.ReplaceAll(op, "_", " "))
}

func (e *Engine) observe(op string, started time.Time, err error) {
	e.metrics.Observe(op, time.Since(started), err)
}

// LinkCustomer fetches a gateway customer, attaches it to the member and
// links every subscription the gateway reports for it. A customer id the
// gateway no longer knows is a silent no-op: history imports routinely
// reference customers deleted upstream, and skipping them keeps imports
// re-runnable.
//
// Subscriptions are linked sequentially and the first failure aborts the
// remainder. Already-written rows are kept; re-running the operation
// converges because every write is an upsert.
func (e *Engine) LinkCustomer(ctx context.Context, memberID uuid.UUID, customerID string) (err error) {
	started := time.Now()
	defer func() { e.observe(opLinkCustomer, started, err) }()

	if err = e.guard(opLinkCustomer); err != nil {
		return err
	}
	if customerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}

	ctx = e.logg.WithMemberID(ctx, memberID.String())
	ctx = e.logg.WithField(ctx, "customer_id", customerID)

	remote, err := e.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch customer from gateway")
	}
	if remote == nil || remote.Deleted {
		e.logg.Info(ctx, "customer missing at gateway, skipping link")
		return nil
	}

	local := &models.Customer{
		CustomerID: remote.ID,
		MemberID:   memberID,
		Name:       remote.Name,
		Email:      remote.Email,
	}
	if err = e.store.CreateCustomer(ctx, local); err != nil {
		if db.IsUniqueViolation(err, "customers_customer_id_key") {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "customer %s is already linked", remote.ID)
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist customer link")
	}

	for _, sub := range remote.Subscriptions {
		if err = e.LinkSubscription(ctx, memberID, sub); err != nil {
			return err
		}
	}
	return nil
}

// LinkSubscription mirrors one gateway subscription into the local store.
// The caller's snapshot is only trusted for its id; the canonical record
// is re-fetched so a stale webhook payload can never overwrite newer
// state.
func (e *Engine) LinkSubscription(ctx context.Context, memberID uuid.UUID, remote *gateway.Subscription) (err error) {
	started := time.Now()
	defer func() { e.observe(opLinkSubscription, started, err) }()

	if err = e.guard(opLinkSubscription); err != nil {
		return err
	}
	if remote == nil || remote.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway subscription is missing an id")
	}

	ctx = e.logg.WithMemberID(ctx, memberID.String())
	ctx = e.logg.WithSubscriptionID(ctx, remote.ID)

	local, err := e.store.CustomerForMember(ctx, memberID, remote.CustomerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up linked customer")
	}
	if local == nil {
		return pkgerrors.Newf(pkgerrors.CodeUnlinkedCustomer, "customer %s is not linked to member %s", remote.CustomerID, memberID)
	}

	canonical, err := e.gateway.GetSubscription(ctx, remote.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription from gateway")
	}
	if canonical == nil {
		return pkgerrors.Newf(pkgerrors.CodeDependency, "subscription %s no longer exists at the gateway", remote.ID)
	}

	cardLast4, err := e.resolveCardLast4(ctx, canonical.DefaultPaymentMethod)
	if err != nil {
		return err
	}

	row, err := buildSubscription(canonical, cardLast4)
	if err != nil {
		return err
	}
	row.CustomerID = local.CustomerID

	if err = e.store.UpsertSubscription(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist subscription mirror")
	}
	return nil
}

// resolveCardLast4 turns a payment method reference into the card digits
// the mirror stores. Both the plain-id and the expanded shape go through
// a fresh gateway fetch, so the stored digits always reflect the current
// card even when the caller's snapshot inlined an older object.
func (e *Engine) resolveCardLast4(ctx context.Context, ref gateway.PaymentMethodRef) (*string, error) {
	if ref.Kind() == gateway.PaymentMethodRefUnset {
		return nil, nil
	}
	pm, err := e.gateway.GetCardPaymentMethod(ctx, ref.ID())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment method from gateway")
	}
	if pm == nil || pm.CardLast4 == "" {
		return nil, nil
	}
	last4 := pm.CardLast4
	return &last4, nil
}

// UpdateSubscriptionCancellation flips the cancel-at-period-end flag at
// the gateway and then mirrors it locally. The flag must be explicit:
// treating an omitted field as false would silently reactivate a
// subscription the caller never meant to touch.
func (e *Engine) UpdateSubscriptionCancellation(ctx context.Context, memberID uuid.UUID, subscriptionID string, cancelAtPeriodEnd *bool) (sub *models.Subscription, err error) {
	started := time.Now()
	defer func() { e.observe(opUpdateCancellation, started, err) }()

	if err = e.guard(opUpdateCancellation); err != nil {
		return nil, err
	}
	if cancelAtPeriodEnd == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel_at_period_end is required")
	}
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	ctx = e.logg.WithMemberID(ctx, memberID.String())
	ctx = e.logg.WithSubscriptionID(ctx, subscriptionID)

	sub, err = e.store.SubscriptionForMember(ctx, memberID, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up subscription")
	}
	if sub == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "subscription %s is not linked to member %s", subscriptionID, memberID)
	}

	if *cancelAtPeriodEnd {
		_, err = e.gateway.CancelSubscriptionAtPeriodEnd(ctx, subscriptionID)
	} else {
		_, err = e.gateway.ContinueSubscriptionAtPeriodEnd(ctx, subscriptionID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cancellation at gateway")
	}

	// Only the flag is written locally. The gateway response may carry
	// other field changes, but those flow in through the next full link.
	if err = e.store.SetCancelAtPeriodEnd(ctx, subscriptionID, *cancelAtPeriodEnd); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cancellation flag")
	}
	sub.CancelAtPeriodEnd = *cancelAtPeriodEnd
	return sub, nil
}

// GrantComplimentary puts the member on the zero-cost plan. Members with
// active-like subscriptions are moved in place; members without get a
// fresh subscription on a usable customer, creating one at the gateway
// when none of the linked customers still exists there.
func (e *Engine) GrantComplimentary(ctx context.Context, memberID uuid.UUID) (err error) {
	started := time.Now()
	defer func() { e.observe(opGrantComplimentary, started, err) }()

	if err = e.guard(opGrantComplimentary); err != nil {
		return err
	}

	ctx = e.logg.WithMemberID(ctx, memberID.String())

	subs, err := e.store.SubscriptionsByMember(ctx, memberID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list member subscriptions")
	}
	var activeLike []models.Subscription
	for _, sub := range subs {
		if sub.Status.IsActiveLike() {
			activeLike = append(activeLike, sub)
		}
	}

	currency, err := e.resolveGrantCurrency(ctx, activeLike)
	if err != nil {
		return err
	}
	comp, err := e.catalog.ComplimentaryPlan(ctx, currency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up complimentary plan")
	}
	if comp == nil {
		return pkgerrors.Newf(pkgerrors.CodeComplimentaryPlan, "no complimentary plan for currency %q", currency)
	}

	if len(activeLike) == 0 {
		return e.grantFresh(ctx, memberID, comp)
	}

	// Move every active-like subscription onto the plan. Failures do not
	// stop the sweep; the member should end up comped on as many of them
	// as the gateway allows.
	var combined error
	for _, sub := range activeLike {
		updated, changeErr := e.gateway.ChangeSubscriptionPlan(ctx, sub.SubscriptionID, comp.ID)
		if changeErr != nil {
			combined = multierr.Append(combined, pkgerrors.Wrap(pkgerrors.CodeDependency, changeErr, "change subscription plan"))
			continue
		}
		if linkErr := e.LinkSubscription(ctx, memberID, updated); linkErr != nil {
			combined = multierr.Append(combined, linkErr)
		}
	}
	return combined
}

// resolveGrantCurrency picks the currency the complimentary plan must be
// in: the member's own active-like subscription when there is one, the
// catalog's monthly plan otherwise.
func (e *Engine) resolveGrantCurrency(ctx context.Context, activeLike []models.Subscription) (string, error) {
	if len(activeLike) > 0 {
		return strings.ToLower(activeLike[0].PlanCurrency), nil
	}
	plansList, err := e.catalog.Plans(ctx)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list billing plans")
	}
	monthly := plans.MonthlyPlan(plansList)
	if monthly == nil {
		return "", pkgerrors.New(pkgerrors.CodeComplimentaryPlan, "no monthly plan to derive a currency from")
	}
	return strings.ToLower(monthly.Currency), nil
}

func (e *Engine) grantFresh(ctx context.Context, memberID uuid.UUID, comp *models.BillingPlan) error {
	customer, err := e.usableCustomer(ctx, memberID)
	if err != nil {
		return err
	}
	created, err := e.gateway.CreateSubscription(ctx, customer.ID, comp.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create complimentary subscription")
	}
	return e.LinkSubscription(ctx, memberID, created)
}

// usableCustomer finds a linked customer that still exists at the
// gateway, probing in stored order. Probe failures are logged and the
// next candidate is tried; a flaky fetch on one customer must not block
// the grant when another customer works. When none survives, a new
// customer is created from the member record and linked.
func (e *Engine) usableCustomer(ctx context.Context, memberID uuid.UUID) (*gateway.Customer, error) {
	customers, err := e.store.CustomersByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list member customers")
	}
	for _, candidate := range customers {
		probeCtx := e.logg.WithField(ctx, "customer_id", candidate.CustomerID)
		remote, probeErr := e.gateway.GetCustomer(probeCtx, candidate.CustomerID)
		if probeErr != nil {
			e.logg.Warn(probeCtx, "customer probe failed, trying next")
			continue
		}
		if remote == nil || remote.Deleted {
			continue
		}
		return remote, nil
	}

	member, err := e.store.MemberByID(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up member")
	}
	if member == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "member %s not found", memberID)
	}
	created, err := e.gateway.CreateCustomer(ctx, gateway.CustomerCreateParams{
		Email: member.Email,
		Name:  member.Name,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer at gateway")
	}
	if err := e.store.UpsertCustomer(ctx, &models.Customer{
		CustomerID: created.ID,
		MemberID:   memberID,
		Name:       created.Name,
		Email:      created.Email,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist customer link")
	}
	return created, nil
}

// CancelComplimentary immediately cancels every non-canceled subscription
// the member holds. The sweep is best effort: each subscription gets its
// own outcome and a failure on one never blocks the rest. The returned
// error is always nil unless the member's subscriptions cannot be listed
// at all.
func (e *Engine) CancelComplimentary(ctx context.Context, memberID uuid.UUID) (outcomes []CancelOutcome, err error) {
	started := time.Now()
	defer func() { e.observe(opCancelComplimentary, started, err) }()

	if err = e.guard(opCancelComplimentary); err != nil {
		return nil, err
	}

	ctx = e.logg.WithMemberID(ctx, memberID.String())

	subs, err := e.store.SubscriptionsByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list member subscriptions")
	}

	outcomes = make([]CancelOutcome, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == enums.SubscriptionStatusCanceled {
			continue
		}
		subCtx := e.logg.WithSubscriptionID(ctx, sub.SubscriptionID)
		remote, cancelErr := e.gateway.CancelSubscription(subCtx, sub.SubscriptionID)
		if cancelErr != nil {
			e.logg.Error(subCtx, "cancel at gateway failed", cancelErr)
			outcomes = append(outcomes, CancelOutcome{SubscriptionID: sub.SubscriptionID, Error: cancelErr.Error()})
			continue
		}
		if linkErr := e.LinkSubscription(subCtx, memberID, remote); linkErr != nil {
			e.logg.Error(subCtx, "mirror canceled subscription failed", linkErr)
			outcomes = append(outcomes, CancelOutcome{SubscriptionID: sub.SubscriptionID, Error: linkErr.Error()})
			continue
		}
		outcomes = append(outcomes, CancelOutcome{SubscriptionID: sub.SubscriptionID, Canceled: true})
	}
	return outcomes, nil
}
