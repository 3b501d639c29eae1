package reconcile

import (
	"strings"
	"time"

	"github.com/rowanpress/members-backend/internal/gateway"
	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/enums"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
)

// buildSubscription converts a canonical gateway subscription into the
// mirror row the store persists. cardLast4 is resolved by the engine
// beforehand because it may need a second gateway call.
func buildSubscription(remote *gateway.Subscription, cardLast4 *string) (*models.Subscription, error) {
	if remote == nil || remote.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway subscription is missing an id")
	}
	if remote.Price == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "gateway subscription %s carries no plan", remote.ID)
	}

	row := &models.Subscription{
		SubscriptionID:    remote.ID,
		CustomerID:        remote.CustomerID,
		Status:            mapSubscriptionStatus(remote.Status),
		CancelAtPeriodEnd: remote.CancelAtPeriodEnd,
		CurrentPeriodEnd:  epochToTime(remote.CurrentPeriodEnd),
		StartDate:         epochToTime(remote.StartDate),
		CardLast4:         cardLast4,
		PlanID:            remote.Price.ID,
		PlanNickname:      planNickname(remote.Price),
		PlanInterval:      strings.ToLower(remote.Price.Interval),
		PlanAmount:        remote.Price.Amount,
		PlanCurrency:      strings.ToLower(remote.Price.Currency),
	}
	if remote.CancellationReason != "" {
		reason := remote.CancellationReason
		row.CancellationReason = &reason
	}
	return row, nil
}

// mapSubscriptionStatus keeps known statuses canonical and passes unknown
// values through opaquely.
func mapSubscriptionStatus(raw string) enums.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if status, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return status
	}
	return enums.SubscriptionStatus(normalized)
}

// planNickname falls back to the billing interval when the gateway plan
// carries no nickname, so the mirror never stores an empty display name.
func planNickname(price *gateway.Price) string {
	if price.Nickname != "" {
		return price.Nickname
	}
	return strings.ToLower(price.Interval)
}

func epochToTime(epoch int64) *time.Time {
	if epoch == 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}
