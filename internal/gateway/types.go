package gateway

// Customer is the engine-facing view of a remote gateway customer.
type Customer struct {
	ID            string
	Email         string
	Name          string
	Deleted       bool
	Subscriptions []*Subscription
}

// Subscription is the engine-facing view of a remote gateway
// subscription. Timestamps are raw epoch seconds as the gateway reports
// them; Status is the raw gateway value, lower-cased.
type Subscription struct {
	ID                   string
	CustomerID           string
	Status               string
	CancelAtPeriodEnd    bool
	CancellationReason   string
	CurrentPeriodEnd     int64
	StartDate            int64
	ItemID               string
	Price                *Price
	DefaultPaymentMethod PaymentMethodRef
}

// Price describes the plan a subscription bills against.
type Price struct {
	ID       string
	Nickname string
	Interval string
	Amount   int64
	Currency string
}

// PaymentMethod carries the card details the mirror stores.
type PaymentMethod struct {
	ID        string
	CardLast4 string
}

// PaymentMethodRefKind discriminates the three shapes a subscription's
// default payment method reference can take on the wire.
type PaymentMethodRefKind int

const (
	// PaymentMethodRefUnset means no default payment method is attached.
	PaymentMethodRefUnset PaymentMethodRefKind = iota
	// PaymentMethodRefID means the reference is a plain identifier.
	PaymentMethodRefID
	// PaymentMethodRefExpanded means the gateway inlined the full object.
	PaymentMethodRefExpanded
)

// PaymentMethodRef is a tagged union over the payment method reference
// shapes. Consumers switch on Kind() instead of inspecting field
// presence.
type PaymentMethodRef struct {
	kind     PaymentMethodRefKind
	id       string
	expanded *PaymentMethod
}

// UnsetPaymentMethodRef returns the absent reference.
func UnsetPaymentMethodRef() PaymentMethodRef {
	return PaymentMethodRef{kind: PaymentMethodRefUnset}
}

// PaymentMethodIDRef wraps a plain identifier reference.
func PaymentMethodIDRef(id string) PaymentMethodRef {
	return PaymentMethodRef{kind: PaymentMethodRefID, id: id}
}

// ExpandedPaymentMethodRef wraps an inlined payment method object.
func ExpandedPaymentMethodRef(pm *PaymentMethod) PaymentMethodRef {
	if pm == nil {
		return UnsetPaymentMethodRef()
	}
	return PaymentMethodRef{kind: PaymentMethodRefExpanded, expanded: pm}
}

// Kind returns the union discriminator.
func (r PaymentMethodRef) Kind() PaymentMethodRefKind {
	return r.kind
}

// ID returns the referenced identifier for both the plain-id and the
// expanded shape, and "" for the unset shape.
func (r PaymentMethodRef) ID() string {
	switch r.kind {
	case PaymentMethodRefID:
		return r.id
	case PaymentMethodRefExpanded:
		return r.expanded.ID
	default:
		return ""
	}
}

// Expanded returns the inlined object, or nil when the reference is not
// the expanded shape.
func (r PaymentMethodRef) Expanded() *PaymentMethod {
	if r.kind != PaymentMethodRefExpanded {
		return nil
	}
	return r.expanded
}
