package enums

import "fmt"

// PaymentMethodType describes how a subscription's renewal charges are
// collected.
type PaymentMethodType string

const (
	PaymentMethodTypeCard    PaymentMethodType = "card"
	PaymentMethodTypeACH     PaymentMethodType = "ach"
	PaymentMethodTypeInvoice PaymentMethodType = "invoice"
	PaymentMethodTypeCash    PaymentMethodType = "cash"
)

var validPaymentMethodTypes = []PaymentMethodType{
	PaymentMethodTypeCard,
	PaymentMethodTypeACH,
	PaymentMethodTypeInvoice,
	PaymentMethodTypeCash,
}

// String implements fmt.Stringer.
func (p PaymentMethodType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentMethodType) IsValid() bool {
	for _, candidate := range validPaymentMethodTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsManual reports whether renewals on this method require a human to settle
// the charge. Manual methods are never retried automatically.
func (p PaymentMethodType) IsManual() bool {
	switch p {
	case PaymentMethodTypeInvoice, PaymentMethodTypeCash:
		return true
	}
	return false
}

// SupportsDateChanges reports whether the charge date for this method can be
// moved, which a scheduled retry requires.
func (p PaymentMethodType) SupportsDateChanges() bool {
	switch p {
	case PaymentMethodTypeCard, PaymentMethodTypeACH:
		return true
	}
	return false
}

// ParsePaymentMethodType converts raw input into a PaymentMethodType.
func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	for _, candidate := range validPaymentMethodTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method type %q", value)
}
