package enums

import "fmt"

// PaymentMethod names the rail a purchase is charged through.
type PaymentMethod string

const (
	PaymentMethodCampusCard PaymentMethod = "campus_card"
	PaymentMethodBankQR     PaymentMethod = "bank_qr"
	PaymentMethodCard       PaymentMethod = "card"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCampusCard,
	PaymentMethodBankQR,
	PaymentMethodCard,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
