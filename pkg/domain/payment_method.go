package domain

import (
	"fmt"

	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
)

var ErrInvalidPaymentMethod = faults.New(faults.Validation, "invalid payment method")

type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentMethodPix        PaymentMethod = "PIX"
	PaymentMethodBankSlip   PaymentMethod = "BANK_SLIP"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPix, PaymentMethodBankSlip:
		return m, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidPaymentMethod, s)
	}
}
