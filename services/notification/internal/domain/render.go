package domain

import (
	"fmt"
	"strings"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
)

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func OrderCreatedMessage(e *events.OrderCreated) (string, string) {
	var units int64
	for _, p := range e.Products {
		units += p.Quantity
	}

	return "We received your order",
		fmt.Sprintf("Order %s with %d item(s) was placed and is waiting for stock confirmation.", e.OrderID, units)
}

func StockUnavailableMessage(e *events.StockUnavailable) (string, string) {
	lines := make([]string, 0, len(e.MissingProducts))
	for _, p := range e.MissingProducts {
		switch p.Reason {
		case "NOT_FOUND":
			lines = append(lines, fmt.Sprintf("product %s is not sold anymore", p.ID))
		default:
			lines = append(lines, fmt.Sprintf("product %s: %d requested, %d available", p.ID, p.Requested, p.Available))
		}
	}

	return "Some products of your order are unavailable",
		fmt.Sprintf("Order %s could not be reserved: %s.", e.OrderID, strings.Join(lines, "; "))
}

func AwaitingPaymentMessage(e *events.AwaitingPayment) (string, string) {
	return "Your order is ready for payment",
		fmt.Sprintf("Pay %s by %s for order %s at %s", formatCents(e.AmountInCents), e.PaymentMethod, e.OrderID, e.PaymentURL)
}

func PaymentDoneMessage(e *events.PaymentDone) (string, string) {
	return "Payment confirmed",
		fmt.Sprintf("We received %s for order %s on %s.", formatCents(e.AmountInCents), e.OrderID, e.PaymentAt.Format("2006-01-02 15:04 MST"))
}

func PaymentFailedMessage(e *events.PaymentFailed) (string, string) {
	return "Your order was cancelled",
		fmt.Sprintf("Payment for order %s failed: %s.", e.OrderID, e.Reason)
}

func PaymentRefundedMessage(e *events.PaymentRefunded) (string, string) {
	return "Your payment was refunded",
		fmt.Sprintf("We refunded %s for order %s because %s.", formatCents(e.AmountInCents), e.OrderID, e.Reason)
}

func ShipmentCreatedMessage(e *events.ShipmentCreated) (string, string) {
	return "Your order is being shipped",
		fmt.Sprintf("A shipment was created for order %s.", e.OrderID)
}

func DeliveredShipmentMessage(e *events.DeliveredShipment) (string, string) {
	return "Your order was delivered",
		fmt.Sprintf("Shipment %s of order %s was delivered on %s.", e.ShipmentID, e.OrderID, e.DeliveredAt.Format("2006-01-02"))
}

func DeliveryFailedMessage(e *events.DeliveryFailed) (string, string) {
	return "We could not deliver your order",
		fmt.Sprintf("Shipment %s of order %s failed: %s.", e.ShipmentID, e.OrderID, e.Reason)
}
