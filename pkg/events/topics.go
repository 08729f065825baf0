package events

// Topic names double as the envelope's eventContractType.
const (
	TopicOrderCreated       = "orders.order-created"
	TopicStockAvailable     = "orders.stock-available"
	TopicStockUnavailable   = "orders.stock-unavailable"
	TopicReservationExpired = "orders.reservation-expired"
	TopicReservationLost    = "orders.reservation-lost"
	TopicAwaitingPayment    = "payments.awaiting-payment"
	TopicPaymentDone        = "payments.payment-done"
	TopicPaymentFailed      = "payments.payment-failed"
	TopicPaymentRefunded    = "payments.payment-refunded"
	TopicShipmentCreated    = "shipments.shipment-created"
	TopicDeliveredShipment  = "shipments.delivered-shipment"
	TopicDeliveryFailed     = "shipments.delivery-failed"
)

func Topics() []string {
	return []string{
		TopicOrderCreated,
		TopicStockAvailable,
		TopicStockUnavailable,
		TopicReservationExpired,
		TopicReservationLost,
		TopicAwaitingPayment,
		TopicPaymentDone,
		TopicPaymentFailed,
		TopicPaymentRefunded,
		TopicShipmentCreated,
		TopicDeliveredShipment,
		TopicDeliveryFailed,
	}
}
