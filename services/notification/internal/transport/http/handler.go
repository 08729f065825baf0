package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/service"
	"go.uber.org/zap"
)

const requestTimeout = 3 * time.Second

type NotificationHandler struct {
	notifications service.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

func RegisterRoutes(app *fiber.App, h *NotificationHandler) {
	app.Get("/orders/:id/notifications", h.ListByOrder)
}

func (h *NotificationHandler) ListByOrder(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	orderID, err := sharedDomain.ParseID(c.Params("id"))
	if err != nil {
		return err
	}

	notifications, err := h.notifications.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	return c.JSON(notifications)
}
