package web

import (
	"github.com/gofiber/fiber/v3"
)

// Provider webhooks turn external deliveries into run requests. Each handler
// namespaces the payload under its provider key so the matching trigger node
// finds it in the run context. The provider's own delivery ID doubles as the
// idempotency key when present.

func (h *APIHandlers) StripeWebhook(c fiber.Ctx) error {
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		return badRequest(c, "Missing workflowId parameter")
	}

	var body map[string]any
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	stripeData := map[string]any{
		"eventId":   body["id"],
		"eventType": body["type"],
		"timestamp": body["created"],
		"livemode":  body["livemode"],
	}

	if data, ok := body["data"].(map[string]any); ok {
		stripeData["raw"] = data["object"]
	}

	triggeringEventID, _ := body["id"].(string)
	if triggeringEventID == "" {
		triggeringEventID = "trg-" + h.eventBus.GenerateID()
	}

	err := h.publishTrigger(c, workflowID, triggeringEventID, map[string]any{
		"stripe": stripeData,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

func (h *APIHandlers) GoogleFormWebhook(c fiber.Ctx) error {
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		return badRequest(c, "Missing workflowId parameter")
	}

	var body map[string]any
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	formData := map[string]any{
		"formId":          body["formId"],
		"formTitle":       body["formTitle"],
		"responseId":      body["responseId"],
		"timestamp":       body["timestamp"],
		"respondentEmail": body["respondentEmail"],
		"responses":       body["responses"],
		"raw":             body,
	}

	triggeringEventID, _ := body["responseId"].(string)
	if triggeringEventID == "" {
		triggeringEventID = "trg-" + h.eventBus.GenerateID()
	}

	err := h.publishTrigger(c, workflowID, triggeringEventID, map[string]any{
		"googleForm": formData,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
