package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/signalhub/internal/apperrors"
	"github.com/kbukum/signalhub/internal/inbox"
	"github.com/kbukum/signalhub/internal/logger"
)

type messagesResponse struct {
	AppID        string         `json:"app_id"`
	ExternalID   string         `json:"external_id"`
	MessageCount int            `json:"message_count"`
	Messages     []messageEntry `json:"messages"`
}

type messageEntry struct {
	ID              string         `json:"id"`
	EventType       string         `json:"event_type"`
	NotificationID  string         `json:"notification_id,omitempty"`
	MessageContents map[string]any `json:"message_contents,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

// handleWebhook receives provider webhook events and stores them for inbox
// reconstruction. Events arriving while storage is disabled are acknowledged
// with a warning so the provider does not retry them forever.
func (s *Server) handleWebhook(c *gin.Context) {
	if s.deps.Inbox == nil {
		s.log.Warn("Webhook received but storage not configured")
		c.JSON(http.StatusOK, gin.H{
			"status":  "warning",
			"message": "Webhook received but storage not configured",
		})
		return
	}

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalid(c, "request body must be a JSON object")
		return
	}

	eventType, _ := payload["event"].(string)
	appID, _ := payload["app_id"].(string)
	if eventType == "" || appID == "" {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "Missing required fields: event and app_id",
		})
		return
	}

	externalID, _ := payload["external_id"].(string)
	if externalID == "" {
		externalID = "unknown"
	}
	notificationID, _ := payload["notification_id"].(string)
	if notificationID == "" {
		notificationID, _ = payload["id"].(string)
	}

	id, err := s.deps.Inbox.Insert(c.Request.Context(), inbox.Event{
		AppID:           appID,
		ExternalID:      externalID,
		EventType:       eventType,
		NotificationID:  notificationID,
		MessageContents: extractMessageContents(payload),
		Payload:         payload,
	})
	if err != nil {
		s.log.Error("Failed to store webhook event", logger.ErrorFields("webhook_insert", err))
		respondError(c, apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  fmt.Sprintf("Event %s stored successfully", eventType),
		"event_id": id,
	})
}

// extractMessageContents pulls the display fields out of the raw payload so
// the inbox can render messages without re-parsing provider payloads.
func extractMessageContents(payload map[string]any) map[string]any {
	contents := make(map[string]any)

	if title := localizedText(payload["headings"]); title != "" {
		contents["title"] = title
	}
	if body := localizedText(payload["contents"]); body != "" {
		contents["body"] = body
	}
	if data, ok := payload["data"]; ok && data != nil {
		contents["data"] = data
	}
	if u, ok := payload["url"].(string); ok && u != "" {
		contents["url"] = u
	}
	if pic, ok := payload["big_picture"].(string); ok && pic != "" {
		contents["image"] = pic
	}
	if att, ok := payload["ios_attachments"]; ok && att != nil {
		contents["ios_attachments"] = att
	}

	if len(contents) == 0 {
		return nil
	}
	return contents
}

// localizedText picks the "en" variant of a localized text map, falling back
// to any variant present.
func localizedText(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if en, ok := m["en"].(string); ok && en != "" {
		return en
	}
	for _, val := range m {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// handleListMessages returns a user's stored notification events, newest
// first. Supports limit, event-type, and since-days query filters.
func (s *Server) handleListMessages(c *gin.Context) {
	if s.deps.Inbox == nil {
		respondError(c, apperrors.ServiceUnavailable("message storage"))
		return
	}

	appID := c.Param("app_id")
	externalID := c.Param("external_id")

	filter, err := parseListFilter(c)
	if err != nil {
		respondInvalid(c, err.Error())
		return
	}

	events, err := s.deps.Inbox.ListByUser(c.Request.Context(), appID, externalID, filter)
	if err != nil {
		s.log.Error("Failed to list messages", logger.ErrorFields("messages_list", err))
		respondError(c, apperrors.Internal(err))
		return
	}

	messages := make([]messageEntry, 0, len(events))
	for _, ev := range events {
		messages = append(messages, messageEntry{
			ID:              ev.ID,
			EventType:       ev.EventType,
			NotificationID:  ev.NotificationID,
			MessageContents: ev.MessageContents,
			CreatedAt:       ev.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	c.JSON(http.StatusOK, messagesResponse{
		AppID:        appID,
		ExternalID:   externalID,
		MessageCount: len(messages),
		Messages:     messages,
	})
}

func parseListFilter(c *gin.Context) (inbox.ListFilter, error) {
	filter := inbox.ListFilter{Limit: 50}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return filter, fmt.Errorf("limit must be between 1 and 200")
		}
		filter.Limit = n
	}
	if raw := c.Query("event_types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.EventTypes = append(filter.EventTypes, t)
			}
		}
	}
	if raw := c.Query("since_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 90 {
			return filter, fmt.Errorf("since_days must be between 1 and 90")
		}
		filter.SinceDays = n
	}
	return filter, nil
}

// handleDeleteMessages removes all stored events for a user.
func (s *Server) handleDeleteMessages(c *gin.Context) {
	if s.deps.Inbox == nil {
		respondError(c, apperrors.ServiceUnavailable("message storage"))
		return
	}

	appID := c.Param("app_id")
	externalID := c.Param("external_id")

	n, err := s.deps.Inbox.DeleteByUser(c.Request.Context(), appID, externalID)
	if err != nil {
		s.log.Error("Failed to delete messages", logger.ErrorFields("messages_delete", err))
		respondError(c, apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message":     fmt.Sprintf("Deleted %d messages", n),
		"app_id":      appID,
		"external_id": externalID,
	})
}

// handleWebhookHealth reports webhook endpoint and storage health.
func (s *Server) handleWebhookHealth(c *gin.Context) {
	database := gin.H{"status": "disabled"}
	message := "Webhook system degraded"

	if s.deps.Inbox != nil {
		if err := s.deps.Inbox.Health(c.Request.Context()); err != nil {
			database = gin.H{"status": "unhealthy", "error": err.Error()}
		} else {
			database = gin.H{"status": "healthy"}
			message = "Webhook system operational"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"webhook_endpoint": "healthy",
		"database":         database,
		"message":          message,
	})
}
