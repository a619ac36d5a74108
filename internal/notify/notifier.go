// Package notify delivers push, SMS, and live-activity notifications
// through the OneSignal REST API.
package notify

import "context"

// Target channels.
const (
	ChannelPush = "push"
	ChannelSMS  = "sms"
)

// App environments. Deliveries go out through the post app, SMS OTPs through
// the demo app, and flight live activities through the air app.
const (
	AppPost = "post"
	AppDemo = "demo"
	AppAir  = "air"
)

// Message is a template-based notification addressed either to external-id
// aliases (push) or phone numbers (SMS).
type Message struct {
	// App selects the provider application (AppPost, AppDemo, AppAir).
	App string
	// Channel is the target channel (ChannelPush, ChannelSMS).
	Channel string
	// TemplateID is the provider template to render.
	TemplateID string
	// ExternalIDs addresses push recipients by alias.
	ExternalIDs []string
	// PhoneNumbers addresses SMS recipients.
	PhoneNumbers []string
	// CustomData is substituted into the template.
	CustomData map[string]any
}

// Notifier is the outbound notification capability. Implementations must
// return an error for transport failures and non-success provider responses;
// callers decide whether that fails a sequence.
type Notifier interface {
	// SendTemplate renders and sends a template-based message.
	SendTemplate(ctx context.Context, msg Message) error

	// UpdateLiveActivity pushes an event to a running live activity.
	// The "end" event dismisses the activity; "update" refreshes its state.
	UpdateLiveActivity(ctx context.Context, activityID, event string, updates map[string]any) error
}
