package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/farhanpavel/cognit-api/internal/models"
)

// EventKind names a lifecycle transition worth telling someone about.
type EventKind string

const (
	EventRequestCreated    EventKind = "request_created"
	EventDonorAccepted     EventKind = "donor_accepted"
	EventDonorReached      EventKind = "donor_reached"
	EventDonationConfirmed EventKind = "donation_confirmed"
	EventDonationRejected  EventKind = "donation_rejected"
	EventDonorDismissed    EventKind = "donor_dismissed"
	EventSessionExtended   EventKind = "session_extended"
	EventSessionClosed     EventKind = "session_closed"
)

// Broadcast reports whether events of this kind go to every donor device.
func (k EventKind) Broadcast() bool {
	return k == EventRequestCreated
}

// Event is emitted by the lifecycle manager after a transition commits.
type Event struct {
	Kind       EventKind
	Request    models.DonationRequest
	Record     *models.DonorResponseRecord
	Applied    int
	OccurredAt time.Time
}

// Message is the JSON payload published on a channel.
type Message struct {
	ID           string                  `json:"id"`
	Kind         EventKind               `json:"kind"`
	RequestID    string                  `json:"requestId"`
	RecordID     string                  `json:"recordId,omitempty"`
	DonorID      string                  `json:"donorId,omitempty"`
	Title        string                  `json:"title"`
	Body         string                  `json:"body"`
	DeepLink     string                  `json:"deepLink"`
	RequestState models.RequestState     `json:"requestState"`
	BagsNeeded   int                     `json:"bagsNeeded"`
	BagsReceived int                     `json:"bagsReceived"`
	Snapshot     *models.RequestSnapshot `json:"snapshot,omitempty"`
	OccurredAt   time.Time               `json:"occurredAt"`
}

// Channels resolves channel names for events.
type Channels struct {
	Broadcast    string
	StatusPrefix string
	DeepLinkBase string
}

// DefaultChannels matches the names donor and patient devices subscribe to.
func DefaultChannels() Channels {
	return Channels{
		Broadcast:    "new-request",
		StatusPrefix: "request-status-",
		DeepLinkBase: "cognit://blood-requests",
	}
}

func (c Channels) withDefaults() Channels {
	def := DefaultChannels()
	if c.Broadcast == "" {
		c.Broadcast = def.Broadcast
	}
	if c.StatusPrefix == "" {
		c.StatusPrefix = def.StatusPrefix
	}
	if c.DeepLinkBase == "" {
		c.DeepLinkBase = def.DeepLinkBase
	}
	return c
}

// Status returns the per-request channel for requestID.
func (c Channels) Status(requestID string) string {
	return c.StatusPrefix + requestID
}

// For returns the channel an event is published on.
func (c Channels) For(evt Event) string {
	if evt.Kind.Broadcast() {
		return c.Broadcast
	}
	return c.Status(evt.Request.ID)
}

// DeepLink returns the in-app link to a request.
func (c Channels) DeepLink(requestID string) string {
	return strings.TrimRight(c.DeepLinkBase, "/") + "/" + requestID
}

// Render builds the message for an event. id identifies the message across
// delivery retries.
func (c Channels) Render(id string, evt Event) Message {
	req := evt.Request
	msg := Message{
		ID:           id,
		Kind:         evt.Kind,
		RequestID:    req.ID,
		DeepLink:     c.DeepLink(req.ID),
		RequestState: req.State(evt.OccurredAt),
		BagsNeeded:   req.BagsNeeded,
		BagsReceived: req.BagsReceived,
		OccurredAt:   evt.OccurredAt,
	}
	if evt.Record != nil {
		msg.RecordID = evt.Record.ID
		msg.DonorID = evt.Record.DonorID
	}

	switch evt.Kind {
	case EventRequestCreated:
		snapshot := req.Snapshot()
		msg.Snapshot = &snapshot
		msg.Title = fmt.Sprintf("%s blood needed", req.BloodGroupName)
		msg.Body = fmt.Sprintf("%s needed at %s before %s.", bags(req.BagsNeeded), req.HospitalName, req.BloodNeededBeforeAt.Format("02 Jan 15:04"))
	case EventDonorAccepted:
		msg.Title = "A donor accepted your request"
		ceiling := 0
		if evt.Record != nil {
			ceiling = evt.Record.CanDonateBloodBagUpto
		}
		msg.Body = fmt.Sprintf("A donor can give up to %s of %s.", bags(ceiling), req.BloodGroupName)
	case EventDonorReached:
		msg.Title = "Donor reached the hospital"
		msg.Body = fmt.Sprintf("A donor has arrived at %s.", req.HospitalName)
	case EventDonationConfirmed:
		msg.Title = "Donation confirmed"
		if msg.RequestState == models.RequestStateFulfilled {
			msg.Body = fmt.Sprintf("All %s received. Your request is fulfilled.", bags(req.BagsNeeded))
		} else {
			msg.Body = fmt.Sprintf("%d of %s received.", req.BagsReceived, bags(req.BagsNeeded))
		}
	case EventDonationRejected:
		msg.Title = "Donation rejected"
		msg.Body = "The donation was marked as not received."
	case EventDonorDismissed:
		msg.Title = "Donor dismissed"
		msg.Body = "A donor was released from your request."
	case EventSessionExtended:
		msg.Title = "Request extended"
		msg.Body = fmt.Sprintf("Donors can respond until %s.", req.SessionEndAt.Format("02 Jan 15:04"))
	case EventSessionClosed:
		msg.Title = "Request closed"
		msg.Body = fmt.Sprintf("Closed with %d of %s received.", req.BagsReceived, bags(req.BagsNeeded))
	default:
		msg.Title = "Request updated"
	}
	return msg
}

func bags(n int) string {
	if n == 1 {
		return "1 bag"
	}
	return fmt.Sprintf("%d bags", n)
}
