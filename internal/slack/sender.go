package slack

import (
	"context"
	"log"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
)

// Sender delivers each destination's message to its webhook, once.
type Sender struct {
	client   WebhookClient
	webhooks map[string]string
}

// NewSender creates a sender; webhooks maps destination name to URL.
func NewSender(client WebhookClient, webhooks map[string]string) *Sender {
	return &Sender{client: client, webhooks: webhooks}
}

// Deliver implements app.Sender. Missing endpoints are skipped with a warning and
// failures are logged; neither stops delivery to the remaining destinations.
func (s *Sender) Deliver(ctx context.Context, messages []paper.Message) []paper.Delivery {
	results := make([]paper.Delivery, 0, len(messages))
	sent := 0

	for _, msg := range messages {
		result := paper.Delivery{Destination: msg.Destination}

		url := s.webhooks[msg.Destination]
		switch {
		case url == "":
			log.Printf("WARNING: no webhook configured for destination %q; message dropped", msg.Destination)
			result.Status = paper.DeliverySkipped
		default:
			if err := s.client.Post(ctx, url, msg.Text); err != nil {
				log.Printf("Failed to post to destination %q: %v", msg.Destination, err)
				result.Status = paper.DeliveryFailed
				result.Error = err.Error()
			} else {
				log.Printf("Posted to destination %q (%d chars)", msg.Destination, len(msg.Text))
				result.Status = paper.DeliveryDelivered
				sent++
			}
		}

		results = append(results, result)
	}

	log.Printf("Delivered %d/%d messages", sent, len(messages))
	return results
}
