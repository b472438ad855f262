package events

// Topic constants for domain events emitted by the quote platform.
const (
	TopicQuoteEstimateCreated = "quote.estimate_created"
	TopicQuoteCheckoutCreated = "quote.checkout_created"
	TopicQuotePaid            = "quote.paid"
	TopicQuoteCancelled       = "quote.cancelled"
	TopicInvoiceOverdue       = "invoice.overdue"
	TopicContactCreated       = "contact.created"
)

// DefaultTopics returns the canonical list of topics that support relay
// notifications.
func DefaultTopics() []string {
	return []string{
		TopicQuoteEstimateCreated,
		TopicQuoteCheckoutCreated,
		TopicQuotePaid,
		TopicQuoteCancelled,
		TopicInvoiceOverdue,
		TopicContactCreated,
	}
}
