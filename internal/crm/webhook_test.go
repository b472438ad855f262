package crm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eximia-labs/backend-quotes/internal/events"
)

type fakeQuotes struct {
	byInvoice map[string]uuid.UUID
	updates   map[string]string
}

func (f *fakeQuotes) UpdateStatusByInvoice(_ context.Context, invoiceID, status string) (uuid.UUID, bool, error) {
	id, ok := f.byInvoice[invoiceID]
	if !ok {
		return uuid.Nil, false, nil
	}
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[invoiceID] = status
	return id, true, nil
}

type fakeEventStore struct {
	events []events.Event
}

func (s *fakeEventStore) InsertEvent(_ context.Context, topic string, subjectID uuid.UUID, payload []byte) (events.Event, error) {
	ev := events.Event{ID: uuid.New(), Topic: topic, SubjectID: subjectID, Payload: payload, OccurredAt: time.Now()}
	s.events = append(s.events, ev)
	return ev, nil
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h Webhook, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/crm", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := Webhook{Secret: "s3cret", Logger: zerolog.Nop()}
	rec := postWebhook(h, `{"type":"InvoicePaid"}`, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookInvoicePaidUpdatesQuote(t *testing.T) {
	quoteID := uuid.New()
	quotes := &fakeQuotes{byInvoice: map[string]uuid.UUID{"inv-1": quoteID}}
	store := &fakeEventStore{}
	h := Webhook{
		Secret: "s3cret",
		Quotes: quotes,
		Events: &events.Bus{Store: store},
		Logger: zerolog.Nop(),
	}

	body := `{"type":"invoice.paid","data":{"invoiceId":"inv-1","contactId":"c-1","amount":29600}}`
	rec := postWebhook(h, body, sign("s3cret", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "paid", quotes.updates["inv-1"])
	require.Len(t, store.events, 1)
	require.Equal(t, events.TopicQuotePaid, store.events[0].Topic)
	require.Equal(t, quoteID, store.events[0].SubjectID)
}

func TestWebhookMatchesLooseEventTypeNames(t *testing.T) {
	quotes := &fakeQuotes{byInvoice: map[string]uuid.UUID{"inv-2": uuid.New()}}
	h := Webhook{Secret: "s3cret", Quotes: quotes, Logger: zerolog.Nop()}

	body := `{"eventType":"InvoiceCancelled","data":{"invoiceId":"inv-2"}}`
	rec := postWebhook(h, body, sign("s3cret", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", quotes.updates["inv-2"])
}

func TestWebhookUnknownInvoiceIsAccepted(t *testing.T) {
	quotes := &fakeQuotes{byInvoice: map[string]uuid.UUID{}}
	store := &fakeEventStore{}
	h := Webhook{Secret: "s3cret", Quotes: quotes, Events: &events.Bus{Store: store}, Logger: zerolog.Nop()}

	body := `{"type":"invoice.paid","data":{"invoiceId":"inv-missing"}}`
	rec := postWebhook(h, body, sign("s3cret", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, quotes.updates)
	require.Empty(t, store.events)
}

func TestWebhookReplayRejected(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := Webhook{
		Secret:    "s3cret",
		Quotes:    &fakeQuotes{byInvoice: map[string]uuid.UUID{}},
		Replay:    client,
		ReplayTTL: time.Minute,
		Logger:    zerolog.Nop(),
	}
	body := `{"type":"invoice.overdue","data":{"invoiceId":"inv-3"}}`
	sig := sign("s3cret", body)

	require.Equal(t, http.StatusOK, postWebhook(h, body, sig).Code)
	require.Equal(t, http.StatusConflict, postWebhook(h, body, sig).Code)
}

func TestWebhookMissingEventType(t *testing.T) {
	h := Webhook{Secret: "s3cret", Logger: zerolog.Nop()}
	body := `{"data":{"invoiceId":"inv-4"}}`
	rec := postWebhook(h, body, sign("s3cret", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookContactCreatedEmitsEvent(t *testing.T) {
	store := &fakeEventStore{}
	h := Webhook{Secret: "s3cret", Events: &events.Bus{Store: store}, Logger: zerolog.Nop()}

	body := `{"type":"ContactCreate","data":{"contactId":"c-9","email":"lead@example.com"}}`
	rec := postWebhook(h, body, sign("s3cret", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.events, 1)
	require.Equal(t, events.TopicContactCreated, store.events[0].Topic)
}
