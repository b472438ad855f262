package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eximia-labs/backend-quotes/internal/catalog"
	"github.com/eximia-labs/backend-quotes/internal/resilience"
)

func newTestHighLevel(t *testing.T, handler http.Handler) (*HighLevel, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewHighLevel("test-key", "loc-1", resilience.HTTPClient{Client: srv.Client()}, zerolog.Nop())
	client.BaseURL = srv.URL
	return client, srv
}

func TestUpsertContactReturnsExistingMatch(t *testing.T) {
	var created bool
	client, _ := newTestHighLevel(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contacts/":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"contacts": []map[string]any{{"id": "c-1", "phone": "+17875550123"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/contacts/c-1/tags":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/contacts/":
			created = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	id, err := client.UpsertContact(context.Background(), Contact{
		Name: "Ana Rivera", Email: "ana@example.com", Phone: "(787) 555-0123",
	})
	require.NoError(t, err)
	require.Equal(t, "c-1", id)
	require.False(t, created, "should not create when a match exists")
}

func TestUpsertContactCreatesWithQuotationTag(t *testing.T) {
	var createBody map[string]any
	client, _ := newTestHighLevel(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contacts/":
			_ = json.NewEncoder(w).Encode(map[string]any{"contacts": []any{}})
		case r.Method == http.MethodPost && r.URL.Path == "/contacts/":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
			_ = json.NewEncoder(w).Encode(map[string]any{"contact": map[string]any{"id": "c-new"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	id, err := client.UpsertContact(context.Background(), Contact{
		Name: "Ana Rivera Soto", Email: "ana@example.com", Phone: "7875550123", Company: "Rivera LLC",
	})
	require.NoError(t, err)
	require.Equal(t, "c-new", id)
	require.Equal(t, "Ana", createBody["firstName"])
	require.Equal(t, "Rivera Soto", createBody["lastName"])
	require.Equal(t, "+17875550123", createBody["phone"])
	require.Equal(t, []any{QuotationTag}, createBody["tags"])
}

func TestUpsertContactRecoversDuplicateError(t *testing.T) {
	client, _ := newTestHighLevel(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contacts/":
			_ = json.NewEncoder(w).Encode(map[string]any{"contacts": []any{}})
		case r.Method == http.MethodPost && r.URL.Path == "/contacts/":
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": "This location does not allow duplicated contacts",
				"meta":    map[string]any{"contactId": "c-dup"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/contacts/c-dup/tags":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	id, err := client.UpsertContact(context.Background(), Contact{Name: "Ana", Phone: "7875550123"})
	require.NoError(t, err)
	require.Equal(t, "c-dup", id)
}

func TestCreateInvoiceBuildsDocument(t *testing.T) {
	var body map[string]any
	client, _ := newTestHighLevel(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoices/", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, highLevelAPIVersion, r.Header.Get("Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"_id": "inv-1", "status": "sent", "invoiceNumber": 42, "total": 296.0,
		})
	}))

	doc, err := client.CreateInvoice(context.Background(), DocumentRequest{
		ContactID: "c-1",
		Name:      "EXIMIA Quote",
		Currency:  "USD",
		Contact:   Contact{Name: "Ana", Email: "ana@example.com", Phone: "7875550123"},
		Items:     []LineItem{{Name: "Starter", Description: "Monthly plan", Amount: 197}},
	})
	require.NoError(t, err)
	require.Equal(t, Document{ID: "inv-1", Status: "sent", Number: 42, Total: 296.0}, doc)
	require.Equal(t, "loc-1", body["altId"])
	require.Equal(t, "location", body["altType"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	require.Equal(t, float64(1), item["qty"])
	require.Equal(t, "USD", item["currency"])
}

func TestListProductsMapsCatalogShape(t *testing.T) {
	client, _ := newTestHighLevel(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products/", r.URL.Path)
		require.Equal(t, "loc-1", r.URL.Query().Get("locationId"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{
				{
					"id": "p-1", "name": "Pro", "type": "service",
					"prices": []map[string]any{{"id": "pr-1", "amount": 49700, "type": "RECURRING"}},
				},
				{"id": "a-1", "name": "Voice", "type": "DIGITAL"},
			},
		})
	}))

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []catalog.Product{
		{ID: "p-1", Name: "Pro", Type: "SERVICE", PriceCents: 49700, PriceID: "pr-1"},
		{ID: "a-1", Name: "Voice", Type: "DIGITAL"},
	}, products)
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewHighLevel("", "loc-1", resilience.HTTPClient{Client: http.DefaultClient}, zerolog.Nop())
	_, err := client.UpsertContact(context.Background(), Contact{})
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = client.ListProducts(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}
