package quote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *fakeRepo) *chi.Mux {
	svc := &Service{
		Catalog:  staticCatalog{cfg: serviceConfig()},
		Store:    repo,
		CRM:      &fakeCRM{contactID: "c-1"},
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}
	h := &Handler{Svc: svc}
	admin := &AdminHandler{Store: repo}

	r := chi.NewRouter()
	r.Post("/api/v1/quotes/preview", h.Preview)
	r.Post("/api/v1/quotes/estimate", h.SubmitEstimate)
	r.Get("/api/v1/quotes/{id}", h.Get)
	r.Get("/api/v1/admin/quotes", admin.List)
	r.Patch("/api/v1/admin/quotes/{id}/status", admin.UpdateStatus)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPreviewEndpoint(t *testing.T) {
	router := newTestRouter(newFakeRepo())
	rec := doJSON(t, router, http.MethodPost, "/api/v1/quotes/preview",
		`{"packageIds":["starter"],"contractTerm":"12month"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Totals struct {
			TotalMonthly       float64 `json:"totalMonthly"`
			DiscountPercentage int     `json:"discountPercentage"`
		} `json:"totals"`
		Currency string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 157.60, resp.Totals.TotalMonthly)
	require.Equal(t, 20, resp.Totals.DiscountPercentage)
	require.Equal(t, "USD", resp.Currency)
}

func TestPreviewLegacySinglePackageField(t *testing.T) {
	router := newTestRouter(newFakeRepo())
	rec := doJSON(t, router, http.MethodPost, "/api/v1/quotes/preview",
		`{"packageId":"starter","contractTerm":"1month"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPreviewEmptySelectionReturns422(t *testing.T) {
	router := newTestRouter(newFakeRepo())
	rec := doJSON(t, router, http.MethodPost, "/api/v1/quotes/preview",
		`{"addonIds":["ghost"],"contractTerm":"1month"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "EMPTY_SELECTION")
}

func TestEstimateEndpointValidation(t *testing.T) {
	router := newTestRouter(newFakeRepo())
	rec := doJSON(t, router, http.MethodPost, "/api/v1/quotes/estimate",
		`{"packageIds":["starter"],"contact":{"name":"A","email":"bad","phone":"1"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION")
}

func TestEstimateEndpointCreatesQuote(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/quotes/estimate",
		`{"packageIds":["starter"],"contractTerm":"1month","contact":{"name":"Ana Rivera","email":"ana@example.com","phone":"7875550123"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.quotes, 1)

	var resp struct {
		QuoteID    string `json:"quoteId"`
		EstimateID string `json:"estimateId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.QuoteID)
	require.Equal(t, "est-1", resp.EstimateID)
}

func TestGetQuoteEndpoint(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)
	stored, err := repo.Create(t.Context(), Quote{Contact: validContact(), Status: StatusPending})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/quotes/"+stored.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/quotes/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/quotes/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListNewestFirst(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)
	first, _ := repo.Create(t.Context(), Quote{Contact: validContact()})
	second, _ := repo.Create(t.Context(), Quote{Contact: validContact()})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/admin/quotes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, second.ID, resp.Data[0].ID)
	require.Equal(t, first.ID, resp.Data[1].ID)
}

func TestAdminUpdateStatus(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)
	stored, _ := repo.Create(t.Context(), Quote{Contact: validContact(), Status: StatusPending})

	rec := doJSON(t, router, http.MethodPatch, "/api/v1/admin/quotes/"+stored.ID.String()+"/status",
		`{"status":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StatusPaid, repo.quotes[stored.ID].Status)

	rec = doJSON(t, router, http.MethodPatch, "/api/v1/admin/quotes/"+stored.ID.String()+"/status",
		`{"status":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_STATUS")
}
