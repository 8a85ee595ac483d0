package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow/workflowtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	svc     *workflow.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := workflow.NewService(workflowtest.New(), logger, workflow.Options{
		Now: func() time.Time { return time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC) },
	})
	mux := http.NewServeMux()
	NewBookingHandler(svc, logger).Register(mux)
	return &testAPI{t: t, handler: auth.WithTrustedHeaders(mux), svc: svc}
}

func (a *testAPI) do(method, path string, p auth.Principal, body string, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if p.UserID != "" {
		auth.SetHeaders(req.Header, p)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var (
	ownerP = auth.Principal{UserID: "owner-1", Role: auth.RolePetOwner}
	vetP   = auth.Principal{UserID: "vet-1", Role: auth.RoleVet}
	adminP = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
)

func TestDraftRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/appointments/draft", auth.Principal{}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[httpx.ErrorBody](t, rec)
	assert.Equal(t, "unauthorized", body.Kind)
}

func TestDraftIsStable(t *testing.T) {
	api := newTestAPI(t)
	first := decode[appointmentResponse](t, api.do(http.MethodPost, "/api/v1/appointments/draft", ownerP, ""))
	second := api.do(http.MethodPost, "/api/v1/appointments/draft", ownerP, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.ID, decode[appointmentResponse](t, second).ID)
	assert.Equal(t, "pending", first.Status)
	assert.ElementsMatch(t, []string{"pet_id", "date", "time_slot", "address", "services"}, first.MissingFields)
	assert.Equal(t, `"1"`, second.Header().Get("ETag"))
}

func TestVetCannotCreateDraft(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/appointments/draft", vetP, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateDraftFlow(t *testing.T) {
	api := newTestAPI(t)
	pet := decode[petResponse](t, api.do(http.MethodPost, "/api/v1/pets", ownerP, `{"name":"Buddy","species":"dog"}`))
	draft := decode[appointmentResponse](t, api.do(http.MethodPost, "/api/v1/appointments/draft", ownerP, ""))

	rec := api.do(http.MethodPatch, "/api/v1/appointments/"+draft.ID, ownerP,
		`{"pet_id":"`+pet.ID+`","date":"2025-06-01","time_slot":"10:00 - 12:00 PM","address":"1 Main St","services":["house_call"]}`,
		"If-Match", `"1"`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[appointmentResponse](t, rec)
	assert.Empty(t, got.MissingFields)
	assert.Equal(t, int64(9900), got.TotalCents)
	assert.Equal(t, int64(2), got.Version)

	stale := api.do(http.MethodPatch, "/api/v1/appointments/"+draft.ID, ownerP, `{"notes":"gate code 12"}`, "If-Match", "1")
	assert.Equal(t, http.StatusConflict, stale.Code)
}

func TestUpdateDraftRejectsBadInput(t *testing.T) {
	api := newTestAPI(t)
	draft := decode[appointmentResponse](t, api.do(http.MethodPost, "/api/v1/appointments/draft", ownerP, ""))

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `{"colour":"red"}`},
		{name: "bad date", body: `{"date":"01/06/2025"}`},
		{name: "bad window", body: `{"time_slot":"lunchtime"}`},
		{name: "unknown service", body: `{"services":["grooming"]}`},
		{name: "malformed", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(http.MethodPatch, "/api/v1/appointments/"+draft.ID, ownerP, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "validation", decode[httpx.ErrorBody](t, rec).Kind)
		})
	}
}

func TestVetRoutesRejectOwner(t *testing.T) {
	api := newTestAPI(t)
	draft := decode[appointmentResponse](t, api.do(http.MethodPost, "/api/v1/appointments/draft", ownerP, ""))
	for _, path := range []string{"accept", "decline", "start"} {
		rec := api.do(http.MethodPost, "/api/v1/appointments/"+draft.ID+"/"+path, ownerP, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
	rec := api.do(http.MethodPost, "/api/v1/appointments/"+draft.ID+"/propose", adminP, `{"date":"2025-06-01","time_slot":"10:00 - 12:00 PM"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProposeValidation(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/appointments/appt-1/propose", vetP, `{"date":"2025-06-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[httpx.ErrorBody](t, rec).Error, "time_slot is required")
}

func TestRespondDecisionValidated(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/appointments/appt-1/respond", ownerP, `{"decision":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptUnknownAppointment(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/appointments/appt-404/accept", vetP, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[httpx.ErrorBody](t, rec).Kind)
}

func TestAcceptAndCancelConflict(t *testing.T) {
	api := newTestAPI(t)
	pet := decode[petResponse](t, api.do(http.MethodPost, "/api/v1/pets", ownerP, `{"name":"Buddy","species":"dog"}`))
	draft := decode[appointmentResponse](t, api.do(http.MethodPost, "/api/v1/appointments/draft", ownerP, ""))
	api.do(http.MethodPatch, "/api/v1/appointments/"+draft.ID, ownerP,
		`{"pet_id":"`+pet.ID+`","date":"2025-06-01","time_slot":"10:00 - 12:00 PM","address":"1 Main St","services":["house_call"]}`)
	authorized, err := api.svc.MarkPaymentAuthorized(t.Context(), draft.ID, "pi_1", "cs_1")
	require.NoError(t, err)
	version := strconv.Quote(strconv.FormatInt(authorized.Version, 10))

	rec := api.do(http.MethodPost, "/api/v1/appointments/"+draft.ID+"/accept", vetP, `{"start":false}`, "If-Match", version)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode[appointmentResponse](t, rec).Status)

	// The owner raced the vet with the version it saw before the accept.
	rec = api.do(http.MethodDelete, "/api/v1/appointments/"+draft.ID, ownerP, "", "If-Match", version)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodDelete, "/api/v1/appointments/"+draft.ID, ownerP, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/notifications", vetP, "")
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[struct {
		Notifications []notificationResponse `json:"notifications"`
	}](t, rec)
	require.Len(t, notes.Notifications, 1)
	assert.Equal(t, "cancelled", notes.Notifications[0].Kind)
	assert.Empty(t, notes.Notifications[0].AppointmentID)
}

func TestBadIfMatch(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/appointments/appt-1/start", vetP, "", "If-Match", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogAndSlots(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/api/v1/catalog", ownerP, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "house_call")

	rec = api.do(http.MethodGet, "/api/v1/slots?date=2025-06-01", ownerP, "")
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[struct {
		Slots []struct {
			Label string `json:"time_slot"`
		} `json:"slots"`
	}](t, rec)
	assert.Len(t, slots.Slots, 5)

	rec = api.do(http.MethodGet, "/api/v1/slots?date=June", ownerP, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPetsAreOwnerScoped(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/pets", ownerP, `{"name":"Buddy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	api.do(http.MethodPost, "/api/v1/pets", ownerP, `{"name":"Buddy","species":"dog","birth_date":"2020-02-01"}`)
	other := auth.Principal{UserID: "owner-2", Role: auth.RolePetOwner}
	rec = api.do(http.MethodGet, "/api/v1/pets", other, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pets":[]}`, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/v1/pets", ownerP, "")
	assert.Contains(t, rec.Body.String(), `"Buddy"`)
}

func TestMalformedPathIDsAreNotFound(t *testing.T) {
	api := newTestAPI(t)
	cases := []struct {
		method, path string
		p            auth.Principal
		body         string
	}{
		{http.MethodGet, "/api/v1/appointments/not-a-uuid", ownerP, ""},
		{http.MethodPatch, "/api/v1/appointments/not-a-uuid", ownerP, `{"notes":"x"}`},
		{http.MethodDelete, "/api/v1/appointments/not-a-uuid", ownerP, ""},
		{http.MethodPost, "/api/v1/appointments/not-a-uuid/accept", vetP, ""},
		{http.MethodPost, "/api/v1/appointments/not-a-uuid/start", vetP, ""},
		{http.MethodGet, "/api/v1/appointments/not-a-uuid/proposals", ownerP, ""},
		{http.MethodGet, "/api/v1/appointments/not-a-uuid/report", ownerP, ""},
		{http.MethodPost, "/api/v1/notifications/not-a-uuid/read", ownerP, ""},
	}
	for _, tt := range cases {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.p, tt.body)
			assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
			assert.Equal(t, "not_found", decode[httpx.ErrorBody](t, rec).Kind)
		})
	}
}

func TestMalformedBodyIDsAreValidation(t *testing.T) {
	api := newTestAPI(t)
	draft := decode[appointmentResponse](t, api.do(http.MethodPost, "/api/v1/appointments/draft", ownerP, ""))

	for _, body := range []string{`{"pet_id":"not-a-uuid"}`, `{"vet_id":"not-a-uuid"}`} {
		rec := api.do(http.MethodPatch, "/api/v1/appointments/"+draft.ID, ownerP, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "validation", decode[httpx.ErrorBody](t, rec).Kind, body)
	}

	rec := api.do(http.MethodPost, "/api/v1/appointments/"+draft.ID+"/respond", ownerP,
		`{"decision":"accept_proposal","proposal_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[httpx.ErrorBody](t, rec).Error, "proposal_id must be a uuid")
}
