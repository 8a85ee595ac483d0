package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type proposeBody struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot string `json:"time_slot" validate:"required"`
	Message  string `json:"message" validate:"max=500"`
}

func TestDecodeJSONValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2025-06-01"}`))
	var body proposeBody
	err := DecodeJSON(req, &body)

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "time_slot is required")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2025-06-01","time_slot":"10:00 - 12:00 PM","status":"confirmed"}`))
	var body proposeBody
	err := DecodeJSON(req, &body)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDecodeJSONOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2025-06-01","time_slot":"10:00 - 12:00 PM"}`))
	var body proposeBody
	require.NoError(t, DecodeJSON(req, &body))
	assert.Equal(t, "10:00 - 12:00 PM", body.TimeSlot)
}

func TestWriteErrorShape(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.NotFound("appointment not found"), http.StatusNotFound, "not_found"},
		{apperr.Forbidden("vets only"), http.StatusForbidden, "forbidden"},
		{apperr.Conflict("stale version"), http.StatusConflict, "conflict"},
		{assert.AnError, http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		ErrorWriter(nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)

		require.Equal(t, tc.status, rec.Code)
		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.kind, body.Kind)
		assert.NotContains(t, body.Error, "assert.AnError")
	}
}

func TestIfMatchVersion(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	_, ok, err := IfMatchVersion(req)
	require.NoError(t, err)
	assert.False(t, ok)

	req.Header.Set("If-Match", `"3"`)
	v, ok, err := IfMatchVersion(req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	req.Header.Set("If-Match", "abc")
	_, _, err = IfMatchVersion(req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestTimeoutSkipsEventStreams(t *testing.T) {
	h := WithTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, isFlusher := w.(http.Flusher)
		if isFlusher {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
