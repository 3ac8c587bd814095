package pms

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{
		BaseURL:  srv.URL,
		ClientID: "dentix",
		Username: "oracle",
		Password: "secret",
	})
	require.NoError(t, err)
	return client, srv
}

func TestCallSendsFixedEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req procedureRequest
		require.NoError(t, xml.Unmarshal(body, &req))
		assert.Equal(t, "dentix", req.ClientID)
		assert.Equal(t, "oracle", req.Username)
		assert.Equal(t, "secret", req.Password)
		assert.Equal(t, "GetScheduledAppointments", req.Procedure)
		require.Len(t, req.Params, 1)
		assert.Equal(t, "Date", req.Params[0].Name)

		io.WriteString(w, `<Response><Records>
			<Record><StartTime>2026-03-01 09:30</StartTime><PatientName>Avery Chen</PatientName></Record>
			<Record><StartTime>2026-03-01 10:00</StartTime></Record>
		</Records></Response>`)
	})

	records, err := client.Call(context.Background(), "GetScheduledAppointments", []Param{{Name: "Date", Value: "2026-03-01"}})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Avery Chen", records[0].Get("PatientName"))
	assert.Equal(t, "", records[1].Get("PatientName"), "absent fields read as empty")
}

func TestCallErrorEnvelopeIsNotZeroResults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<Response><Error>invalid credentials</Error></Response>`)
	})

	_, err := client.Call(context.Background(), "GetScheduledAppointments", nil)
	require.ErrorIs(t, err, ErrProcedure)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestCallEmptyRecordsSucceeds(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<Response><Records></Records></Response>`)
	})

	records, err := client.Call(context.Background(), "GetScheduledAppointments", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSlotOccupied(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<Response><Records>
			<Record><StartTime>2026-03-01 09:30</StartTime><PatientName>Avery Chen</PatientName></Record>
		</Records></Response>`)
	})

	slot := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	occupied, holder, err := client.SlotOccupied(context.Background(), slot)
	require.NoError(t, err)
	assert.True(t, occupied)
	assert.Equal(t, "Avery Chen", holder)

	occupied, holder, err = client.SlotOccupied(context.Background(), slot.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, occupied)
	assert.Empty(t, holder)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
