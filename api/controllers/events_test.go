package controllers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplytrace-backend/internal/events"
	"github.com/angelmondragon/supplytrace-backend/internal/evidence"
	"github.com/angelmondragon/supplytrace-backend/internal/submission"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
)

type stubSubmitter struct {
	input submission.Input
	blobs []evidence.Blob
	calls int
	err   error
}

func (s *stubSubmitter) Submit(_ context.Context, input submission.Input, blobs []evidence.Blob) (*submission.Result, error) {
	s.calls++
	s.input = input
	s.blobs = blobs
	if s.err != nil {
		return nil, s.err
	}
	return &submission.Result{
		EventID:            uuid.MustParse("5f0c6f7e-1f55-4c71-9d44-2a8d0f3a9b10"),
		TransactionLocator: "0xabc",
		EvidenceLocator:    "Qm123",
		VerificationStatus: enums.VerificationStatusPending,
	}, nil
}

var defaultLimits = UploadLimits{MaxFiles: 2, MaxFileSize: 1 << 20}

func TestSubmitEventJSON(t *testing.T) {
	stub := &stubSubmitter{}
	body := `{"productId":"PROD-1","stage":"farm","submitter":"alice","temperature":"4.5","latitude":40.7,"longitude":"-74.0","notes":"cold"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	SubmitEvent(stub, defaultLimits, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp submitEventResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "0xabc", resp.TransactionHash)
	assert.Equal(t, "Qm123", resp.IPFSHash)
	assert.Equal(t, "pending", resp.AIVerified)
	assert.NotEmpty(t, resp.Message)

	require.NotNil(t, stub.input.Temperature)
	assert.Equal(t, 4.5, *stub.input.Temperature)
	require.NotNil(t, stub.input.Latitude)
	require.NotNil(t, stub.input.Longitude)
	assert.Equal(t, -74.0, *stub.input.Longitude)
	assert.Equal(t, "cold", *stub.input.Notes)
	assert.Empty(t, stub.blobs)
}

func TestSubmitEventRejectsNonNumericFields(t *testing.T) {
	stub := &stubSubmitter{}
	body := `{"productId":"PROD-1","stage":"farm","submitter":"alice","temperature":"warm","latitude":"north","longitude":"1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	SubmitEvent(stub, defaultLimits, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
	assert.ElementsMatch(t, []string{"temperature must be a number", "latitude must be a number"}, env.Error.Details)
	assert.Zero(t, stub.calls)
}

func TestSubmitEventRejectsNonFiniteNumbers(t *testing.T) {
	stub := &stubSubmitter{}
	body := `{"productId":"PROD-1","stage":"farm","submitter":"alice","temperature":"NaN","latitude":"Inf","longitude":"-Infinity"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	SubmitEvent(stub, defaultLimits, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
	assert.ElementsMatch(t, []string{
		"temperature must be a number",
		"latitude must be a number",
		"longitude must be a number",
	}, env.Error.Details)
	assert.Zero(t, stub.calls)
}

func TestSubmitEventURLEncoded(t *testing.T) {
	stub := &stubSubmitter{}
	form := url.Values{}
	form.Set("productId", "PROD-2")
	form.Set("stage", "warehouse")
	form.Set("submitter", "bob")
	form.Set("temperature", "")
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	SubmitEvent(stub, defaultLimits, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "PROD-2", stub.input.ProductID)
	assert.Equal(t, "warehouse", stub.input.Stage)
	assert.Nil(t, stub.input.Temperature)
	assert.Nil(t, stub.input.Notes)
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="evidence"; filename="`+name+`"`)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/events", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSubmitEventMultipartWithEvidence(t *testing.T) {
	stub := &stubSubmitter{}
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	req := multipartRequest(t,
		map[string]string{"productId": "PROD-3", "stage": "farm", "submitter": "carol", "latitude": "1.5", "longitude": "2.5"},
		map[string][]byte{"crate.png": png},
	)
	rec := httptest.NewRecorder()

	SubmitEvent(stub, defaultLimits, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, stub.blobs, 1)
	assert.Equal(t, "crate.png", stub.blobs[0].Filename)
	assert.Equal(t, "image/png", stub.blobs[0].ContentType)
	assert.Equal(t, png, stub.blobs[0].Data)
	assert.Equal(t, 1.5, *stub.input.Latitude)
}

func TestSubmitEventMultipartLimits(t *testing.T) {
	t.Run("too many files", func(t *testing.T) {
		stub := &stubSubmitter{}
		req := multipartRequest(t,
			map[string]string{"productId": "P", "stage": "farm", "submitter": "s"},
			map[string][]byte{"a.txt": []byte("a"), "b.txt": []byte("b"), "c.txt": []byte("c")},
		)
		rec := httptest.NewRecorder()
		SubmitEvent(stub, defaultLimits, testLogger()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, stub.calls)
	})

	t.Run("file too large", func(t *testing.T) {
		stub := &stubSubmitter{}
		req := multipartRequest(t,
			map[string]string{"productId": "P", "stage": "farm", "submitter": "s"},
			map[string][]byte{"big.bin": bytes.Repeat([]byte("x"), 64)},
		)
		rec := httptest.NewRecorder()
		SubmitEvent(stub, UploadLimits{MaxFiles: 10, MaxFileSize: 32}, testLogger()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, stub.calls)
	})
}

func TestSubmitEventPropagatesServiceErrors(t *testing.T) {
	stub := &stubSubmitter{err: pkgerrors.Validation("stage must be one of: farm")}
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"productId":"P","stage":"moon","submitter":"s"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	SubmitEvent(stub, defaultLimits, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "stage must be one of: farm", decodeEnvelope(t, rec).Error.Message)
}

type stubEventReader struct {
	list  []models.SupplyEvent
	event *models.SupplyEvent
}

func (s *stubEventReader) ListByProduct(_ context.Context, _ string) ([]models.SupplyEvent, error) {
	if s.list == nil {
		return []models.SupplyEvent{}, nil
	}
	return s.list, nil
}

func (s *stubEventReader) Get(_ context.Context, id uuid.UUID) (*models.SupplyEvent, error) {
	if s.event == nil || s.event.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return s.event, nil
}

func TestListProductEventsEmpty(t *testing.T) {
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/events/product/UNKNOWN", nil), map[string]string{"productId": "UNKNOWN"})
	rec := httptest.NewRecorder()

	ListProductEvents(&stubEventReader{}, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestGetEvent(t *testing.T) {
	lat, lng := 10.0, 20.0
	event := &models.SupplyEvent{
		ID:                 uuid.New(),
		ProductID:          "PROD-1",
		Stage:              enums.StageFarm,
		Submitter:          "alice",
		RecordedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Latitude:           &lat,
		Longitude:          &lng,
		EvidenceLocator:    "Qm1",
		TransactionLocator: "0x1",
		VerificationStatus: enums.VerificationStatusVerified,
	}
	reader := &stubEventReader{event: event}

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/events/"+event.ID.String(), nil), map[string]string{"eventId": event.ID.String()})
	rec := httptest.NewRecorder()
	GetEvent(reader, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto events.EventDTO
	decodeData(t, rec, &dto)
	assert.Equal(t, event.ID, dto.ID)
	assert.Equal(t, enums.VerificationStatusVerified, dto.AIVerified)
	require.NotNil(t, dto.Metadata.Location)
	assert.Equal(t, 20.0, dto.Metadata.Location.Lng)

	for _, id := range []string{"not-a-uuid", uuid.NewString()} {
		req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/events/"+id, nil), map[string]string{"eventId": id})
		rec := httptest.NewRecorder()
		GetEvent(reader, testLogger()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
	}
}
