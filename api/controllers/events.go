package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/api/responses"
	"github.com/angelmondragon/supplytrace-backend/api/validators"
	"github.com/angelmondragon/supplytrace-backend/internal/events"
	"github.com/angelmondragon/supplytrace-backend/internal/evidence"
	"github.com/angelmondragon/supplytrace-backend/internal/submission"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

const (
	evidenceField            = "evidence"
	multipartMemory          = 32 << 20
	submissionAcceptedNotice = "Supply chain event recorded successfully"
)

// EventSubmitter records supply events.
type EventSubmitter interface {
	Submit(ctx context.Context, input submission.Input, blobs []evidence.Blob) (*submission.Result, error)
}

// EventReader serves stored supply events.
type EventReader interface {
	ListByProduct(ctx context.Context, productID string) ([]models.SupplyEvent, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SupplyEvent, error)
}

// UploadLimits bounds the evidence files accepted with a submission.
type UploadLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

type submitEventResponse struct {
	EventID         uuid.UUID `json:"eventId"`
	TransactionHash string    `json:"transactionHash"`
	IPFSHash        string    `json:"ipfsHash"`
	AIVerified      string    `json:"aiVerified"`
	Message         string    `json:"message"`
	Degraded        bool      `json:"degraded"`
}

// SubmitEvent accepts a submission as multipart form (with evidence files),
// urlencoded form or JSON.
func SubmitEvent(svc EventSubmitter, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "submission service unavailable"))
			return
		}

		input, blobs, err := readSubmission(r, limits)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), input, blobs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, submitEventResponse{
			EventID:         result.EventID,
			TransactionHash: result.TransactionLocator,
			IPFSHash:        result.EvidenceLocator,
			AIVerified:      string(result.VerificationStatus),
			Message:         submissionAcceptedNotice,
			Degraded:        result.Degraded,
		})
	}
}

// ListProductEvents returns a product's events newest first; unknown
// products yield an empty list.
func ListProductEvents(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByProduct(r.Context(), chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events.FromModels(list))
	}
}

func GetEvent(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "eventId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "event not found"))
			return
		}
		event, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events.FromModel(*event))
	}
}

func readSubmission(r *http.Request, limits UploadLimits) (submission.Input, []evidence.Blob, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return submission.Input{}, nil, bodyError(err)
		}
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
		input, err := inputFromForm(r)
		if err != nil {
			return submission.Input{}, nil, err
		}
		blobs, err := readEvidence(r.MultipartForm, limits)
		if err != nil {
			return submission.Input{}, nil, err
		}
		return input, blobs, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return submission.Input{}, nil, bodyError(err)
		}
		input, err := inputFromForm(r)
		return input, nil, err
	default:
		var body submitEventRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return submission.Input{}, nil, err
		}
		input, err := body.toInput()
		return input, nil, err
	}
}

func inputFromForm(r *http.Request) (submission.Input, error) {
	req := submitEventRequest{
		ProductID:   r.FormValue("productId"),
		Stage:       r.FormValue("stage"),
		Submitter:   r.FormValue("submitter"),
		Temperature: formNumber(r, "temperature"),
		Latitude:    formNumber(r, "latitude"),
		Longitude:   formNumber(r, "longitude"),
	}
	if notes := r.FormValue("notes"); notes != "" {
		req.Notes = &notes
	}
	return req.toInput()
}

func formNumber(r *http.Request, key string) numberField {
	raw := r.FormValue(key)
	return numberField{raw: raw, set: strings.TrimSpace(raw) != ""}
}

func readEvidence(form *multipart.Form, limits UploadLimits) ([]evidence.Blob, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File[evidenceField]
	if limits.MaxFiles > 0 && len(headers) > limits.MaxFiles {
		return nil, pkgerrors.Validation(fmt.Sprintf("at most %d evidence files are accepted", limits.MaxFiles))
	}

	blobs := make([]evidence.Blob, 0, len(headers))
	for _, header := range headers {
		if limits.MaxFileSize > 0 && header.Size > limits.MaxFileSize {
			return nil, pkgerrors.Validation(fmt.Sprintf("%s exceeds the %d byte evidence limit", header.Filename, limits.MaxFileSize))
		}
		file, err := header.Open()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read evidence file")
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read evidence file")
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		blobs = append(blobs, evidence.Blob{
			Filename:    header.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return blobs, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.Validation(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid form body")
}

// submitEventRequest mirrors the form fields; numeric values may arrive as
// JSON numbers or numeric strings.
type submitEventRequest struct {
	ProductID   string      `json:"productId"`
	Stage       string      `json:"stage"`
	Submitter   string      `json:"submitter"`
	Temperature numberField `json:"temperature"`
	Notes       *string     `json:"notes"`
	Latitude    numberField `json:"latitude"`
	Longitude   numberField `json:"longitude"`
}

func (req submitEventRequest) toInput() (submission.Input, error) {
	input := submission.Input{
		ProductID: req.ProductID,
		Stage:     req.Stage,
		Submitter: req.Submitter,
		Notes:     req.Notes,
	}

	var problems []string
	for _, field := range []struct {
		name string
		in   numberField
		out  **float64
	}{
		{"temperature", req.Temperature, &input.Temperature},
		{"latitude", req.Latitude, &input.Latitude},
		{"longitude", req.Longitude, &input.Longitude},
	} {
		if !field.in.set {
			continue
		}
		value, err := validators.ParseOptionalFloat(field.name, field.in.raw)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		*field.out = value
	}
	if len(problems) > 0 {
		return submission.Input{}, pkgerrors.Validation(problems...)
	}
	return input, nil
}

type numberField struct {
	raw string
	set bool
}

func (n *numberField) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*n = numberField{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = numberField{raw: s, set: strings.TrimSpace(s) != ""}
		return nil
	}
	*n = numberField{raw: trimmed, set: true}
	return nil
}
