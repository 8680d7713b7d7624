package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"transitpass/internal/document"
	"transitpass/internal/pass/service"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
)

// multipartOverhead leaves room for form fields around the uploaded document.
const multipartOverhead = 1 << 20

// parseApplyForm reads the multipart application form. The caller closes the
// returned file.
func parseApplyForm(w http.ResponseWriter, r *http.Request) (service.ApplyPassInput, multipart.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, document.MaxSize+multipartOverhead)
	if err := r.ParseMultipartForm(document.MaxSize + multipartOverhead); err != nil {
		return service.ApplyPassInput{}, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}

	in := service.ApplyPassInput{
		ApplicantName: r.FormValue("applicant_name"),
		Route:         r.FormValue("route"),
		Concession:    r.FormValue("concession"),
	}
	var err error
	if in.DistanceKm, err = parseFloatField(r, "distance_km", true); err != nil {
		return in, nil, err
	}
	months, err := parseIntField(r, "duration_months", true)
	if err != nil {
		return in, nil, err
	}
	in.DurationMonths = int(months)
	if in.Fare, err = parseIntField(r, "fare", false); err != nil {
		return in, nil, err
	}

	file, header, err := r.FormFile("id_proof")
	if err != nil {
		return in, nil, dErrors.New(dErrors.CodeValidation, "id_proof is required")
	}
	if header.Size > document.MaxSize {
		file.Close()
		return in, nil, dErrors.New(dErrors.CodeValidation, "id_proof exceeds the upload limit")
	}
	in.Document = file
	in.DocumentName = header.Filename
	return in, file, nil
}

func parseFloatField(r *http.Request, name string, required bool) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		if required {
			return 0, dErrors.New(dErrors.CodeValidation, name+" is required")
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a number")
	}
	return v, nil
}

func parseIntField(r *http.Request, name string, required bool) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		if required {
			return 0, dErrors.New(dErrors.CodeValidation, name+" is required")
		}
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer")
	}
	return v, nil
}

// ApplyRenewalRequest is the body of POST /renewal/apply.
type ApplyRenewalRequest struct {
	PassID              int64   `json:"pass_id"`
	DurationMonths      int     `json:"duration_months"`
	RenewalFare         int64   `json:"renewal_fare"`
	RouteChanged        bool    `json:"route_changed"`
	RequestedRoute      string  `json:"requested_route,omitempty"`
	RequestedDistanceKm float64 `json:"requested_distance_km,omitempty"`
}

func (r *ApplyRenewalRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.PassID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "pass_id is required")
	}
	r.RequestedRoute = strings.TrimSpace(r.RequestedRoute)
	if r.RouteChanged && r.RequestedRoute == "" {
		return dErrors.New(dErrors.CodeValidation, "requested_route is required when route_changed is set")
	}
	return nil
}

func (r *ApplyRenewalRequest) toInput() service.ApplyRenewalInput {
	return service.ApplyRenewalInput{
		PassID:              id.PassID(r.PassID),
		DurationMonths:      r.DurationMonths,
		RenewalFare:         r.RenewalFare,
		RouteChanged:        r.RouteChanged,
		RequestedRoute:      r.RequestedRoute,
		RequestedDistanceKm: r.RequestedDistanceKm,
	}
}
