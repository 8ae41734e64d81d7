package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"infosync/internal/information/models"
	"infosync/internal/information/service"
	"infosync/pkg/domain"
	dErrors "infosync/pkg/domain-errors"
	"infosync/pkg/platform/httputil"
	"infosync/pkg/requestcontext"
)

// InformationService is the origin write path.
type InformationService interface {
	CreatePerson(ctx context.Context, cmd service.CreatePersonCommand) (*models.Person, error)
	CreateInsurer(ctx context.Context, cmd service.CreateInsurerCommand) (*models.Insurer, error)
	CreateInformation(ctx context.Context, personID domain.PersonID, patch models.RecordPatch) (*service.SaveResult, error)
	UpdateInformation(ctx context.Context, id domain.InformationID, patch models.RecordPatch) (*service.SaveResult, error)
}

type InformationHandler struct {
	svc    InformationService
	logger *slog.Logger
}

func NewInformationHandler(svc InformationService, logger *slog.Logger) *InformationHandler {
	return &InformationHandler{svc: svc, logger: logger}
}

// Register mounts the write path under /v1.
func (h *InformationHandler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/persons", h.handleCreatePerson)
		r.Post("/insurers", h.handleCreateInsurer)
		r.Post("/informations", h.handleCreateInformation)
		r.Patch("/informations/{id}", h.handleUpdateInformation)
	})
}

type personRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type personResponse struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type insurerRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	APIURL  string `json:"api_url"`
}

type insurerResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Email     string    `json:"email,omitempty"`
	APIURL    string    `json:"api_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// informationRequest serves both create and patch. Empty strings and absent
// pointers leave the stored value alone.
type informationRequest struct {
	PersonID          int64  `json:"person_id"`
	EmployeeNumber    string `json:"employee_number"`
	Address           string `json:"address"`
	InsuranceNumber   string `json:"insurance_number"`
	NationalID        string `json:"national_id"`
	Notes             string `json:"notes"`
	NotificationEmail string `json:"notification_email"`
	Confirmed         *bool  `json:"confirmed"`
	InsurerID         *int64 `json:"insurer_id"`
}

func (req informationRequest) patch() models.RecordPatch {
	p := models.RecordPatch{
		EmployeeNumber:    req.EmployeeNumber,
		Address:           req.Address,
		InsuranceNumber:   req.InsuranceNumber,
		NationalID:        req.NationalID,
		Notes:             req.Notes,
		NotificationEmail: req.NotificationEmail,
		Confirmed:         req.Confirmed,
	}
	if req.InsurerID != nil {
		id := domain.InsurerID(*req.InsurerID)
		p.InsurerID = &id
	}
	return p
}

type informationResponse struct {
	ID                int64     `json:"id"`
	PersonID          int64     `json:"person_id"`
	EmployeeNumber    string    `json:"employee_number"`
	Address           string    `json:"address"`
	InsuranceNumber   string    `json:"insurance_number"`
	NationalID        string    `json:"national_id"`
	Notes             string    `json:"notes,omitempty"`
	NotificationEmail string    `json:"notification_email,omitempty"`
	Confirmed         bool      `json:"confirmed"`
	InsurerID         *int64    `json:"insurer_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ModifiedAt        time.Time `json:"modified_at"`
	Propagated        bool      `json:"propagated"`
	NotificationID    *int64    `json:"notification_id,omitempty"`
}

func toInformationResponse(res *service.SaveResult) informationResponse {
	rec := res.Record
	out := informationResponse{
		ID:                int64(rec.ID),
		PersonID:          int64(rec.PersonID),
		EmployeeNumber:    rec.EmployeeNumber,
		Address:           rec.Address,
		InsuranceNumber:   rec.InsuranceNumber,
		NationalID:        rec.NationalID,
		Notes:             rec.Notes,
		NotificationEmail: rec.NotificationEmail,
		Confirmed:         rec.Confirmed,
		CreatedAt:         rec.CreatedAt,
		ModifiedAt:        rec.ModifiedAt,
		Propagated:        res.Propagated,
	}
	if rec.InsurerID != nil {
		id := int64(*rec.InsurerID)
		out.InsurerID = &id
	}
	if res.Notification != nil {
		id := int64(res.Notification.ID)
		out.NotificationID = &id
	}
	return out
}

func (h *InformationHandler) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req personRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid create person request", err)
		return
	}
	p, err := h.svc.CreatePerson(ctx, service.CreatePersonCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      req.Role,
	})
	if err != nil {
		h.fail(ctx, w, "create person failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, personResponse{
		ID:        int64(p.ID),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
	})
}

func (h *InformationHandler) handleCreateInsurer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req insurerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid create insurer request", err)
		return
	}
	i, err := h.svc.CreateInsurer(ctx, service.CreateInsurerCommand{
		Name:    req.Name,
		Address: req.Address,
		Email:   req.Email,
		APIURL:  req.APIURL,
	})
	if err != nil {
		h.fail(ctx, w, "create insurer failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, insurerResponse{
		ID:        int64(i.ID),
		Name:      i.Name,
		Address:   i.Address,
		Email:     i.Email,
		APIURL:    i.APIURL,
		CreatedAt: i.CreatedAt,
	})
}

func (h *InformationHandler) handleCreateInformation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req informationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid create information request", err)
		return
	}
	if req.PersonID <= 0 {
		h.fail(ctx, w, "invalid create information request", dErrors.New(dErrors.CodeValidation, "person_id is required"))
		return
	}
	res, err := h.svc.CreateInformation(ctx, domain.PersonID(req.PersonID), req.patch())
	if err != nil {
		h.fail(ctx, w, "create information failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toInformationResponse(res))
}

func (h *InformationHandler) handleUpdateInformation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseInformationID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid information id", err)
		return
	}
	var req informationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid update information request", err)
		return
	}
	res, err := h.svc.UpdateInformation(ctx, id, req.patch())
	if err != nil {
		h.fail(ctx, w, "update information failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInformationResponse(res))
}

func (h *InformationHandler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
