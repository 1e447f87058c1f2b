package tracker_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sledzspecke/internal/app/tracker"
	"sledzspecke/internal/domain"
)

type TrackerHandler struct {
	service tracker.TrackerService
	logger  *zap.Logger
}

func NewTrackerHandler(s tracker.TrackerService, l *zap.Logger) *TrackerHandler {
	return &TrackerHandler{service: s, logger: l}
}

type CreateShiftRequest struct {
	InternshipID string `json:"internship_id"`
}

type ApproveShiftRequest struct {
	ApprovedBy string `json:"approved_by"`
}

type RegisterProcedureRequest struct {
	InternshipID string    `json:"internship_id"`
	Code         string    `json:"code"`
	PerformedAt  time.Time `json:"performed_at"`
}

type ShiftResponse struct {
	ID           string  `json:"id"`
	InternshipID string  `json:"internship_id"`
	Status       string  `json:"status"`
	ApprovedBy   *string `json:"approved_by,omitempty"`
	ApprovedAt   *string `json:"approved_at,omitempty"`
}

type ProcedureResponse struct {
	ID           string `json:"id"`
	InternshipID string `json:"internship_id"`
	Code         string `json:"code"`
}

func (h *TrackerHandler) CreateShiftHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	internshipID, err := uuid.Parse(req.InternshipID)
	if err != nil {
		http.Error(w, "Invalid internship_id", http.StatusBadRequest)
		return
	}

	shift, err := h.service.CreateMedicalShift(r.Context(), internshipID)
	if err != nil {
		h.logger.Error("Failed to create medical shift", zap.Error(err))
		http.Error(w, "Failed to create medical shift", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, shiftResponse(shift))
}

func (h *TrackerHandler) ApproveShiftHandler(w http.ResponseWriter, r *http.Request) {
	shiftID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid shift id", http.StatusBadRequest)
		return
	}

	var req ApproveShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ApprovedBy == "" {
		http.Error(w, "approved_by is required", http.StatusBadRequest)
		return
	}

	shift, err := h.service.ApproveMedicalShift(r.Context(), shiftID, req.ApprovedBy)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrShiftNotFound):
			http.Error(w, "Medical shift not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrShiftAlreadyApproved):
			http.Error(w, "Medical shift already approved", http.StatusConflict)
		default:
			h.logger.Error("Failed to approve medical shift", zap.String("shift_id", shiftID.String()), zap.Error(err))
			http.Error(w, "Failed to approve medical shift", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, shiftResponse(shift))
}

func (h *TrackerHandler) RegisterProcedureHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterProcedureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	internshipID, err := uuid.Parse(req.InternshipID)
	if err != nil {
		http.Error(w, "Invalid internship_id", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	performedAt := req.PerformedAt
	if performedAt.IsZero() {
		performedAt = time.Now().UTC()
	}

	procedure, err := h.service.RegisterProcedure(r.Context(), internshipID, req.Code, performedAt)
	if err != nil {
		h.logger.Error("Failed to register procedure", zap.Error(err))
		http.Error(w, "Failed to register procedure", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, ProcedureResponse{
		ID:           procedure.ID.String(),
		InternshipID: procedure.InternshipID.String(),
		Code:         procedure.Code,
	})
}

func shiftResponse(shift *domain.MedicalShift) ShiftResponse {
	resp := ShiftResponse{
		ID:           shift.ID.String(),
		InternshipID: shift.InternshipID.String(),
		Status:       string(shift.Status),
		ApprovedBy:   shift.ApprovedBy,
	}
	if shift.ApprovedAt != nil {
		approvedAt := shift.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &approvedAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
