package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/qcom/mobileauth/internal/middleware"
	"github.com/qcom/mobileauth/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	otpService *service.OTPService
	users      service.UserStore
	logger     *logrus.Logger
}

func NewAuthHandlers(otpService *service.OTPService, users service.UserStore, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		otpService: otpService,
		users:      users,
		logger:     logger,
	}
}

type RequestOTPRequest struct {
	MobileNumber string `json:"mobileNumber"`
}

type RequestOTPResponse struct {
	NormalizedMobile string `json:"normalizedMobile"`
	IsNewUser        bool   `json:"isNewUser"`
	Code             string `json:"code,omitempty"`
}

type VerifyOTPRequest struct {
	MobileNumber string `json:"mobileNumber"`
	Code         string `json:"code"`
}

type VerifyOTPResponse struct {
	Token        string    `json:"token"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserID       int64     `json:"userId"`
	MobileNumber string    `json:"mobileNumber"`
	CreatedAt    time.Time `json:"createdAt"`
}

type MeResponse struct {
	UserID       int64     `json:"userId"`
	MobileNumber string    `json:"mobileNumber"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *AuthHandlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req RequestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, string(service.KindValidation), "Invalid request body")
		return
	}

	result, err := h.otpService.IssueChallenge(r.Context(), req.MobileNumber)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, RequestOTPResponse{
		NormalizedMobile: result.NormalizedMobile,
		IsNewUser:        result.IsNewUser,
		Code:             result.Code,
	})
}

func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, string(service.KindValidation), "Invalid request body")
		return
	}

	result, err := h.otpService.VerifyChallenge(r.Context(), req.MobileNumber, req.Code)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Token:        result.Token,
		TokenType:    "Bearer",
		ExpiresAt:    result.ExpiresAt,
		UserID:       result.User.ID,
		MobileNumber: result.User.MobileNumber,
		CreatedAt:    result.User.CreatedAt,
	})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, string(service.KindUnauthenticated), "Not authenticated")
		return
	}

	user, err := h.users.GetByMobileNumber(r.Context(), identity.MobileNumber)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", identity.UserID).Error("Failed to load user")
		h.respondWithError(w, http.StatusServiceUnavailable, string(service.KindUnavailable), "service temporarily unavailable")
		return
	}
	if user == nil || user.ID != identity.UserID {
		h.respondWithError(w, http.StatusNotFound, string(service.KindNotFound), "user not found")
		return
	}

	h.respondWithJSON(w, http.StatusOK, MeResponse{
		UserID:       user.ID,
		MobileNumber: user.MobileNumber,
		CreatedAt:    user.CreatedAt,
	})
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func (h *AuthHandlers) respondWithServiceError(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	status := statusFor(kind)
	code := string(kind)
	if code == "" {
		h.logger.WithError(err).Error("Unhandled error")
		code = "INTERNAL_ERROR"
	}
	h.respondWithError(w, status, code, service.MessageOf(err))
}

func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindExpired, service.KindInvalid, service.KindMalformed, service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
