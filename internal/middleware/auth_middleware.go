package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/qcom/mobileauth/internal/service"
	"github.com/sirupsen/logrus"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*service.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *logrus.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r.Header.Get("Authorization"))
		if tokenString == "" {
			m.respondWithError(w, service.UnauthenticatedError("missing authorization token"))
			return
		}

		claims, err := m.verifier.Verify(r.Context(), tokenString)
		if err != nil {
			if service.KindOf(err) == service.KindUnavailable {
				m.logger.WithError(err).Error("Failed to verify token")
			} else {
				m.logger.WithError(err).Debug("Token verification failed")
			}
			m.respondWithError(w, err)
			return
		}

		ctx := WithIdentity(r.Context(), Identity{
			UserID:       claims.UserID,
			MobileNumber: claims.MobileNumber,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken accepts "Bearer <token>" with any scheme casing, or a bare token.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, "Bearer") {
		return ""
	}
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(rest)
	}
	if found {
		return ""
	}
	return header
}

func (m *AuthMiddleware) respondWithError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	code := string(service.KindOf(err))
	switch service.KindOf(err) {
	case service.KindExpired, service.KindMalformed, service.KindUnauthenticated:
	case service.KindUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
		code = "INTERNAL_ERROR"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {
			"code":    code,
			"message": service.MessageOf(err),
		},
	})
}
