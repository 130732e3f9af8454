package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-passwordless/internal/application/auth"
	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/clientip"
	"github.com/go-passwordless/internal/transport/http/middleware"
)

const msgBadBody = "Request body must be an object."

// AuthHandler handles the email-code login endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req auth.SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, msgBadBody)
		return
	}
	res, err := h.svc.RequestCode(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, SendCodeData{
		ExpiresAt:        millis(res.ExpiresAt),
		MaskedIdentifier: res.MaskedIdentifier,
	})
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, msgBadBody)
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), req, sessionMetadata(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, VerifyCodeData{
		Identity: toIdentityView(res.User),
		Token: TokenView{
			Value:     res.Session.Token,
			IssuedAt:  millis(res.IssuedAt),
			ExpiresAt: millis(res.Session.ExpiresAt),
		},
	})
}

// Me returns the user behind the request's session token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
		return
	}
	writeData(w, http.StatusOK, MeData{Identity: toIdentityView(u)})
}

func sessionMetadata(r *http.Request) domain.SessionMetadata {
	var meta domain.SessionMetadata
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		meta.UserAgent = &ua
	}
	if ip := clientip.FromRequest(r); ip != "" {
		meta.IPAddress = &ip
	}
	return meta
}
