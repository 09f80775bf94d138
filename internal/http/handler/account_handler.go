package handler

import (
	"net/http"

	"github.com/bvc-digitalhub/digitalhub-api/internal/http/response"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
)

type profileRequest struct {
	Name        string `json:"name"`
	IsOnboarded *bool  `json:"is_onboarded"`
}

type AccountHandler struct {
	accountSvc service.AccountServiceInterface
}

func NewAccountHandler(accountSvc service.AccountServiceInterface) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	account, err := h.accountSvc.Get(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}

// UpdateProfile saves the onboarding form: display name plus the onboarding
// flag, which is set unless the client sends is_onboarded=false.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.accountSvc.UpdateProfile(r.Context(), accountID, service.ProfileInput{
		Name:      req.Name,
		Onboarded: req.IsOnboarded,
	})
	if err != nil {
		outcome := writeServiceError(w, r, err)
		observability.Audit(r, "account.profile.update", "failure", "reason", outcome)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "account.profile.update",
		ActorUserID: accountID,
		TargetType:  "account",
		TargetID:    accountID,
		Action:      "update",
		Outcome:     "success",
	})
	response.JSON(w, r, http.StatusOK, account)
}
