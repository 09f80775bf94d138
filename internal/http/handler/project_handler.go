package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bvc-digitalhub/digitalhub-api/internal/http/response"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
)

type ProjectHandler struct {
	projectSvc service.ProjectServiceInterface
}

func NewProjectHandler(projectSvc service.ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{projectSvc: projectSvc}
}

type projectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TechStack   []string `json:"tech_stack"`
	RepoLink    string   `json:"repo_link"`
	LiveLink    string   `json:"live_link"`
}

func (p projectRequest) input() service.ProjectInput {
	return service.ProjectInput{
		Title:       p.Title,
		Description: p.Description,
		TechStack:   p.TechStack,
		RepoLink:    p.RepoLink,
		LiveLink:    p.LiveLink,
	}
}

type likesResponse struct {
	Likes []string `json:"likes"`
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	pageReq, err := parsePageRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	result, err := h.projectSvc.List(r.Context(), pageReq)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, paginatedData(result.Items, result.Page, result.PageSize, result.Total, result.TotalPages))
}

func (h *ProjectHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	pageReq, err := parsePageRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	result, err := h.projectSvc.ListByOwner(r.Context(), accountID, pageReq)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, paginatedData(result.Items, result.Page, result.PageSize, result.Total, result.TotalPages))
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, project)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	project, err := h.projectSvc.Create(r.Context(), accountID, req.input())
	if err != nil {
		outcome := writeServiceError(w, r, err)
		h.audit(r, accountID, "", "create", outcome)
		return
	}
	h.audit(r, accountID, project.ID, "create", "success")
	response.JSON(w, r, http.StatusCreated, project)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	project, err := h.projectSvc.Update(r.Context(), accountID, id, req.input())
	if err != nil {
		outcome := writeServiceError(w, r, err)
		h.audit(r, accountID, id, "update", outcome)
		return
	}
	h.audit(r, accountID, id, "update", "success")
	response.JSON(w, r, http.StatusOK, project)
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.projectSvc.Delete(r.Context(), accountID, id); err != nil {
		outcome := writeServiceError(w, r, err)
		h.audit(r, accountID, id, "delete", outcome)
		return
	}
	h.audit(r, accountID, id, "delete", "success")
	response.JSON(w, r, http.StatusOK, messageData{Message: "Project deleted"})
}

func (h *ProjectHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	likes, err := h.projectSvc.ToggleLike(r.Context(), id, accountID)
	if err != nil {
		outcome := writeServiceError(w, r, err)
		h.audit(r, accountID, id, "toggle_like", outcome)
		return
	}
	h.audit(r, accountID, id, "toggle_like", "success")
	response.JSON(w, r, http.StatusOK, likesResponse{Likes: likes})
}

func (h *ProjectHandler) audit(r *http.Request, actorID, projectID, action, outcome string) {
	reason := ""
	if outcome != "success" {
		reason = outcome
		outcome = "failure"
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "project." + action,
		ActorUserID: actorID,
		TargetType:  "project",
		TargetID:    projectID,
		Action:      action,
		Outcome:     outcome,
		Reason:      reason,
	})
}
