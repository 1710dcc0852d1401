package httpapi

import (
	"net/http"

	"gatekeeper.dev/internal/audit"
	"gatekeeper.dev/internal/auth"
	"gatekeeper.dev/internal/ids"
	"gatekeeper.dev/internal/posts"
)

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func (a *API) handleListPosts(w http.ResponseWriter, r *http.Request) {
	ident := auth.MustIdentity(r.Context())

	all, err := a.posts.List(r.Context())
	if err != nil {
		handlePostError(w, r, err)
		return
	}

	q := r.URL.Query()
	statusFilter := q.Get("status")
	authorFilter := q.Get("authorId")

	visible := make([]posts.Post, 0, len(all))
	for _, p := range all {
		if !posts.VisibleTo(ident, p) {
			continue
		}
		if statusFilter != "" && string(p.Status) != statusFilter {
			continue
		}
		if authorFilter != "" && p.AuthorID != authorFilter {
			continue
		}
		visible = append(visible, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": visible})
}

func (a *API) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	_, actor := a.actor(r)

	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = string(posts.StatusDraft)
	}
	status, ok := posts.ParseStatus(req.Status)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "status must be draft or published")
		return
	}

	created, err := a.posts.Create(r.Context(), posts.Post{
		ID:         ids.New(),
		Title:      req.Title,
		Content:    req.Content,
		AuthorID:   actor.SubjectID,
		AuthorName: actor.SubjectName,
		Status:     status,
	})
	if err != nil {
		handlePostError(w, r, err)
		return
	}

	e := actor
	e.Action = audit.ActionCreate
	e.Resource = audit.ResourcePost
	e.ResourceID = created.ID
	e.ResourceName = created.Title
	e.Status = audit.StatusSuccess
	e.Details = "created post as " + string(created.Status)
	if !a.recordAudit(w, r, e) {
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	ident, actor := a.actor(r)
	id := r.PathValue("id")

	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, ok := posts.ParseStatus(req.Status)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "status must be draft or published")
		return
	}

	before, err := a.posts.Find(r.Context(), id)
	if err != nil {
		handlePostError(w, r, err)
		return
	}
	if !posts.CanModify(ident, before) {
		e := actor
		e.Action = audit.ActionUpdate
		e.Resource = audit.ResourcePost
		e.ResourceID = before.ID
		e.ResourceName = before.Title
		e.Status = audit.StatusFailure
		e.Details = "attempted to update another author's post"
		if !a.recordAudit(w, r, e) {
			return
		}
		writeError(w, r, http.StatusForbidden, "you can only modify your own posts")
		return
	}

	after, err := a.posts.Update(r.Context(), id, req.Title, req.Content, status)
	if err != nil {
		handlePostError(w, r, err)
		return
	}

	changes := map[string]audit.Change{}
	if before.Title != after.Title {
		changes["title"] = audit.Change{From: before.Title, To: after.Title}
	}
	if before.Content != after.Content {
		changes["content"] = audit.Change{From: before.Content, To: after.Content}
	}
	if before.Status != after.Status {
		changes["status"] = audit.Change{From: string(before.Status), To: string(after.Status)}
	}

	e := actor
	e.Action = audit.ActionUpdate
	e.Resource = audit.ResourcePost
	e.ResourceID = after.ID
	e.ResourceName = after.Title
	e.Status = audit.StatusSuccess
	e.Details = "updated post"
	e.Changes = changes
	if !a.recordAudit(w, r, e) {
		return
	}

	writeJSON(w, http.StatusOK, after)
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	ident, actor := a.actor(r)
	id := r.PathValue("id")

	victim, err := a.posts.Find(r.Context(), id)
	if err != nil {
		handlePostError(w, r, err)
		return
	}
	if !posts.CanModify(ident, victim) {
		e := actor
		e.Action = audit.ActionDelete
		e.Resource = audit.ResourcePost
		e.ResourceID = victim.ID
		e.ResourceName = victim.Title
		e.Status = audit.StatusFailure
		e.Details = "attempted to delete another author's post"
		if !a.recordAudit(w, r, e) {
			return
		}
		writeError(w, r, http.StatusForbidden, "you can only modify your own posts")
		return
	}

	if err := a.posts.Delete(r.Context(), id); err != nil {
		handlePostError(w, r, err)
		return
	}

	e := actor
	e.Action = audit.ActionDelete
	e.Resource = audit.ResourcePost
	e.ResourceID = victim.ID
	e.ResourceName = victim.Title
	e.Status = audit.StatusSuccess
	e.Details = "deleted post"
	if !a.recordAudit(w, r, e) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
