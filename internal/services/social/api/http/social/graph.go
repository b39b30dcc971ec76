package social

import (
	"net/http"

	"github.com/louisbranch/townsquare/internal/platform/pagination"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
)

func (h *handler) userPosts(w http.ResponseWriter, r *http.Request) {
	views, err := h.timeline.UserPosts(r.Context(), identityParam(r, "identity"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": nonNil(views)})
}

func (h *handler) followers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.graph.Followers(r.Context(), identityParam(r, "identity"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followers": nonNil(ids)})
}

func (h *handler) following(w http.ResponseWriter, r *http.Request) {
	ids, err := h.graph.Following(r.Context(), identityParam(r, "identity"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"following": nonNil(ids)})
}

func (h *handler) socialStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.graph.SocialStats(r.Context(), identityParam(r, "identity"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) mutualFollowers(w http.ResponseWriter, r *http.Request) {
	other := identity.Parse(r.URL.Query().Get("with"))
	ids, err := h.graph.MutualFollowers(r.Context(), identityParam(r, "identity"), other)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mutual_followers": nonNil(ids)})
}

func (h *handler) isFollowing(w http.ResponseWriter, r *http.Request) {
	ok, err := h.graph.IsFollowing(r.Context(), identityParam(r, "identity"), identityParam(r, "target"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_following": ok})
}

func (h *handler) follow(w http.ResponseWriter, r *http.Request) {
	edge, err := h.graph.Follow(r.Context(), identity.FromContext(r.Context()), identityParam(r, "identity"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (h *handler) unfollow(w http.ResponseWriter, r *http.Request) {
	if err := h.graph.Unfollow(r.Context(), identity.FromContext(r.Context()), identityParam(r, "identity")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) homeTimeline(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageQuery(r, listPageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views, err := h.timeline.HomeTimeline(r.Context(), identity.FromContext(r.Context()), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": nonNil(views)})
}

func (h *handler) suggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cards, err := h.timeline.Suggestions(r.Context(), identity.FromContext(r.Context()), pagination.ClampPageSize(limit, suggestionPageSize))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": nonNil(cards)})
}
