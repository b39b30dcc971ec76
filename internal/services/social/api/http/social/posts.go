package social

import (
	"context"
	"net/http"

	"github.com/louisbranch/townsquare/internal/platform/pagination"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"github.com/louisbranch/townsquare/internal/services/social/posts"
)

type createPostRequest struct {
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls"`
}

type updatePostRequest struct {
	Content   *string   `json:"content"`
	MediaURLs *[]string `json:"media_urls"`
}

func (h *handler) recentPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageQuery(r, listPageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views, err := h.timeline.RecentPosts(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": nonNil(views)})
}

func (h *handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := h.posts.CreatePost(r.Context(), identity.FromContext(r.Context()), posts.CreatePostInput{
		Content:   req.Content,
		MediaURLs: req.MediaURLs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *handler) getPost(w http.ResponseWriter, r *http.Request) {
	postID, err := postIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.timeline.GetPost(r.Context(), postID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) updatePost(w http.ResponseWriter, r *http.Request) {
	postID, err := postIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updatePostRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := h.posts.UpdatePost(r.Context(), identity.FromContext(r.Context()), postID, posts.UpdatePostInput{
		Content:   req.Content,
		MediaURLs: req.MediaURLs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *handler) deletePost(w http.ResponseWriter, r *http.Request) {
	postID, err := postIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.posts.DeletePost(r.Context(), identity.FromContext(r.Context()), postID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) likePost(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, h.posts.LikePost)
}

func (h *handler) unlikePost(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, h.posts.UnlikePost)
}

func (h *handler) changeLike(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, caller identity.Identity, postID uint64) (posts.Post, error),
) {
	postID, err := postIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := apply(r.Context(), identity.FromContext(r.Context()), postID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func pageQuery(r *http.Request, cfg pagination.PageSizeConfig) (int, int, error) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return pagination.ClampPageSize(limit, cfg), offset, nil
}
