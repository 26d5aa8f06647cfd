package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"blogview/api/middleware"
	"blogview/logx"
	"blogview/models"
	"blogview/services"
)

// pageData is what the templates render.
type pageData struct {
	Title      string
	State      services.ViewState
	APIBaseURL string
	HealthURL  string
	Post       *models.Post
	PostID     int64
}

// PageHandler serves the blog page and its form actions. Actions change the
// session's view state and redirect back to the page (POST-redirect-GET).
type PageHandler struct {
	apiBaseURL string
	sessions   *services.SessionManager
	cookieName string
}

func NewPageHandler(apiBaseURL string, sessions *services.SessionManager, cookieName string) *PageHandler {
	return &PageHandler{apiBaseURL: apiBaseURL, sessions: sessions, cookieName: cookieName}
}

// ResumeParam carries the one-shot token of the redirect after an action.
const ResumeParam = "r"

func (h *PageHandler) page(title string, state services.ViewState) pageData {
	return pageData{
		Title:      title,
		State:      state,
		APIBaseURL: h.apiBaseURL,
		HealthURL:  h.apiBaseURL + "/posts/health",
	}
}

type draftForm struct {
	Title   string `form:"title"`
	Content string `form:"content"`
}

func (f draftForm) draft() models.DraftPost {
	return models.DraftPost{Title: f.Title, Content: f.Content}
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func session(c *gin.Context) *services.Session {
	s := middleware.CurrentSession(c)
	if s == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "No session"})
	}
	return s
}

func backToPage(c *gin.Context, s *services.Session) {
	c.Redirect(http.StatusSeeOther, "/?"+url.Values{ResumeParam: {s.MarkResume()}}.Encode())
}

// Index is a page load: it remounts (health + posts) unless the request is the
// redirect right after this tab's action, then renders. A notice is shown once,
// on that redirect.
func (h *PageHandler) Index(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	ctrl := s.Controller
	resumed := s.ConsumeResume(c.Query(ResumeParam))
	if !resumed || ctrl.State().IsLoading() {
		ctrl.Mount(c.Request.Context())
	}

	// a notice belongs to the redirect of the action that raised it
	state := ctrl.State()
	if !resumed {
		state.Notice = nil
	}
	noStore(c)
	c.HTML(http.StatusOK, "index", h.page("", state))
	if resumed || !s.PendingResume() {
		ctrl.DismissNotice()
	}
}

func (h *PageHandler) ToggleForm(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	s.Controller.ToggleForm()
	backToPage(c, s)
}

func (h *PageHandler) CancelForm(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	s.Controller.CancelForm()
	backToPage(c, s)
}

// CreatePost submits the form fields title and content.
func (h *PageHandler) CreatePost(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	var form draftForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, "Invalid request")
		return
	}

	post, err := s.Controller.CreatePost(c.Request.Context(), form.draft())
	if err == nil {
		logx.Infof("session %s: created post %d", s.ID, post.ID)
	}
	backToPage(c, s)
}

// SaveDraft keeps the form fields in the view state while the user types.
// The page script posts here; it answers 204 and does not redirect.
func (h *PageHandler) SaveDraft(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	var form draftForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, "Invalid request")
		return
	}
	if !s.Controller.State().FormVisible {
		c.Status(http.StatusConflict)
		return
	}
	s.Controller.EditDraft(form.draft())
	c.Status(http.StatusNoContent)
}

// Reset drops the session everywhere and starts over with a fresh one.
func (h *PageHandler) Reset(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	h.sessions.Remove(c.Request.Context(), s.ID)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	logx.Infof("session %s: reset", s.ID)
	c.Redirect(http.StatusSeeOther, "/")
}

// ConfirmDelete renders the confirmation step; nothing is sent to the API.
func (h *PageHandler) ConfirmDelete(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid post ID")
		return
	}

	state := s.Controller.State()
	data := h.page("Delete post", state)
	data.PostID = postID
	if p, ok := state.FindPost(postID); ok {
		data.Post = &p
	}
	noStore(c)
	c.HTML(http.StatusOK, "confirm", data)
}

// DeletePost deletes when the form carries confirm=yes.
func (h *PageHandler) DeletePost(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid post ID")
		return
	}

	confirmed := c.PostForm("confirm") == "yes"
	if err := s.Controller.DeletePost(c.Request.Context(), postID, confirmed); err == nil {
		logx.Infof("session %s: deleted post %d", s.ID, postID)
	}
	backToPage(c, s)
}

// State returns the session's view state as JSON.
func (h *PageHandler) State(c *gin.Context) {
	s := session(c)
	if s == nil {
		return
	}
	noStore(c)
	c.JSON(http.StatusOK, s.Controller.State())
}

// Healthz reports liveness of the front-end itself, not of the blog API.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": models.StatusUp})
}
