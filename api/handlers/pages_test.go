package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogview/api/routes"
	"blogview/models"
	"blogview/services"
)

// fakeBlog is a stand-in for the blog API.
type fakeBlog struct {
	mu         sync.Mutex
	posts      []models.Post
	nextID     int64
	failList   bool
	failCreate bool
	failDelete bool
	lists      int
	creates    []models.CreatePostRequest
	deletes    []int64
}

func newFakeBlog(ids ...int64) *fakeBlog {
	f := &fakeBlog{nextID: 100}
	for _, id := range ids {
		f.posts = append(f.posts, models.Post{
			ID:        id,
			Title:     "Post " + strconv.FormatInt(id, 10),
			Content:   "Content " + strconv.FormatInt(id, 10),
			AuthorID:  1,
			CreatedAt: models.Timestamp{Time: time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)},
			UpdatedAt: models.Timestamp{Time: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)},
		})
	}
	return f
}

func (f *fakeBlog) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/posts/health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		n := len(f.posts)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "UP", "message": "Backend is running", "posts_count": n})
	})
	mux.HandleFunc("GET /api/posts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lists++
		if f.failList {
			http.Error(w, "db down", http.StatusInternalServerError)
			return
		}
		// zone-less timestamps, like a Spring LocalDateTime
		out := make([]map[string]any, 0, len(f.posts))
		for _, p := range f.posts {
			out = append(out, map[string]any{
				"id": p.ID, "title": p.Title, "content": p.Content, "authorId": p.AuthorID,
				"createdAt": p.CreatedAt.Format("2006-01-02T15:04:05"),
				"updatedAt": p.UpdatedAt.Format("2006-01-02T15:04:05"),
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /api/posts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req models.CreatePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		f.creates = append(f.creates, req)
		if f.failCreate {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		f.nextID++
		now := models.Timestamp{Time: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)}
		p := models.Post{ID: f.nextID, Title: req.Title, Content: req.Content, AuthorID: req.AuthorID, CreatedAt: now, UpdatedAt: now}
		f.posts = append([]models.Post{p}, f.posts...)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("DELETE /api/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deletes = append(f.deletes, id)
		if f.failDelete {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		kept := f.posts[:0]
		for _, p := range f.posts {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		f.posts = kept
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeBlog) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type testApp struct {
	server   *httptest.Server
	client   *http.Client
	sessions *services.SessionManager
}

func newTestApp(t *testing.T, apiBaseURL string) *testApp {
	gin.SetMode(gin.TestMode)
	models.ZonelessLocation = time.UTC
	t.Cleanup(func() { models.ZonelessLocation = time.Local })

	api, err := services.NewAPIClient(services.ClientOptions{BaseURL: apiBaseURL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	sessions := services.NewSessionManager(services.SessionManagerOptions{
		API:      api,
		AuthorID: 1,
		OnChange: services.PushState,
	})
	router, err := routes.NewRouter(routes.PageOptions{
		Sessions:   sessions,
		CookieTTL:  time.Hour,
		APIBaseURL: apiBaseURL,
		Timestamps: services.TimestampFormatter{Locale: "en-US", Location: time.UTC},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testApp{server: srv, client: &http.Client{Jar: jar, Timeout: 5 * time.Second}, sessions: sessions}
}

func newBlogApp(t *testing.T, blog *fakeBlog) *testApp {
	api := httptest.NewServer(blog.handler())
	t.Cleanup(api.Close)
	return newTestApp(t, api.URL+"/api")
}

func (a *testApp) get(t *testing.T, path string) *goquery.Document {
	resp, err := a.client.Get(a.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

// post submits a form and follows the 303 back to the page.
func (a *testApp) post(t *testing.T, path string, form url.Values) *goquery.Document {
	resp, err := a.client.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/", resp.Request.URL.Path)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

// noRedirect shares the session cookie but stops at the 303.
func (a *testApp) noRedirect() *http.Client {
	return &http.Client{
		Jar:     a.client.Jar,
		Timeout: a.client.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) state(t *testing.T) services.ViewState {
	resp, err := a.client.Get(a.server.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var state services.ViewState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func renderedIDs(doc *goquery.Document) []string {
	var ids []string
	doc.Find("article.post-card").Each(func(_ int, s *goquery.Selection) {
		ids = append(ids, s.AttrOr("data-id", ""))
	})
	return ids
}

func notice(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find(".notice[role=alert]").Text())
}

func TestIndexRendersPostsInServerOrder(t *testing.T) {
	app := newBlogApp(t, newFakeBlog(2, 1))

	doc := app.get(t, "/")

	assert.Equal(t, []string{"2", "1"}, renderedIDs(doc))
	status := doc.Find("#api-status")
	assert.True(t, status.HasClass("healthy"))
	assert.Contains(t, status.Text(), "API status: UP | Backend is running")
	assert.Contains(t, status.Text(), "Total posts: 2")
	assert.Equal(t, "Posts (2)", doc.Find(".posts-section h2").Text())

	first := doc.Find("article.post-card").First()
	assert.Equal(t, "Post 2", first.Find(".post-title").Text())
	assert.Contains(t, first.Find(".post-meta").Text(), "Created: 1/2/2024, 3:04:05 PM")
	assert.Contains(t, first.Find(".post-footer small").Text(), "Last updated: 1/3/2024, 9:00:00 AM")
	assert.Equal(t, 1, app.sessions.Len())
}

func TestIndexEmptyList(t *testing.T) {
	app := newBlogApp(t, newFakeBlog())

	doc := app.get(t, "/")

	assert.Equal(t, 1, doc.Find(".no-posts").Length())
	assert.Zero(t, doc.Find(".posts-grid").Length())
}

func TestIndexRendersErrorPanelWhenListFails(t *testing.T) {
	blog := newFakeBlog(2, 1)
	blog.failList = true
	app := newBlogApp(t, blog)

	doc := app.get(t, "/")

	assert.Equal(t, 1, doc.Find(".error-message").Length())
	assert.Contains(t, doc.Find(".error-message").Text(), services.MessageLoadFailed)
	assert.Zero(t, doc.Find(".posts-grid").Length())
	assert.Zero(t, doc.Find("article.post-card").Length())
	assert.Zero(t, doc.Find(".post-form-section").Length())
}

func TestUnreachableAPIShowsDownAndErrorPanel(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	base := dead.URL + "/api"
	dead.Close()
	app := newTestApp(t, base)

	doc := app.get(t, "/")

	status := doc.Find("#api-status")
	assert.True(t, status.HasClass("unhealthy"))
	assert.Contains(t, status.Text(), "API status: DOWN | "+services.MessageHealthDown)
	assert.NotContains(t, status.Text(), "Total posts")
	assert.Equal(t, 1, doc.Find(".error-message").Length())
}

func TestCreatePostFlow(t *testing.T) {
	blog := newFakeBlog(2, 1)
	app := newBlogApp(t, blog)
	app.get(t, "/")

	doc := app.post(t, "/form/toggle", nil)
	require.Equal(t, 1, doc.Find("form.post-form").Length())
	assert.Equal(t, "Cancel writing", strings.TrimSpace(doc.Find(".toggle-form-btn").Text()))

	doc = app.post(t, "/posts", url.Values{"title": {"Hello"}, "content": {"World"}})

	assert.Equal(t, []string{"101", "2", "1"}, renderedIDs(doc))
	assert.Equal(t, services.MessageCreated, notice(doc))
	assert.Zero(t, doc.Find("form.post-form").Length())
	require.Len(t, blog.creates, 1)
	assert.Equal(t, models.CreatePostRequest{Title: "Hello", Content: "World", AuthorID: 1}, blog.creates[0])

	// the notice is shown once; a plain reload remounts from the API
	doc = app.get(t, "/")
	assert.Empty(t, notice(doc))
	assert.Equal(t, []string{"101", "2", "1"}, renderedIDs(doc))
}

func TestCreateBlankDraftWarnsWithoutRequest(t *testing.T) {
	blog := newFakeBlog(1)
	app := newBlogApp(t, blog)
	app.get(t, "/")
	app.post(t, "/form/toggle", nil)

	doc := app.post(t, "/posts", url.Values{"title": {"  "}, "content": {"kept text"}})

	assert.Equal(t, services.MessageDraftRequired, notice(doc))
	assert.Equal(t, "kept text", doc.Find("form.post-form textarea").Text())
	assert.Equal(t, []string{"1"}, renderedIDs(doc))
	assert.Empty(t, blog.creates)
}

func TestCreateFailureKeepsDraft(t *testing.T) {
	blog := newFakeBlog(1)
	blog.failCreate = true
	app := newBlogApp(t, blog)
	app.get(t, "/")
	app.post(t, "/form/toggle", nil)

	doc := app.post(t, "/posts", url.Values{"title": {"T"}, "content": {"C"}})

	assert.Equal(t, services.MessageCreateFailed, notice(doc))
	assert.Equal(t, "T", doc.Find("form.post-form input[name=title]").AttrOr("value", ""))
	assert.Equal(t, []string{"1"}, renderedIDs(doc))
}

func TestCancelFormClearsDraft(t *testing.T) {
	app := newBlogApp(t, newFakeBlog(1))
	app.get(t, "/")
	app.post(t, "/form/toggle", nil)
	app.post(t, "/posts", url.Values{"title": {"draft"}})

	doc := app.post(t, "/form/cancel", nil)
	assert.Zero(t, doc.Find("form.post-form").Length())

	doc = app.post(t, "/form/toggle", nil)
	assert.Equal(t, "", doc.Find("form.post-form input[name=title]").AttrOr("value", ""))
}

func TestDeleteFlow(t *testing.T) {
	blog := newFakeBlog(2, 1)
	app := newBlogApp(t, blog)
	app.get(t, "/")

	confirm := app.get(t, "/posts/1/delete")
	assert.Equal(t, "Post 1", confirm.Find(".confirm-title").Text())

	doc := app.post(t, "/posts/1/delete", url.Values{"confirm": {"no"}})
	assert.Equal(t, []string{"2", "1"}, renderedIDs(doc))
	assert.Empty(t, blog.deletes)

	doc = app.post(t, "/posts/1/delete", url.Values{"confirm": {"yes"}})
	assert.Equal(t, []string{"2"}, renderedIDs(doc))
	assert.Equal(t, services.MessageDeleted, notice(doc))
	assert.Equal(t, []int64{1}, blog.deletes)
}

func TestDeleteFailureKeepsPosts(t *testing.T) {
	blog := newFakeBlog(2, 1)
	blog.failDelete = true
	app := newBlogApp(t, blog)
	app.get(t, "/")

	doc := app.post(t, "/posts/2/delete", url.Values{"confirm": {"yes"}})

	assert.Equal(t, []string{"2", "1"}, renderedIDs(doc))
	assert.Equal(t, services.MessageDeleteFailed, notice(doc))
}

func TestInvalidPostID(t *testing.T) {
	app := newBlogApp(t, newFakeBlog())

	resp, err := app.client.Get(app.server.URL + "/posts/abc/delete")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStateJSON(t *testing.T) {
	app := newBlogApp(t, newFakeBlog(2, 1))
	app.get(t, "/")

	resp, err := app.client.Get(app.server.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var state struct {
		Phase string        `json:"phase"`
		Posts []models.Post `json:"posts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "ready", state.Phase)
	require.Len(t, state.Posts, 2)
	assert.Equal(t, int64(2), state.Posts[0].ID)
}

func TestWebsocketPushesState(t *testing.T) {
	app := newBlogApp(t, newFakeBlog(2, 1))
	app.get(t, "/")

	u, err := url.Parse(app.server.URL)
	require.NoError(t, err)
	header := http.Header{}
	var sessionID string
	for _, c := range app.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
		if c.Name == "blogview_session" {
			sessionID = c.Value
		}
	}
	require.NotEmpty(t, sessionID)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(app.server.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	var msg services.StateMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Event)
	assert.Len(t, msg.State.Posts, 2)
	require.Eventually(t, func() bool {
		return services.GlobalWSConnManager.Count(sessionID) == 1
	}, time.Second, 10*time.Millisecond)

	app.post(t, "/form/toggle", nil)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.True(t, msg.State.FormVisible)
}

func TestOpsEndpoints(t *testing.T) {
	app := newBlogApp(t, newFakeBlog(1))
	app.get(t, "/")

	resp, err := app.client.Get(app.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.client.Get(app.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := new(strings.Builder)
	_, _ = io.Copy(body, resp.Body)
	assert.Contains(t, body.String(), "blog_api_requests_total")
	assert.Contains(t, body.String(), "http_requests_total")

	resp, err = app.client.Get(app.server.URL + "/static/app.css")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestResumeBelongsToTheRedirect(t *testing.T) {
	blog := newFakeBlog(2, 1)
	app := newBlogApp(t, blog)
	app.get(t, "/")
	app.post(t, "/form/toggle", nil)

	resp, err := app.noRedirect().PostForm(app.server.URL+"/posts", url.Values{"title": {"A"}, "content": {"from tab A"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/?r="), location)
	lists := blog.listCount()

	// another tab loads the page before the redirect is followed
	doc := app.get(t, "/")
	assert.Equal(t, lists+1, blog.listCount())
	assert.Empty(t, notice(doc))

	doc = app.get(t, location)
	assert.Equal(t, lists+1, blog.listCount(), "the redirect does not remount")
	assert.Equal(t, services.MessageCreated, notice(doc))
	assert.Equal(t, "101", renderedIDs(doc)[0])

	// a spent token is a plain page load
	doc = app.get(t, location)
	assert.Equal(t, lists+2, blog.listCount())
	assert.Empty(t, notice(doc))
}

func TestSaveDraft(t *testing.T) {
	app := newBlogApp(t, newFakeBlog(1))
	app.get(t, "/")

	resp, err := app.client.PostForm(app.server.URL+"/form/draft", url.Values{"title": {"early"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	app.post(t, "/form/toggle", nil)
	resp, err = app.client.PostForm(app.server.URL+"/form/draft", url.Values{"title": {"half"}, "content": {"typed"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, models.DraftPost{Title: "half", Content: "typed"}, app.state(t).Draft)
	// the draft survives a detour through the delete confirmation
	app.get(t, "/posts/1/delete")
	doc := app.post(t, "/posts/1/delete", url.Values{"confirm": {"no"}})
	assert.Equal(t, "half", doc.Find("form.post-form input[name=title]").AttrOr("value", ""))
}

func TestResetSession(t *testing.T) {
	app := newBlogApp(t, newFakeBlog(1))
	app.get(t, "/")
	app.post(t, "/form/toggle", nil)
	u, err := url.Parse(app.server.URL)
	require.NoError(t, err)
	before := app.client.Jar.Cookies(u)
	require.Len(t, before, 1)

	doc := app.post(t, "/session/reset", nil)

	assert.Zero(t, doc.Find("form.post-form").Length())
	after := app.client.Jar.Cookies(u)
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].Value, after[0].Value)
	assert.Equal(t, 1, app.sessions.Len())
	_, ok := app.sessions.Get(context.Background(), before[0].Value)
	assert.False(t, ok)
}
