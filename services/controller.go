package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blogview/logx"
	"blogview/models"
)

const eventPublishTimeout = 2 * time.Second

// Controller keeps one view session in sync with the blog API. Every outcome is
// turned into an Action on the session's Store; nothing is retried.
//
// Calls that fail because ctx was cancelled (the browser went away) dispatch
// nothing, so an abandoned request never changes the view.
type Controller struct {
	sessionID string
	api       BlogAPI
	store     *Store
	events    EventPublisher
	authorID  int64
}

type ControllerOption func(*Controller)

func WithEventPublisher(p EventPublisher) ControllerOption {
	return func(c *Controller) {
		if p != nil {
			c.events = p
		}
	}
}

func WithAuthorID(id int64) ControllerOption {
	return func(c *Controller) { c.authorID = id }
}

func WithSessionID(id string) ControllerOption {
	return func(c *Controller) { c.sessionID = id }
}

func NewController(api BlogAPI, store *Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:      api,
		store:    store,
		events:   NopPublisher{},
		authorID: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Store() *Store { return c.store }

func (c *Controller) State() ViewState { return c.store.State() }

// Mount is a page load: health and posts are fetched concurrently and Mount
// returns once both have settled.
func (c *Controller) Mount(ctx context.Context) {
	c.store.Dispatch(MountStarted{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.CheckHealth(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = c.LoadPosts(ctx)
	}()
	wg.Wait()
}

func (c *Controller) CheckHealth(ctx context.Context) error {
	status, err := c.api.Health(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logx.Warnf("session %s: health check failed: %v", c.sessionID, err)
		c.store.Dispatch(HealthFailed{})
		return err
	}
	c.store.Dispatch(HealthLoaded{Status: *status})
	return nil
}

func (c *Controller) LoadPosts(ctx context.Context) error {
	posts, err := c.api.ListPosts(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logx.Warnf("session %s: loading posts failed: %v", c.sessionID, err)
		c.store.Dispatch(PostsFailed{})
		return err
	}
	c.store.Dispatch(PostsLoaded{Posts: posts})
	return nil
}

// CreatePost submits draft. A blank draft never reaches the API.
func (c *Controller) CreatePost(ctx context.Context, draft models.DraftPost) (*models.Post, error) {
	if draft.Blank() {
		c.store.Dispatch(DraftRejected{Draft: draft})
		return nil, ErrValidation
	}

	post, err := c.api.CreatePost(ctx, models.CreatePostRequest{
		Title:    draft.Title,
		Content:  draft.Content,
		AuthorID: c.authorID,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		logx.Warnf("session %s: create post failed: %v", c.sessionID, err)
		c.store.Dispatch(PostCreateFailed{Draft: draft})
		return nil, err
	}

	c.store.Dispatch(PostCreated{Post: *post})
	c.publish(ctx, ViewEvent{Type: EventPostCreated, PostID: post.ID, Title: post.Title})
	return post, nil
}

// DeletePost removes id once the user has confirmed. Unconfirmed calls return
// ErrNotConfirmed without a request.
func (c *Controller) DeletePost(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := c.api.DeletePost(ctx, id); err != nil {
		if ctx.Err() != nil {
			return err
		}
		logx.Warnf("session %s: delete post %d failed: %v", c.sessionID, id, err)
		c.store.Dispatch(PostDeleteFailed{ID: id})
		return err
	}

	c.store.Dispatch(PostDeleted{ID: id})
	c.publish(ctx, ViewEvent{Type: EventPostDeleted, PostID: id})
	return nil
}

func (c *Controller) ToggleForm() { c.store.Dispatch(FormToggled{}) }

func (c *Controller) CancelForm() { c.store.Dispatch(FormCancelled{}) }

func (c *Controller) EditDraft(d models.DraftPost) { c.store.Dispatch(DraftEdited{Draft: d}) }

// DismissNotice clears the pending notice, if any.
func (c *Controller) DismissNotice() {
	if c.store.State().Notice != nil {
		c.store.Dispatch(NoticeDismissed{})
	}
}

func (c *Controller) publish(ctx context.Context, event ViewEvent) {
	event.SessionID = c.sessionID
	event.OccurredAt = time.Now().UTC()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := c.events.Publish(pubCtx, event); err != nil {
		logx.Warnf("session %s: %v", c.sessionID, fmt.Errorf("publish %s: %w", event.Type, err))
	}
}
