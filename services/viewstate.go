package services

import (
	"sync"

	"blogview/models"
)

// Phase of a page lifecycle: loading -> error | ready. Every mount starts again
// at loading.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseReady   Phase = "ready"
)

const (
	MessageHealthDown    = "Cannot connect to the API server"
	MessageLoadFailed    = "Failed to load posts. Check that the backend server is running."
	MessageDraftRequired = "Please enter both a title and content."
	MessageCreated       = "Post created!"
	MessageCreateFailed  = "Failed to create post."
	MessageDeleted       = "Post deleted."
	MessageDeleteFailed  = "Failed to delete post."
)

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is a one-shot message shown on the next render.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// ViewState is everything the page renders from.
type ViewState struct {
	Phase       Phase             `json:"phase"`
	Posts       []models.Post     `json:"posts"`
	Error       string            `json:"error,omitempty"`
	Status      *models.ApiStatus `json:"status,omitempty"`
	FormVisible bool              `json:"form_visible"`
	Draft       models.DraftPost  `json:"draft"`
	Notice      *Notice           `json:"notice,omitempty"`
	Revision    uint64            `json:"revision"`
}

func NewViewState() ViewState {
	return ViewState{Phase: PhaseLoading, Posts: []models.Post{}}
}

func (s ViewState) IsLoading() bool { return s.Phase == PhaseLoading }
func (s ViewState) IsError() bool   { return s.Phase == PhaseError }
func (s ViewState) IsReady() bool   { return s.Phase == PhaseReady }

// FindPost looks a post up by id in the displayed sequence.
func (s ViewState) FindPost(id int64) (models.Post, bool) {
	for _, p := range s.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return models.Post{}, false
}

func (s ViewState) clone() ViewState {
	out := s
	out.Posts = append(make([]models.Post, 0, len(s.Posts)), s.Posts...)
	if s.Status != nil {
		st := *s.Status
		if st.PostsCount != nil {
			n := *st.PostsCount
			st.PostsCount = &n
		}
		out.Status = &st
	}
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	return out
}

// Action is one state transition. apply receives a private copy and may mutate it.
type Action interface {
	apply(s *ViewState)
}

// Reduce folds a into s without touching s.
func Reduce(s ViewState, a Action) ViewState {
	next := s.clone()
	a.apply(&next)
	next.Revision = s.Revision + 1
	return next
}

type MountStarted struct{}

func (MountStarted) apply(s *ViewState) {
	s.Phase = PhaseLoading
}

type HealthLoaded struct{ Status models.ApiStatus }

func (a HealthLoaded) apply(s *ViewState) {
	st := a.Status
	s.Status = &st
}

type HealthFailed struct{}

func (HealthFailed) apply(s *ViewState) {
	s.Status = &models.ApiStatus{Status: models.StatusDown, Message: MessageHealthDown}
}

type PostsLoaded struct{ Posts []models.Post }

func (a PostsLoaded) apply(s *ViewState) {
	s.Posts = append(make([]models.Post, 0, len(a.Posts)), a.Posts...)
	s.Error = ""
	s.Phase = PhaseReady
}

// PostsFailed keeps whatever posts were there; the error panel replaces the grid.
type PostsFailed struct{}

func (PostsFailed) apply(s *ViewState) {
	s.Error = MessageLoadFailed
	s.Phase = PhaseError
}

type FormToggled struct{}

func (FormToggled) apply(s *ViewState) {
	if s.FormVisible {
		FormCancelled{}.apply(s)
		return
	}
	s.FormVisible = true
}

type FormCancelled struct{}

func (FormCancelled) apply(s *ViewState) {
	s.FormVisible = false
	s.Draft = models.DraftPost{}
}

type DraftEdited struct{ Draft models.DraftPost }

func (a DraftEdited) apply(s *ViewState) {
	s.Draft = a.Draft
}

type DraftRejected struct{ Draft models.DraftPost }

func (a DraftRejected) apply(s *ViewState) {
	s.Draft = a.Draft
	s.FormVisible = true
	s.Notice = &Notice{Kind: NoticeWarning, Message: MessageDraftRequired}
}

type PostCreated struct{ Post models.Post }

func (a PostCreated) apply(s *ViewState) {
	s.Posts = append([]models.Post{a.Post}, s.Posts...)
	s.Draft = models.DraftPost{}
	s.FormVisible = false
	s.Notice = &Notice{Kind: NoticeInfo, Message: MessageCreated}
}

type PostCreateFailed struct{ Draft models.DraftPost }

func (a PostCreateFailed) apply(s *ViewState) {
	s.Draft = a.Draft
	s.Notice = &Notice{Kind: NoticeError, Message: MessageCreateFailed}
}

type PostDeleted struct{ ID int64 }

func (a PostDeleted) apply(s *ViewState) {
	kept := s.Posts[:0]
	for _, p := range s.Posts {
		if p.ID != a.ID {
			kept = append(kept, p)
		}
	}
	s.Posts = kept
	s.Notice = &Notice{Kind: NoticeInfo, Message: MessageDeleted}
}

type PostDeleteFailed struct{ ID int64 }

func (PostDeleteFailed) apply(s *ViewState) {
	s.Notice = &Notice{Kind: NoticeError, Message: MessageDeleteFailed}
}

type NoticeDismissed struct{}

func (NoticeDismissed) apply(s *ViewState) {
	s.Notice = nil
}

// Store serializes dispatches over one ViewState and hands out snapshots.
// Subscribers run in dispatch order and must not dispatch themselves.
type Store struct {
	dispatchMu sync.Mutex
	mu         sync.Mutex
	state      ViewState
	listeners  []func(ViewState)
}

func NewStore(initial ViewState) *Store {
	if initial.Posts == nil {
		initial.Posts = []models.Post{}
	}
	return &Store{state: initial}
}

// State returns a snapshot the caller may keep.
func (st *Store) State() ViewState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.clone()
}

// Dispatch applies a and notifies subscribers with the resulting snapshot.
func (st *Store) Dispatch(a Action) ViewState {
	st.dispatchMu.Lock()
	defer st.dispatchMu.Unlock()

	st.mu.Lock()
	st.state = Reduce(st.state, a)
	snapshot := st.state.clone()
	listeners := append([]func(ViewState){}, st.listeners...)
	st.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot.clone())
	}
	return snapshot
}

// Subscribe registers fn for every later dispatch.
func (st *Store) Subscribe(fn func(ViewState)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.listeners = append(st.listeners, fn)
}
