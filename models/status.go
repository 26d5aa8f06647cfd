package models

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// ApiStatus - response of GET {base}/posts/health
type ApiStatus struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	PostsCount *int64 `json:"posts_count,omitempty"`
}

func (s ApiStatus) Healthy() bool {
	return s.Status == StatusUp
}
