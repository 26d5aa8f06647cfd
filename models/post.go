package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Post - a blog post as returned by the blog API. The API owns it; the front-end
// only keeps a copy.
type Post struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  int64     `json:"authorId"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// CreatePostRequest - body of POST {base}/posts
type CreatePostRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	AuthorID int64  `json:"authorId"`
}

// DraftPost - unsaved form contents
type DraftPost struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Blank reports whether the title or the content is empty after trimming spaces.
func (d DraftPost) Blank() bool {
	return strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Content) == ""
}

// ZonelessLocation is the zone assumed for timestamps the API sends without an
// offset (Java LocalDateTime).
var ZonelessLocation = time.Local

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp decodes the shapes a Spring backend may emit: RFC 3339, zone-less
// ISO-8601 and the [y,m,d,h,mi,s,nanos] array. It always encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '[' {
		return t.unmarshalArray(b)
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range zonelessLayouts {
		if parsed, err := time.ParseInLocation(layout, s, ZonelessLocation); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", s)
}

func (t *Timestamp) unmarshalArray(b []byte) error {
	var parts []int
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if len(parts) < 3 || len(parts) > 7 {
		return fmt.Errorf("timestamp: expected 3 to 7 array elements, got %d", len(parts))
	}
	fields := make([]int, 7)
	copy(fields, parts)
	t.Time = time.Date(fields[0], time.Month(fields[1]), fields[2],
		fields[3], fields[4], fields[5], fields[6], ZonelessLocation)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
