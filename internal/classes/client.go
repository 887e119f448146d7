// Package classes talks to the scheduling API that owns classes, teachers
// and students. The relay only needs class display metadata from it.
package classes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

var ErrNotFound = errors.New("class not found")

// Info is the display metadata of a scheduled class
type Info struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TeacherName   string `json:"teacher_name"`
	StudentName   string `json:"student_name"`
	Duration      int    `json:"duration"` // minutes
	ScheduledDate string `json:"scheduled_date,omitempty"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
	Status        string `json:"status,omitempty"`
	Placeholder   bool   `json:"placeholder,omitempty"`
}

// Placeholder stands in for a class whose metadata could not be fetched
func Placeholder(id string) Info {
	return Info{
		ID:          id,
		Name:        "Class " + id,
		TeacherName: "Teacher",
		StudentName: "Student",
		Duration:    60,
		Placeholder: true,
	}
}

type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// NewClient builds a client for the API rooted at base (e.g. http://host/api)
func NewClient(base string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Fetch resolves GET {base}/classes/{id}
func (c *Client) Fetch(ctx context.Context, id string) (Info, error) {
	u := c.base + "/classes/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Info{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("fetch class %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Info{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Info{}, fmt.Errorf("fetch class %s: status %d: %s", id, resp.StatusCode, b)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Info{}, fmt.Errorf("decode class %s: %w", id, err)
	}
	if info.ID == "" {
		info.ID = id
	}
	c.log.Debug("classes.fetched", "id", id, "name", info.Name)
	return info, nil
}
