package zulip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// Client is a thin JSON client for the Zulip REST API, authenticated with
// a bot email and API key.
type Client struct {
	baseURL string
	user    string
	token   string
	http    *http.Client
}

// NewClient builds the client against one site.
func NewClient(baseURL, user, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type groupsResponse struct {
	UserGroups []struct {
		ID      int64   `json:"id"`
		Name    string  `json:"name"`
		Members []int64 `json:"members"`
	} `json:"user_groups"`
}

type streamsResponse struct {
	Streams []struct {
		ID   int64  `json:"stream_id"`
		Name string `json:"name"`
	} `json:"streams"`
}

type subscribersResponse struct {
	Subscribers []int64 `json:"subscribers"`
}

func (c *Client) Groups(ctx context.Context) (map[string]*Group, error) {
	var resp groupsResponse
	if err := c.get(ctx, "/api/v1/user_groups", &resp); err != nil {
		return nil, err
	}
	out := map[string]*Group{}
	for _, g := range resp.UserGroups {
		out[g.Name] = &Group{ID: g.ID, Name: g.Name, Members: g.Members}
	}
	return out, nil
}

func (c *Client) Streams(ctx context.Context) (map[string]*Stream, error) {
	var resp streamsResponse
	if err := c.get(ctx, "/api/v1/streams", &resp); err != nil {
		return nil, err
	}
	out := map[string]*Stream{}
	for _, s := range resp.Streams {
		var subs subscribersResponse
		if err := c.get(ctx, fmt.Sprintf("/api/v1/streams/%d/members", s.ID), &subs); err != nil {
			return nil, err
		}
		out[s.Name] = &Stream{ID: s.ID, Name: s.Name, Subscribers: subs.Subscribers}
	}
	return out, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string, members []int64) error {
	return c.post(ctx, "/api/v1/user_groups/create", url.Values{
		"name":        {name},
		"description": {"Managed by the team repository."},
		"members":     {jsonInts(members)},
	})
}

func (c *Client) UpdateGroupMembers(ctx context.Context, groupID int64, add, remove []int64) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/user_groups/%d/members", groupID), url.Values{
		"add":    {jsonInts(add)},
		"delete": {jsonInts(remove)},
	})
}

func (c *Client) CreateStream(ctx context.Context, name string, subscribers []int64) error {
	return c.Subscribe(ctx, name, subscribers)
}

func (c *Client) Subscribe(ctx context.Context, stream string, users []int64) error {
	subs, _ := json.Marshal([]map[string]string{{"name": stream}})
	return c.post(ctx, "/api/v1/users/me/subscriptions", url.Values{
		"subscriptions": {string(subs)},
		"principals":    {jsonInts(users)},
	})
}

func (c *Client) Unsubscribe(ctx context.Context, stream string, users []int64) error {
	subs, _ := json.Marshal([]string{stream})
	return c.request(ctx, http.MethodDelete, "/api/v1/users/me/subscriptions", url.Values{
		"subscriptions": {string(subs)},
		"principals":    {jsonInts(users)},
	}, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.request(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, values url.Values) error {
	return c.request(ctx, http.MethodPost, path, values, nil)
}

func (c *Client) request(ctx context.Context, method, path string, values url.Values, out any) error {
	var body *strings.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(c.user, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return reconcile.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%s %s: %s", method, path, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return reconcile.Transient(err)
		}
		return err
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func jsonInts(ids []int64) string {
	if ids == nil {
		ids = []int64{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}
