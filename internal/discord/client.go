package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://discord.com/api/v10"

// Client is a thin JSON client for the guild roles API.
type Client struct {
	BaseURL string
	guildID string
	token   string
	http    *http.Client
}

// NewClient builds the client for one guild.
func NewClient(guildID, token string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		guildID: guildID,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type roleBody struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color int    `json:"color"`
}

func (c *Client) Roles(ctx context.Context) (map[string]*Role, error) {
	var roles []roleBody
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/roles", c.guildID), nil, &roles); err != nil {
		return nil, err
	}
	out := map[string]*Role{}
	for _, r := range roles {
		out[r.Name] = &Role{ID: r.ID, Name: r.Name, Color: r.Color}
	}
	return out, nil
}

func (c *Client) CreateRole(ctx context.Context, name string, color int) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/guilds/%s/roles", c.guildID),
		&roleBody{Name: name, Color: color}, nil)
}

func (c *Client) EditRole(ctx context.Context, id, name string, color int) error {
	return c.request(ctx, http.MethodPatch, fmt.Sprintf("/guilds/%s/roles/%s", c.guildID, id),
		&roleBody{Name: name, Color: color}, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bot "+c.token)

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
