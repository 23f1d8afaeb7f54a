package mailgun

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

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.mailgun.net/v3"

// Client is a thin JSON client for the mailing-list API.
type Client struct {
	BaseURL string
	token   string
	http    *http.Client
}

// NewClient builds the client with the service credential.
func NewClient(token string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type listsResponse struct {
	Items []struct {
		Address string `json:"address"`
	} `json:"items"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type membersResponse struct {
	Items []struct {
		Address string `json:"address"`
	} `json:"items"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func (c *Client) Lists(ctx context.Context) ([]string, error) {
	var out []string
	next := c.BaseURL + "/lists/pages?limit=100"
	for next != "" {
		var page listsResponse
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}
		for _, item := range page.Items {
			out = append(out, item.Address)
		}
		next = page.Paging.Next
	}
	return out, nil
}

func (c *Client) Members(ctx context.Context, address string) ([]string, error) {
	var out []string
	next := fmt.Sprintf("%s/lists/%s/members/pages?limit=100", c.BaseURL, url.PathEscape(address))
	for next != "" {
		var page membersResponse
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}
		for _, item := range page.Items {
			out = append(out, item.Address)
		}
		next = page.Paging.Next
	}
	return out, nil
}

func (c *Client) CreateList(ctx context.Context, address string) error {
	return c.form(ctx, http.MethodPost, c.BaseURL+"/lists", url.Values{
		"address": {address},
	})
}

func (c *Client) DeleteList(ctx context.Context, address string) error {
	return c.form(ctx, http.MethodDelete, fmt.Sprintf("%s/lists/%s", c.BaseURL, url.PathEscape(address)), nil)
}

func (c *Client) AddMember(ctx context.Context, list, email string) error {
	return c.form(ctx, http.MethodPost, fmt.Sprintf("%s/lists/%s/members", c.BaseURL, url.PathEscape(list)), url.Values{
		"address":    {email},
		"subscribed": {"yes"},
		"upsert":     {"yes"},
	})
}

func (c *Client) RemoveMember(ctx context.Context, list, email string) error {
	return c.form(ctx, http.MethodDelete,
		fmt.Sprintf("%s/lists/%s/members/%s", c.BaseURL, url.PathEscape(list), url.PathEscape(email)), nil)
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth("api", c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return reconcile.Transient(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) form(ctx context.Context, method, rawURL string, values url.Values) error {
	var body *strings.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return reconcile.Transient(err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// checkStatus maps HTTP failures onto the reconciler's retry model: 5xx
// and 429 are transient, other non-2xx are fatal for the operation.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL.Path, resp.Status)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return reconcile.Transient(err)
	}
	return err
}
