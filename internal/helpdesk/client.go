// Package helpdesk is a minimal REST client for the upstream helpdesk API.
// Only the ticket listing used by the metrics poller is implemented.
package helpdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	pageLimit      = 100
	maxPages       = 50
)

// Ticket is one open helpdesk ticket, reduced to the fields the aggregate
// counts need.
type Ticket struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	SourceType string `json:"source_type"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type ticketPage struct {
	Results []struct {
		ID         string `json:"id"`
		Properties struct {
			Status     string `json:"hs_pipeline_stage"`
			SourceType string `json:"source_type"`
		} `json:"properties"`
	} `json:"results"`
	Paging struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// ListOpenTickets pages through the ticket collection and returns every
// ticket not in a closed stage. Pagination is capped; a runaway cursor is an
// upstream bug, not a reason to hammer the API.
func (c *Client) ListOpenTickets(ctx context.Context) ([]Ticket, error) {
	var tickets []Ticket
	after := ""

	for page := 0; page < maxPages; page++ {
		result, err := c.fetchPage(ctx, after)
		if err != nil {
			return nil, err
		}

		for _, t := range result.Results {
			if isClosedStage(t.Properties.Status) {
				continue
			}
			tickets = append(tickets, Ticket{
				ID:         t.ID,
				Status:     t.Properties.Status,
				SourceType: t.Properties.SourceType,
			})
		}

		after = result.Paging.Next.After
		if after == "" {
			break
		}
	}

	return tickets, nil
}

func (c *Client) fetchPage(ctx context.Context, after string) (*ticketPage, error) {
	endpoint, err := url.Parse(c.baseURL + "/crm/v3/objects/tickets")
	if err != nil {
		return nil, fmt.Errorf("invalid helpdesk base url: %w", err)
	}

	query := endpoint.Query()
	query.Set("limit", fmt.Sprintf("%d", pageLimit))
	query.Set("properties", "hs_pipeline_stage,source_type")
	if after != "" {
		query.Set("after", after)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building ticket request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching tickets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("helpdesk returned %d: %s", resp.StatusCode, string(body))
	}

	var page ticketPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding ticket page: %w", err)
	}
	return &page, nil
}

func isClosedStage(stage string) bool {
	switch stage {
	case "closed", "CLOSED", "4":
		return true
	}
	return false
}
