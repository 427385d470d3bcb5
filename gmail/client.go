package gmail

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user = "me"
	// Gmail rejects list page sizes above this.
	maxPageSize = 500
)

// Client is the read-only mail source used by an ingestion run.
type Client struct {
	srv    *gmail.Service
	logger *log.Logger
}

// NewClient authenticates and builds the Gmail service. The token is
// checked eagerly so that credential problems surface at startup.
func NewClient(ctx context.Context, auth AuthConfig, logger *log.Logger) (*Client, error) {
	ts, err := TokenSource(ctx, auth, logger)
	if err != nil {
		return nil, err
	}
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("unable to obtain access token: %w", err)
	}
	httpClient := oauth2.NewClient(ctx, ts)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewClientFromService(srv, logger), nil
}

// NewClientFromService wraps an already configured service.
func NewClientFromService(srv *gmail.Service, logger *log.Logger) *Client {
	return &Client{srv: srv, logger: logger}
}

// List returns up to max message IDs matching q, following page tokens.
func (c *Client) List(ctx context.Context, q string, max int64) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}
	var ids []string
	pageToken := ""
	for int64(len(ids)) < max {
		pageSize := max - int64(len(ids))
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		call := c.srv.Users.Messages.List(user).Q(q).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return ids, fmt.Errorf("listing messages for %q: %w", q, err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
			if int64(len(ids)) == max {
				break
			}
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	c.logger.Debug("Listed messages", "query", q, "count", len(ids))
	return ids, nil
}

// Get fetches a message in full format.
func (c *Client) Get(ctx context.Context, id string) (*gmail.Message, error) {
	msg, err := c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}
	return msg, nil
}

// Attachment downloads and decodes one attachment body.
func (c *Client) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.srv.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching attachment %s of message %s: %w", attachmentID, messageID, err)
	}
	data, err := decodeData(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding attachment %s: %w", attachmentID, err)
	}
	return data, nil
}
