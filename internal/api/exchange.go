package api

import (
	"context"
	"fmt"
)

// GetExchangeStatus reports whether the exchange and trading are active.
func (c *Client) GetExchangeStatus(ctx context.Context) (*ExchangeStatusResponse, error) {
	var resp ExchangeStatusResponse
	if err := c.get(ctx, "/exchange/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange status: %w", err)
	}
	return &resp, nil
}

// GetExchangeSchedule fetches trading hours and maintenance windows.
func (c *Client) GetExchangeSchedule(ctx context.Context) (*ExchangeSchedule, error) {
	var resp ScheduleResponse
	if err := c.get(ctx, "/exchange/schedule", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange schedule: %w", err)
	}
	return &resp.Schedule, nil
}

// GetExchangeAnnouncements fetches exchange-wide announcements.
func (c *Client) GetExchangeAnnouncements(ctx context.Context) ([]Announcement, error) {
	var resp AnnouncementsResponse
	if err := c.get(ctx, "/exchange/announcements", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange announcements: %w", err)
	}
	return resp.Announcements, nil
}
