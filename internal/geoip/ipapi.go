// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

package geoip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/streamledger/internal/models"
)

// IPAPIProvider implements Provider using the free ip-api.com service.
// Rate limit: 45 requests per minute (free tier, no API key required).
type IPAPIProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// ipAPIResponse represents the JSON response from ip-api.com.
type ipAPIResponse struct {
	Status  string `json:"status"`  // "success" or "fail"
	Message string `json:"message"` // error message when status is "fail"
	Country string `json:"country"`
	City    string `json:"city"`
	Query   string `json:"query"`
}

// NewIPAPIProvider creates a new ip-api.com provider using the free tier.
func NewIPAPIProvider() *IPAPIProvider {
	return &IPAPIProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		// 45 requests per minute, allow a small burst for poll spikes.
		limiter: rate.NewLimiter(rate.Every(time.Minute/45), 5),
		baseURL: "http://ip-api.com/json",
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// Lookup queries ip-api.com for geolocation data. Returns an error when
// the free-tier rate limit budget is exhausted rather than queueing; the
// caller retries naturally on the next poll cycle.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if net.ParseIP(ipAddress) == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}
	if !p.limiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded for ip-api.com (45 req/min)")
	}

	result, err := p.query(ctx, ipAddress)
	if err != nil {
		return nil, err
	}

	return &models.Geolocation{
		IPAddress:   ipAddress,
		Country:     result.Country,
		City:        result.City,
		LastUpdated: time.Now().UTC(),
	}, nil
}

func (p *IPAPIProvider) query(ctx context.Context, ipAddress string) (*ipAPIResponse, error) {
	// The fields parameter trims the response to what we store.
	url := fmt.Sprintf("%s/%s?fields=status,message,country,city,query", p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api.com lookup failed: %s", result.Message)
	}

	return &result, nil
}
