package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	fetcherrors "github.com/rcourtman/pulse-fleet/internal/errors"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

const maxResponseBytes = 32 << 20

// SheetsOptions configures a SheetsClient.
type SheetsOptions struct {
	BaseURL string
	APIKey  string
	// Token is an OAuth2 access token sent as a bearer token. When set the
	// API key is not sent.
	Token      string
	Timeout    time.Duration
	DNSRefresh time.Duration
	// Transport overrides the cached-DNS transport.
	Transport http.RoundTripper
}

// SheetsClient reads ranges through the Google Sheets v4 values endpoint.
type SheetsClient struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	resolver *cachedResolver
}

// NewSheetsClient creates a client for the Sheets values API.
func NewSheetsClient(opts SheetsOptions) *SheetsClient {
	c := &SheetsClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
	}
	if c.baseURL == "" {
		c.baseURL = "https://sheets.googleapis.com"
	}

	transport := opts.Transport
	if transport == nil {
		c.resolver = newCachedResolver(opts.DNSRefresh)
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           c.resolver.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}

	if opts.Token != "" {
		c.apiKey = ""
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	c.client = &http.Client{Transport: transport, Timeout: opts.Timeout}
	return c
}

// Fetch reads ref's range and returns it as a table.
func (c *SheetsClient) Fetch(ctx context.Context, ref sheet.Ref) (sheet.Table, error) {
	const op = "fetch_values"
	label := sheetLabel(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.valuesURL(ref), nil)
	if err != nil {
		return nil, fetcherrors.NewFetchError(fetcherrors.ErrorTypeAPI, op, label, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fetcherrors.NewFetchError(fetcherrors.ErrorTypeTimeout, op, label, err)
		}
		return nil, fetcherrors.WrapConnectionError(op, label, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fetcherrors.WrapConnectionError(op, label, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := apiErrorMessage(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fetcherrors.WrapAPIError(op, label, fmt.Errorf("status %d: %s", resp.StatusCode, msg), resp.StatusCode)
	}

	table, err := decodeValues(body)
	if err != nil {
		return nil, fetcherrors.WrapDecodeError(op, label, err)
	}

	log.Debug().
		Str("sheet", label).
		Int("rows", len(table)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched sheet values")
	return table, nil
}

func (c *SheetsClient) valuesURL(ref sheet.Ref) string {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.baseURL, url.PathEscape(ref.SpreadsheetID), url.PathEscape(ref.Range))
	if c.apiKey != "" {
		u += "?" + url.Values{"key": {c.apiKey}}.Encode()
	}
	return u
}

// Close stops the DNS cache refresher.
func (c *SheetsClient) Close() error {
	if c.resolver != nil {
		c.resolver.Close()
	}
	c.client.CloseIdleConnections()
	return nil
}
