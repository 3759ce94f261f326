package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	e "nuclight.org/terabox-relay-bot/pkg/entities"
)

const DefaultBaseURL = "https://terabox-pro-api.vercel.app/api"

const (
	keyStatus     = "status"
	keyInfo       = "📋 Extracted Info"
	keyTitle      = "📄 Title"
	keySize       = "📦 Size"
	keyDirectLink = "🔗 Direct Download Link"

	statusSuccess = "✅ Success"

	unknown = "Unknown"

	// ReasonNotExtracted is reported when the service answers but carries no usable record
	ReasonNotExtracted = "Failed to extract information"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client resolves share links through the external resolution service.
// A single GET is issued per call, there are no retries.
type Client struct {
	// BaseURL falls back to DefaultBaseURL when empty
	BaseURL    string
	HTTPClient HTTPClient

	// Timeout bounds one request, zero means no limit besides ctx
	Timeout time.Duration
}

// Resolve never returns an error: transport failures, bad statuses and malformed
// payloads all come back as an unresolved result carrying the reason.
func (c *Client) Resolve(ctx context.Context, link string) e.Resolution {
	payload, err := c.fetch(ctx, link)
	if err != nil {
		return e.Unresolved(err.Error())
	}

	return mapPayload(payload)
}

func (c *Client) fetch(ctx context.Context, link string) (map[string]any, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	endpoint, err := url.Parse(c.baseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing resolver url: %w", err)
	}

	query := endpoint.Query()
	query.Set("link", link)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var payload map[string]any
	if err = json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return payload, nil
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.BaseURL
}

// mapPayload isolates the service's loosely typed schema. Only the first
// extracted record is consulted.
func mapPayload(payload map[string]any) e.Resolution {
	status, _ := payload[keyStatus].(string)
	if status != statusSuccess {
		return e.Unresolved(ReasonNotExtracted)
	}

	records, _ := payload[keyInfo].([]any)
	if len(records) == 0 {
		return e.Unresolved(ReasonNotExtracted)
	}

	record, ok := records[0].(map[string]any)
	if !ok {
		return e.Unresolved(ReasonNotExtracted)
	}

	return e.Resolved(
		takeString(record, keyTitle, unknown),
		takeString(record, keySize, unknown),
		takeString(record, keyDirectLink, ""),
	)
}

func takeString(record map[string]any, key, fallback string) string {
	switch v := record[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fallback
	}
}
