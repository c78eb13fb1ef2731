// Package catalog provides a client for the REST resource holding the target properties.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/config"
	"github.com/ekaya-inc/ekaya-mapper/pkg/logging"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

// maxErrorBodyLog bounds how much of an error response body is logged.
const maxErrorBodyLog = 200

// Client reads and updates target properties over HTTP. It serves as the schema
// provider, the feedback sink and the property creator.
type Client struct {
	httpClient *http.Client
	baseURL    string
	resource   string
	apiKey     string
	logger     *zap.Logger
}

var (
	_ services.SchemaProvider  = (*Client)(nil)
	_ services.FeedbackSink    = (*Client)(nil)
	_ services.PropertyCreator = (*Client)(nil)
)

// NewClient creates a catalog client.
func NewClient(cfg *config.CatalogConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		baseURL:  cfg.BaseURL,
		resource: cfg.Resource,
		apiKey:   cfg.APIKey,
		logger:   logger.Named("catalog"),
	}
}

// termList decodes a synonym/antonym field sent either as a ';'-delimited string
// or as a JSON array of strings.
type termList []string

func (t *termList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = []string{}
		return nil
	}
	if trimmed[0] == '[' {
		var items []string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*t = models.ParseTermList(strings.Join(items, models.TermListSeparator))
		return nil
	}
	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	*t = models.ParseTermList(raw)
	return nil
}

// propertyRecord is the wire form of one property.
type propertyRecord struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"DisplayName"`
	Name        string   `json:"Name"`
	Synonyms    termList `json:"Synonyms"`
	Antonyms    termList `json:"Antonyms"`
}

func (r propertyRecord) toModel() models.TargetProperty {
	p := models.TargetProperty{
		DisplayName: strings.TrimSpace(r.DisplayName),
		Synonyms:    []string(r.Synonyms),
		Antonyms:    []string(r.Antonyms),
		LocalID:     strings.TrimSpace(r.Name),
		RemoteID:    strings.TrimSpace(r.ID),
	}
	if p.Synonyms == nil {
		p.Synonyms = []string{}
	}
	if p.Antonyms == nil {
		p.Antonyms = []string{}
	}
	return p
}

// ListProperties fetches every property of the resource. Both a bare JSON array
// and an OData {"value": [...]} envelope are accepted.
func (c *Client) ListProperties(ctx context.Context) ([]models.TargetProperty, error) {
	body, err := c.do(ctx, http.MethodGet, nil, nil)
	if err != nil {
		return nil, err
	}

	var records []propertyRecord
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Value []propertyRecord `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		records = envelope.Value
	} else if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	props := make([]models.TargetProperty, 0, len(records))
	for _, r := range records {
		props = append(props, r.toModel())
	}

	c.logger.Debug("Fetched target properties", zap.Int("count", len(props)))
	return props, nil
}

// GetLexicon fetches the current synonyms and antonyms of one property.
func (c *Client) GetLexicon(ctx context.Context, remoteID string) (*models.Lexicon, error) {
	if remoteID == "" {
		return nil, errors.New("property id is required")
	}
	body, err := c.do(ctx, http.MethodGet, []string{remoteID}, nil)
	if err != nil {
		return nil, err
	}

	var record propertyRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	p := record.toModel()
	return &models.Lexicon{Synonyms: p.Synonyms, Antonyms: p.Antonyms}, nil
}

// PatchLexicon writes the changed term lists of one property. Fields absent from
// the patch are not sent.
func (c *Client) PatchLexicon(ctx context.Context, remoteID string, patch models.LexiconPatch) error {
	if remoteID == "" {
		return errors.New("property id is required")
	}
	if patch.IsEmpty() {
		return nil
	}

	payload := map[string]string{}
	if patch.Synonyms != nil {
		payload["Synonyms"] = *patch.Synonyms
	}
	if patch.Antonyms != nil {
		payload["Antonyms"] = *patch.Antonyms
	}

	c.logger.Debug("Updating property lexicon",
		zap.String("remote_id", remoteID),
		zap.Bool("synonyms", patch.Synonyms != nil),
		zap.Bool("antonyms", patch.Antonyms != nil))

	_, err := c.do(ctx, http.MethodPut, []string{remoteID}, payload)
	return err
}

// CreateProperty adds a property with the given display name and empty term lists.
func (c *Client) CreateProperty(ctx context.Context, displayName string) error {
	payload := map[string]string{
		"DisplayName": displayName,
		"Synonyms":    "",
		"Antonyms":    "",
	}
	if _, err := c.do(ctx, http.MethodPost, nil, payload); err != nil {
		return err
	}
	c.logger.Info("Created target property", zap.String("display_name", displayName))
	return nil
}

// do sends one request to the resource (or a member of it) and returns the body
// of a 2xx response.
func (c *Client) do(ctx context.Context, method string, segments []string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, errors.New("catalog base URL is not configured")
	}
	endpoint, err := buildURL(c.baseURL, append([]string{c.resource}, segments...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Catalog request failed",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to call catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Catalog returned error",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.Truncate(string(body), maxErrorBodyLog)))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog returned status %d: %s", e.StatusCode, logging.Truncate(e.Body, maxErrorBodyLog))
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
