// Package loader provides a client for the file-management and loader-job API that
// exported tables are delivered to.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/config"
	"github.com/ekaya-inc/ekaya-mapper/pkg/logging"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

const (
	// DataMediaType is the Accept type of the object endpoints.
	DataMediaType = "application/vnd.intergraph.data+json"

	loaderClass       = "SDALoader"
	loaderInterface   = "ISDALoaderClass"
	attachedFileClass = "SPFDesignFile"

	maxErrorBodyLog = 200
)

// Client drives the upload and loader-job endpoints, one call per pipeline step.
type Client struct {
	httpClient *http.Client
	cfg        config.LoaderConfig
	logger     *zap.Logger
}

var _ services.IngestionClient = (*Client)(nil)

// NewClient creates a loader client.
func NewClient(cfg *config.LoaderConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		cfg:    *cfg,
		logger: logger.Named("loader"),
	}
}

// ResumeUpload sends the first part of a file and returns the upload id.
func (c *Client) ResumeUpload(ctx context.Context, fileName string, content []byte) (string, error) {
	query := url.Values{"type": {"resume"}, "part": {"1"}}
	body, err := c.postFile(ctx, query, fileName, content)
	if err != nil {
		return "", err
	}

	var resp struct {
		UploadID string `json:"UploadId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if resp.UploadID == "" {
		return "", errors.New("upload response has no UploadId")
	}
	return resp.UploadID, nil
}

// CommitUpload completes an upload started by ResumeUpload.
func (c *Client) CommitUpload(ctx context.Context, uploadID, fileName string, content []byte) error {
	query := url.Values{"type": {"commit"}, "UploadId": {uploadID}}
	_, err := c.postFile(ctx, query, fileName, content)
	return err
}

// MakeUploadAvailable publishes a committed upload.
func (c *Client) MakeUploadAvailable(ctx context.Context, uploadID string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "FileMgmt/MakeUploadAvailable", nil, map[string]string{
		"Filename": uploadID,
	}, "")
	return err
}

// FetchClassificationID looks up the object id of the configured loader classification.
func (c *Client) FetchClassificationID(ctx context.Context) (string, error) {
	filter := fmt.Sprintf("contains(Interfaces,'%s') and contains(UID,'%s')",
		loaderInterface, odataString(c.cfg.ClassificationUID))
	query := url.Values{"$filter": {filter}, "$select": {"OBID"}}

	body, err := c.doJSON(ctx, http.MethodGet, "SDA/Objects", query, nil, DataMediaType)
	if err != nil {
		return "", err
	}

	var resp struct {
		Value []struct {
			OBID string `json:"OBID"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse classification response: %w", err)
	}
	if len(resp.Value) == 0 || resp.Value[0].OBID == "" {
		return "", fmt.Errorf("loader classification %q not found", c.cfg.ClassificationUID)
	}
	return resp.Value[0].OBID, nil
}

// CreateLoaderJob creates a loader job under the classification and returns its id.
func (c *Client) CreateLoaderJob(ctx context.Context, jobName, classificationID string) (string, error) {
	classificationRef, err := c.endpoint(fmt.Sprintf("SDA/Objects('%s')", odataString(classificationID)), nil)
	if err != nil {
		return "", err
	}
	payload := map[string]any{
		"Class":                                 loaderClass,
		"Name":                                  jobName,
		"Description":                           c.cfg.JobDescription,
		"SDVLoaderSuppressENS":                  "False",
		"SPFPrimaryClassification_21@odata.bind": []string{classificationRef},
	}

	body, err := c.doJSON(ctx, http.MethodPost, "SDA/Objects", nil, payload, DataMediaType)
	if err != nil {
		return "", err
	}

	var resp struct {
		OBID string `json:"OBID"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse job response: %w", err)
	}
	if resp.OBID == "" {
		return "", errors.New("job response has no OBID")
	}
	return resp.OBID, nil
}

// AttachFile attaches an uploaded file to a loader job.
func (c *Client) AttachFile(ctx context.Context, fileName, uploadID, jobID string) error {
	resource := fmt.Sprintf("FileMgmt/Upload('%s')/Intergraph.SPF.Server.API.Model.Attach", odataString(uploadID))
	_, err := c.doJSON(ctx, http.MethodPost, resource, nil, map[string]any{
		"ClientFilePath":    fileName,
		"TargetObjectOBID":  jobID,
		"DeleteScannedFile": false,
		"FileClass":         attachedFileClass,
	}, "")
	return err
}

// AttachWorkflow starts the configured workflow on a loader job.
func (c *Client) AttachWorkflow(ctx context.Context, jobID string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "SDA/AttachToDefaultWorkflow", nil, map[string]string{
		"ObjectOBID":        jobID,
		"WorkflowNameOrUID": c.cfg.WorkflowName,
	}, "")
	return err
}

func (c *Client) postFile(ctx context.Context, query url.Values, fileName string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	endpoint, err := c.endpoint("FileMgmt/UploadFile", query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

func (c *Client) doJSON(ctx context.Context, method, resource string, query url.Values, payload any, accept string) ([]byte, error) {
	endpoint, err := c.endpoint(resource, query)
	if err != nil {
		return nil, err
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
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.TenantID != "" {
		req.Header.Set("X-Ingr-TenantId", c.cfg.TenantID)
	}
	if c.cfg.OrgID != "" {
		req.Header.Set("X-Ingr-OrgId", c.cfg.OrgID)
	}

	c.logger.Debug("Calling loader",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Loader request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to call loader: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Loader returned error",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.Truncate(string(body), maxErrorBodyLog)))
		return nil, fmt.Errorf("loader returned status %d: %s", resp.StatusCode, logging.Truncate(string(body), maxErrorBodyLog))
	}
	return body, nil
}

// endpoint joins resource onto the base URL. Resources may carry OData key
// segments such as Objects('id'), so they are appended verbatim.
func (c *Client) endpoint(resource string, query url.Values) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", errors.New("loader base URL is not configured")
	}
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/" + resource)
	if err != nil {
		return "", fmt.Errorf("invalid loader URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// odataString escapes a value for use inside a single-quoted OData literal.
func odataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
