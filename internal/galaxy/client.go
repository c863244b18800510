package galaxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

const tokenHeader = "USER-API-TOKEN"

// DefaultDownloadName is used when the content-disposition header carries
// no usable filename.
const DefaultDownloadName = "downloaded_file"

var ErrNoToken = errors.New("no token received from galaxy")

// Client talks to a Galaxy instance's REST API. The base URL lives with the
// per-user connection, not the client, so one client serves all users.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
}

func NewClient(requestTimeout, downloadTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if downloadTimeout <= 0 {
		downloadTimeout = 5 * time.Minute
	}
	return &Client{
		httpClient:     &http.Client{Timeout: requestTimeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
	}
}

// RegisterKey exchanges a long-lived API key for a bearer token. A 2xx
// response without a token field is an error and must leave no state behind
// at the caller.
func (c *Client) RegisterKey(ctx context.Context, baseURL, apiKey string) (string, error) {
	payload, err := json.Marshal(map[string]string{"user_api_key": apiKey})
	if err != nil {
		return "", fmt.Errorf("marshal register-key request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/register-key", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build register-key request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("register-key request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read register-key response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("register-key status %d: %s", resp.StatusCode, serverMessage(raw, "registration failed"))
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse register-key response failed: %w", err)
	}
	if parsed.Token == "" {
		return "", ErrNoToken
	}
	return parsed.Token, nil
}

func (c *Client) ListHistories(ctx context.Context, conn model.GalaxyConnection) ([]model.GalaxyHistory, error) {
	raw, err := c.get(ctx, conn, "/api/histories/")
	if err != nil {
		return nil, err
	}

	var histories []model.GalaxyHistory
	if err := json.Unmarshal(raw, &histories); err != nil {
		return nil, fmt.Errorf("parse histories failed: %w", err)
	}
	return histories, nil
}

func (c *Client) HistoryContents(ctx context.Context, conn model.GalaxyConnection, historyID string) (*model.GalaxyContents, error) {
	raw, err := c.get(ctx, conn, "/api/histories/"+url.PathEscape(historyID)+"/contents")
	if err != nil {
		return nil, err
	}

	var contents model.GalaxyContents
	if err := json.Unmarshal(raw, &contents); err != nil {
		return nil, fmt.Errorf("parse history contents failed: %w", err)
	}
	return &contents, nil
}

func (c *Client) CreateHistory(ctx context.Context, conn model.GalaxyConnection, name string) error {
	endpoint := strings.TrimRight(conn.BaseURL, "/") + "/api/histories/create?name=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build create-history request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, conn.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create-history request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("create-history status %d: %s", resp.StatusCode, serverMessage(raw, "create history failed"))
	}
	return nil
}

// UploadPart is one file of a multipart upload, streamed from the caller.
type UploadPart struct {
	Filename string
	Content  io.Reader
}

// UploadFile sends a single file to a history. Returns the server-reported
// message when one is present.
func (c *Client) UploadFile(ctx context.Context, conn model.GalaxyConnection, historyID string, part UploadPart) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile("file", part.Filename)
	if err != nil {
		return "", fmt.Errorf("build upload form failed: %w", err)
	}
	if _, err := io.Copy(fw, part.Content); err != nil {
		return "", fmt.Errorf("copy upload content failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close upload form failed: %w", err)
	}

	path := "/api/histories/" + url.PathEscape(historyID) + "/upload-file"
	return c.postMultipart(ctx, conn, path, writer.FormDataContentType(), body, "upload failed")
}

// UploadCollection sends a set of files plus the collection descriptor
// fields to build a dataset collection in one request.
func (c *Client) UploadCollection(
	ctx context.Context,
	conn model.GalaxyConnection,
	historyID string,
	parts []UploadPart,
	collectionType, collectionName, structure string,
) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, part := range parts {
		fw, err := writer.CreateFormFile("files", part.Filename)
		if err != nil {
			return "", fmt.Errorf("build collection form failed: %w", err)
		}
		if _, err := io.Copy(fw, part.Content); err != nil {
			return "", fmt.Errorf("copy collection content failed: %w", err)
		}
	}
	_ = writer.WriteField("collection_type", collectionType)
	_ = writer.WriteField("collection_name", collectionName)
	_ = writer.WriteField("structure", structure)
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close collection form failed: %w", err)
	}

	path := "/api/histories/" + url.PathEscape(historyID) + "/upload-collection"
	return c.postMultipart(ctx, conn, path, writer.FormDataContentType(), body, "upload failed")
}

// DownloadResult streams the artifact body; the caller owns Body.
type DownloadResult struct {
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

// Download fetches one or more artifacts as a single blob. Query holds
// dataset_ids or collection_ids.
func (c *Client) Download(ctx context.Context, conn model.GalaxyConnection, query url.Values) (*DownloadResult, error) {
	endpoint := strings.TrimRight(conn.BaseURL, "/") + "/api/histories/download?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request failed: %w", err)
	}
	req.Header.Set(tokenHeader, conn.Token)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}

	return &DownloadResult{
		Filename:    DispositionFilename(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}

// DispositionFilename extracts the filename from a content-disposition
// header. mime.ParseMediaType also understands the RFC 5987 filename* form,
// which the naive quoted-string match in earlier clients did not.
func DispositionFilename(disposition string) string {
	if disposition == "" {
		return DefaultDownloadName
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return DefaultDownloadName
	}
	if name := params["filename"]; name != "" {
		return name
	}
	return DefaultDownloadName
}

func (c *Client) get(ctx context.Context, conn model.GalaxyConnection, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(conn.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build galaxy request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, conn.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("galaxy request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read galaxy response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("galaxy status %d: %s", resp.StatusCode, serverMessage(raw, "request failed"))
	}
	return raw, nil
}

func (c *Client) postMultipart(
	ctx context.Context,
	conn model.GalaxyConnection,
	path, contentType string,
	body io.Reader,
	genericError string,
) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(conn.BaseURL, "/")+path, body)
	if err != nil {
		return "", fmt.Errorf("build galaxy upload request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(tokenHeader, conn.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("galaxy upload request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read galaxy upload response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("galaxy upload status %d: %s", resp.StatusCode, serverMessage(raw, genericError))
	}
	return serverMessage(raw, ""), nil
}

// serverMessage pulls the message field out of a Galaxy JSON body, falling
// back to the given generic text.
func serverMessage(raw []byte, fallback string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return fallback
}
