// Package lakefs is a small client for the lakeFS object-store API: branch
// creation, object upload and commits, which is all the result uploader
// needs.
package lakefs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

type ClientOption func(*Client)

type Client struct {
	base      url.URL
	accessKey string
	secretKey string
	http      *http.Client
}

const defaultTimeout = 120 * time.Second

func NewClient(endpoint, accessKey, secretKey string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	c := &Client{
		base:      *base,
		accessKey: accessKey,
		secretKey: secretKey,
		http:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

type Repository struct {
	ID string `json:"id"`
}

// ListRepositories is the connectivity probe: it only needs the call to
// succeed and returns the repository ids it can see.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	var resp struct {
		Results []Repository `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/repositories", nil, &resp); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return resp.Results, nil
}

// CreateBranch branches the repository off sourceBranch. An already-existing
// branch surfaces as an error; callers treat that as non-fatal.
func (c *Client) CreateBranch(ctx context.Context, repo, name, sourceBranch string) error {
	req := map[string]string{"name": name, "source": sourceBranch}
	path := fmt.Sprintf("/api/v1/repositories/%s/branches", url.PathEscape(repo))
	if err := c.doJSON(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// UploadObject writes content to remotePath on the given branch.
func (c *Client) UploadObject(ctx context.Context, repo, branch, remotePath string, content []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("content", remotePath)
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	path := fmt.Sprintf("/api/v1/repositories/%s/branches/%s/objects?path=%s",
		url.PathEscape(repo), url.PathEscape(branch), url.QueryEscape(remotePath))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, &body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", mw.FormDataContentType())
	request.SetBasicAuth(c.accessKey, c.secretKey)

	resp, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("upload object %q: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload object %q: unexpected status code: %d, body: %s", remotePath, resp.StatusCode, string(respBody))
	}
	return nil
}

// Commit records the staged changes on branch and returns the commit id.
func (c *Client) Commit(ctx context.Context, repo, branch, message string) (string, error) {
	req := map[string]string{"message": message}
	var resp struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/api/v1/repositories/%s/branches/%s/commits",
		url.PathEscape(repo), url.PathEscape(branch))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", fmt.Errorf("commit to %q: %w", branch, err)
	}
	return resp.ID, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqData, respData any) error {
	var body io.Reader
	if reqData != nil {
		raw, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.SetBasicAuth(c.accessKey, c.secretKey)

	resp, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	if respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
