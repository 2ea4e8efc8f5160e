package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"golang.org/x/sync/errgroup"
)

// tempURLBatchSize is the most file IDs the backend accepts per request
const tempURLBatchSize = 50

const tempURLConcurrency = 4

type tempURLRequest struct {
	FileList []provider.FileRequest `json:"fileList"`
}

type tempURLResponse struct {
	FileList []provider.TempFile `json:"fileList"`
}

// TempFileURLs resolves file IDs to signed download URLs. Requests are split
// into batches and sent concurrently; results keep the input order.
func (c *Client) TempFileURLs(ctx context.Context, files []provider.FileRequest) ([]provider.TempFile, error) {
	if len(files) == 0 {
		return []provider.TempFile{}, nil
	}
	httpClient, err := c.authedHTTP()
	if err != nil {
		return nil, err
	}

	results := make([]provider.TempFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tempURLConcurrency)

	for start := 0; start < len(files); start += tempURLBatchSize {
		end := min(start+tempURLBatchSize, len(files))
		g.Go(func() error {
			batch, err := c.fetchTempURLs(gctx, httpClient, files[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return provider.NewError(provider.CodeInternal,
					fmt.Sprintf("temp URL batch returned %d entries for %d files", len(batch), end-start))
			}
			copy(results[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.LogErrorWithFields("cloud-provider", "Failed to resolve temp file URLs", map[string]any{
			"files": len(files),
			"error": err.Error(),
		})
		return nil, err
	}
	return results, nil
}

func (c *Client) fetchTempURLs(ctx context.Context, httpClient *http.Client, files []provider.FileRequest) ([]provider.TempFile, error) {
	body, err := json.Marshal(tempURLRequest{FileList: files})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(tempURLsPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building temp URL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &provider.Error{Code: provider.CodeInternal, Message: "temp URL request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, statusError(resp, "temp URL lookup")
	}

	var out tempURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &provider.Error{Code: provider.CodeInternal, Message: "invalid temp URL response", Err: err}
	}
	return out.FileList, nil
}
