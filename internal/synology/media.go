package synology

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/records"
)

// DefaultThumbnailSize is requested when the caller names none.
const DefaultThumbnailSize = "m"

// passthroughHeaders are copied from upstream media responses.
var passthroughHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
	"Cache-Control",
	"Last-Modified",
}

// ThumbnailRequest identifies one thumbnail.
type ThumbnailRequest struct {
	ItemID     string
	CacheKey   string
	Size       string
	Passphrase string
}

// DownloadRequest identifies one original file. Range is forwarded verbatim.
type DownloadRequest struct {
	ItemID     string
	CacheKey   string
	Passphrase string
	Range      string
}

// Thumbnail streams a thumbnail. The caller closes the body.
func (c *Client) Thumbnail(ctx context.Context, r ThumbnailRequest) (*http.Response, error) {
	size := r.Size
	if size == "" {
		size = DefaultThumbnailSize
	}

	params := map[string]any{
		"id":   records.IDParam(r.ItemID),
		"type": "unit",
		"size": size,
	}

	if r.CacheKey != "" {
		params["cache_key"] = r.CacheKey
	}

	if r.Passphrase != "" {
		params["passphrase"] = r.Passphrase
	}

	resp, err := c.CallRaw(ctx, APIRequest{API: ThumbnailAPI, Version: 1, Method: "get", Params: params})
	if err != nil {
		return nil, err
	}

	return checkMedia(resp, ThumbnailAPI, "Thumbnail not found")
}

// Download streams an original file, honoring a Range header. The caller
// closes the body.
func (c *Client) Download(ctx context.Context, r DownloadRequest) (*http.Response, error) {
	params := map[string]any{
		"unit_id": []any{records.IDParam(r.ItemID)},
	}

	if r.CacheKey != "" {
		params["cache_key"] = []string{r.CacheKey}
	}

	if r.Passphrase != "" {
		params["passphrase"] = r.Passphrase
	}

	req := APIRequest{API: DownloadAPI, Version: 1, Method: "download", Params: params}
	if r.Range != "" {
		req.Header = http.Header{"Range": {r.Range}}
	}

	resp, err := c.CallRaw(ctx, req)
	if err != nil {
		return nil, err
	}

	return checkMedia(resp, DownloadAPI, "Item not found")
}

// ProxyHeaders copies the cacheable and range-related headers of an
// upstream media response.
func ProxyHeaders(resp *http.Response) http.Header {
	out := http.Header{}

	for _, k := range passthroughHeaders {
		if v := resp.Header.Get(k); v != "" {
			out.Set(k, v)
		}
	}

	return out
}

// checkMedia maps non-success media statuses onto the error taxonomy.
func checkMedia(resp *http.Response, api, notFoundMessage string) (*http.Response, error) {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp)
		return nil, apperr.NotFound(notFoundMessage)
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		drain(resp)
		return nil, apperr.ErrRangeNotSatisfiable
	case resp.StatusCode >= http.StatusBadRequest:
		drain(resp)
		return nil, &apperr.UpstreamError{
			API:    api,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: unexpected media status", apperr.ErrUpstreamFatal),
		}
	default:
		return resp, nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxEnvelopeBytes))
	resp.Body.Close()
}
