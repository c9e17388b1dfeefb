package loaders

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/spaghettifunk/assetloader/engine/assets"
	"github.com/spaghettifunk/assetloader/engine/systems"
)

// StatusError reports a non-2xx response. Its message is the bare status code,
// the same text a browser loader surfaces for a missing asset.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return strconv.Itoa(e.StatusCode)
}

type HTTPLoaderOption func(*HTTPLoader)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) HTTPLoaderOption {
	return func(hl *HTTPLoader) {
		hl.client = c
	}
}

// WithHTTPBaseURL sets the site base path prepended to relative references.
func WithHTTPBaseURL(baseURL string) HTTPLoaderOption {
	return func(hl *HTTPLoader) {
		hl.baseURL = baseURL
	}
}

// WithHTTPChunkSize sets how many bytes are read between progress reports.
func WithHTTPChunkSize(size int) HTTPLoaderOption {
	return func(hl *HTTPLoader) {
		hl.chunkSize = size
	}
}

// HTTPLoader fetches assets from a running site. Requests run on the job system.
type HTTPLoader struct {
	origin    string
	baseURL   string
	chunkSize int
	client    *http.Client
	jobs      *systems.JobSystem
}

func NewHTTPLoader(origin string, jobs *systems.JobSystem, opts ...HTTPLoaderOption) *HTTPLoader {
	hl := &HTTPLoader{
		origin:    strings.TrimRight(origin, "/"),
		baseURL:   "/",
		chunkSize: DefaultChunkSize,
		client:    http.DefaultClient,
		jobs:      jobs,
	}
	for _, opt := range opts {
		opt(hl)
	}
	return hl
}

// Resolve returns the URL requested for reference. Absolute URLs are kept as they are.
func (hl *HTTPLoader) Resolve(reference string) (string, error) {
	if u, err := url.Parse(reference); err == nil && u.IsAbs() {
		return u.String(), nil
	}
	rel, err := TrimReference(reference, hl.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, reference)
	}
	u, err := url.Parse(hl.origin)
	if err != nil {
		return "", err
	}
	// Path holds the unescaped form; String escapes '#', '?' and '%' in it.
	u.Path = path.Join("/", u.Path, hl.baseURL, rel)
	u.RawPath = ""
	return u.String(), nil
}

func (hl *HTTPLoader) Fetch(reference string, onSuccess func(*assets.Resource), onProgress func(assets.Progress), onFailure func(error)) {
	submit(hl.jobs, reference, func() (*assets.Resource, error) {
		return hl.get(reference, onProgress)
	}, onSuccess, onFailure)
}

func (hl *HTTPLoader) get(reference string, onProgress func(assets.Progress)) (*assets.Resource, error) {
	target, err := hl.Resolve(reference)
	if err != nil {
		return nil, err
	}

	// No deadline: the loader has no timeout of its own, the client may carry one.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hl.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	data, err := readChunks(resp.Body, reference, resp.ContentLength, hl.chunkSize, onProgress)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}

	name := path.Base(resp.Request.URL.Path)
	return &assets.Resource{
		Name:      name,
		Reference: reference,
		FullPath:  target,
		Type:      assets.DetermineResourceType(name),
		DataSize:  uint64(len(data)),
		Data:      data,
	}, nil
}
