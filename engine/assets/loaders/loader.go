package loaders

import (
	"io"
	"path"
	"strings"

	"github.com/spaghettifunk/assetloader/engine/assets"
	"github.com/spaghettifunk/assetloader/engine/core"
	"github.com/spaghettifunk/assetloader/engine/systems"
)

// DefaultChunkSize is how many bytes are read between two progress reports.
const DefaultChunkSize = 64 * 1024

// TrimReference turns a site reference into a clean path relative to the site
// root. The base URL prefix is optional. Empty references and references
// escaping the root are rejected.
func TrimReference(reference, baseURL string) (string, error) {
	ref := strings.TrimSpace(reference)
	if baseURL != "" && baseURL != "/" {
		ref = strings.TrimPrefix(ref, baseURL)
	}
	ref = strings.TrimLeft(ref, "/")
	if ref == "" {
		return "", core.ErrInvalidReference
	}
	cleaned := path.Clean(ref)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", core.ErrInvalidReference
	}
	return cleaned, nil
}

// maxPrealloc bounds how much of a declared size is allocated up front.
// Sizes come from response headers and cannot be trusted.
const maxPrealloc = 8 << 20

// readChunks drains r, reporting progress after every chunk. A reader that
// ends before the declared total fails with io.ErrUnexpectedEOF.
func readChunks(r io.Reader, reference string, total int64, chunkSize int, onProgress func(assets.Progress)) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var data []byte
	if total > 0 {
		data = make([]byte, 0, min(total, maxPrealloc))
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if onProgress != nil {
				onProgress(assets.Progress{Reference: reference, Loaded: int64(len(data)), Total: total})
			}
		}
		if err == io.EOF {
			if total >= 0 && int64(len(data)) < total {
				return nil, io.ErrUnexpectedEOF
			}
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// submit runs fetch on the job system and routes its outcome to the callbacks.
func submit(jobs *systems.JobSystem, reference string, fetch func() (*assets.Resource, error), onSuccess func(*assets.Resource), onFailure func(error)) {
	jobs.AddWorkNonBlocking(systems.JobTask{
		ID:  reference,
		Run: func() (interface{}, error) { return fetch() },
		OnComplete: func(result interface{}) {
			if onSuccess != nil {
				onSuccess(result.(*assets.Resource))
			}
		},
		OnFailure: func(err error) {
			if onFailure != nil {
				onFailure(err)
			}
		},
	})
}
