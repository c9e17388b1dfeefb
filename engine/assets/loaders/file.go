package loaders

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spaghettifunk/assetloader/engine/assets"
	"github.com/spaghettifunk/assetloader/engine/systems"
)

type FileLoaderOption func(*FileLoader)

// WithBaseURL sets the site base path stripped from incoming references.
func WithBaseURL(baseURL string) FileLoaderOption {
	return func(fl *FileLoader) {
		fl.baseURL = baseURL
	}
}

// WithChunkSize sets how many bytes are read between progress reports.
func WithChunkSize(size int) FileLoaderOption {
	return func(fl *FileLoader) {
		fl.chunkSize = size
	}
}

// FileLoader fetches assets from a directory laid out like the deployed site.
// Reads happen on the job system; Fetch itself never blocks.
type FileLoader struct {
	root      string
	baseURL   string
	chunkSize int
	jobs      *systems.JobSystem
}

func NewFileLoader(root string, jobs *systems.JobSystem, opts ...FileLoaderOption) *FileLoader {
	fl := &FileLoader{
		root:      root,
		baseURL:   "/",
		chunkSize: DefaultChunkSize,
		jobs:      jobs,
	}
	for _, opt := range opts {
		opt(fl)
	}
	return fl
}

// Resolve maps a reference to the file it designates below the root.
func (fl *FileLoader) Resolve(reference string) (string, error) {
	rel, err := TrimReference(reference, fl.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, reference)
	}
	return filepath.Join(fl.root, filepath.FromSlash(rel)), nil
}

func (fl *FileLoader) Fetch(reference string, onSuccess func(*assets.Resource), onProgress func(assets.Progress), onFailure func(error)) {
	submit(fl.jobs, reference, func() (*assets.Resource, error) {
		return fl.read(reference, onProgress)
	}, onSuccess, onFailure)
}

func (fl *FileLoader) read(reference string, onProgress func(assets.Progress)) (*assets.Resource, error) {
	fullPath, err := fl.Resolve(reference)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", fullPath)
	}

	data, err := readChunks(file, reference, info.Size(), fl.chunkSize, onProgress)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fullPath, err)
	}

	return &assets.Resource{
		Name:      path.Base(filepath.ToSlash(fullPath)),
		Reference: reference,
		FullPath:  fullPath,
		Type:      assets.DetermineResourceType(fullPath),
		DataSize:  uint64(len(data)),
		Data:      data,
	}, nil
}
