package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggoodman/candid-explorer-go/mcp"
)

// ResourceReader produces a resource's contents at read time.
type ResourceReader func(ctx context.Context, uri string) ([]mcp.ResourceContents, error)

// StaticResource pairs a resource descriptor with its reader.
type StaticResource struct {
	Descriptor mcp.Resource
	Read       ResourceReader
}

// TextContents returns a reader that always yields text.
func TextContents(mimeType, text string) ResourceReader {
	return func(_ context.Context, uri string) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{{URI: uri, MimeType: mimeType, Text: text}}, nil
	}
}

// ResourcesContainer is a threadsafe set of resources read on demand.
type ResourcesContainer struct {
	mu        sync.RWMutex
	resources []mcp.Resource
	readers   map[string]ResourceReader
	pageSize  int
}

// NewResourcesContainer builds a container holding defs.
func NewResourcesContainer(defs ...StaticResource) *ResourcesContainer {
	rc := &ResourcesContainer{pageSize: defaultPageSize}
	rc.Replace(defs...)
	return rc
}

// Replace swaps the whole resource set.
func (rc *ResourcesContainer) Replace(defs ...StaticResource) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.resources = make([]mcp.Resource, 0, len(defs))
	rc.readers = make(map[string]ResourceReader, len(defs))
	for _, d := range defs {
		if _, dup := rc.readers[d.Descriptor.URI]; !dup {
			rc.resources = append(rc.resources, d.Descriptor)
		}
		rc.readers[d.Descriptor.URI] = d.Read
	}
}

// SetPageSize sets the ListResources page size. Non-positive values are
// ignored.
func (rc *ResourcesContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	rc.mu.Lock()
	rc.pageSize = n
	rc.mu.Unlock()
}

// ListResources implements ResourcesCapability.
func (rc *ResourcesContainer) ListResources(_ context.Context, cursor *string) (Page[mcp.Resource], error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return paginate(rc.resources, cursor, rc.pageSize), nil
}

// ReadResource implements ResourcesCapability.
func (rc *ResourcesContainer) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	rc.mu.RLock()
	read := rc.readers[uri]
	rc.mu.RUnlock()
	if read == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	return read(ctx, uri)
}
