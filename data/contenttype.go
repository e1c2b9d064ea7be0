package data

import (
	"path/filepath"
	"strings"
)

type ContentType string

const (
	ContentTypeCollectionIndex   ContentType = "application/x-gridindex-collection"
	ContentTypePartitionIndex    ContentType = "application/x-gridindex-partition"
	ContentTypeInventory         ContentType = "text/plain"
	ContentTypeApplicationStream ContentType = "application/octet-stream"
)

// ExtensionToMIME maps file extensions to MIME types
var ExtensionToMIME = map[string]ContentType{
	CollectionIndexExt: ContentTypeCollectionIndex,
	PartitionIndexExt:  ContentTypePartitionIndex,
	".idx":             ContentTypeInventory,
}

// GetMIMEType returns the MIME type for a file extension
func GetMIMEType(path string) ContentType {
	ext := strings.ToLower(filepath.Ext(path))

	if mimeType, exists := ExtensionToMIME[ext]; exists {
		return mimeType
	}

	// Default to octet-stream for unknown types
	return ContentTypeApplicationStream
}
