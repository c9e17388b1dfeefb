package assets

import (
	"path/filepath"
	"strings"
)

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Not a recognised asset. */
	ResourceTypeNone ResourceType = iota
	/** @brief glTF model, either JSON (.gltf) or binary container (.glb). */
	ResourceTypeModel
	/** @brief Raw binary buffer referenced by a model. */
	ResourceTypeBinary
	/** @brief Image or texture. */
	ResourceTypeImage
	/** @brief Stylesheet shipped with the site. */
	ResourceTypeStylesheet
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypeModel:
		return "model"
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeStylesheet:
		return "stylesheet"
	default:
		return "none"
	}
}

/**
 * @brief A generic structure for a resource. The bundled loaders
 * load data into these without decoding it.
 */
type Resource struct {
	/** @brief The base name of the resource. */
	Name string
	/** @brief The reference the resource was requested with. */
	Reference string
	/** @brief The resolved file path or URL. */
	FullPath string
	/** @brief The kind of asset, derived from the extension. */
	Type ResourceType
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The raw resource data. */
	Data []byte
}

// Progress is reported by loaders while data is being transferred.
type Progress struct {
	Reference string
	Loaded    int64
	// Total is -1 when the size is not known up front.
	Total int64
}

func DetermineResourceType(path string) ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glb", ".gltf":
		return ResourceTypeModel
	case ".bin":
		return ResourceTypeBinary
	case ".png", ".jpg", ".jpeg", ".ktx2", ".webp":
		return ResourceTypeImage
	case ".css":
		return ResourceTypeStylesheet
	default:
		return ResourceTypeNone
	}
}
