package render

import (
	"errors"
	"image/color"
)

// ErrUnknownHandle is returned when a backend is handed a handle it never
// issued or has already released.
var ErrUnknownHandle = errors.New("unknown render handle")

// MeshHandle identifies an uploaded mesh. Zero is never a valid handle.
type MeshHandle uint64

// NodeHandle identifies a renderable scene node. Zero is never a valid handle.
type NodeHandle uint64

// TextureHandle identifies a texture. Zero is never a valid handle.
type TextureHandle uint64

// Backend is the host geometry/render/physics surface consumed by segment
// meshes.
type Backend interface {
	CreateMesh(data *MeshData) (MeshHandle, error)
	DestroyMesh(mesh MeshHandle)
	CreateNode(mesh MeshHandle, texture TextureHandle) (NodeHandle, error)
	DestroyNode(node NodeHandle)
	AttachCollider(node NodeHandle, bounds Bounds) error
	DetachCollider(node NodeHandle)
	SetTransform(node NodeHandle, t Transform)
}

// TextureProvider looks textures up by name and can mint solid-colour
// textures for fallbacks.
type TextureProvider interface {
	LookupTexture(name string) (TextureHandle, bool)
	SolidTexture(c color.RGBA) TextureHandle
}
