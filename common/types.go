// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/clone"
	"github.com/cogentcore/webgpu/wgpu"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
// Frames coming from the decoder and auxiliary lookup textures are staged through this type before the
// GraphicsContext creates the GPU texture.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It is tightly packed RGBA, 4 bytes per pixel, row-major.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// SamplerStagingData holds the configuration for a sampler pending GPU creation.
// Zero values fall back to the engine defaults (linear filtering, clamp-to-edge addressing).
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD).
	LodMinClamp, LodMaxClamp float32
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// WithDefaults fills zero fields with linear filtering, clamp-to-edge addressing, nearest mip selection,
// an LOD range of [0,32] and no anisotropy.
func (s SamplerStagingData) WithDefaults() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  firstNonZero(s.AddressModeU, wgpu.AddressModeClampToEdge),
		AddressModeV:  firstNonZero(s.AddressModeV, wgpu.AddressModeClampToEdge),
		AddressModeW:  firstNonZero(s.AddressModeW, wgpu.AddressModeClampToEdge),
		MagFilter:     firstNonZero(s.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     firstNonZero(s.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  firstNonZero(s.MipmapFilter, wgpu.MipmapFilterModeNearest),
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   firstNonZero(s.LodMaxClamp, 32),
		MaxAnisotropy: firstNonZero(s.MaxAnisotropy, 1),
	}
}

func firstNonZero[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

// NewTextureStagingData converts any image into tightly packed RGBA staging data.
//
// Parameters:
//   - img: the source image, in any color model
//
// Returns:
//   - TextureStagingData: the staged pixels
func NewTextureStagingData(img image.Image) TextureStagingData {
	rgba := clone.AsRGBA(img)
	b := rgba.Bounds()
	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
	}
}

// NewSolidTextureStagingData creates staging data filled with a single RGBA color.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//   - rgba: the fill color
//
// Returns:
//   - TextureStagingData: the staged pixels
func NewSolidTextureStagingData(width, height int, rgba [4]uint8) TextureStagingData {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		copy(pix[i:i+4], rgba[:])
	}
	return TextureStagingData{Pixels: pix, Width: uint32(width), Height: uint32(height)}
}

// LoadTextureStagingData decodes an image file from disk. PNG, JPEG, BMP and WebP are supported.
//
// Parameters:
//   - path: the image file path
//
// Returns:
//   - TextureStagingData: the staged pixels
//   - error: error if the file cannot be opened or decoded
func LoadTextureStagingData(path string) (TextureStagingData, error) {
	file, err := os.Open(path)
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to open image file %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to decode image file %s: %w", path, err)
	}
	return NewTextureStagingData(img), nil
}

// Image wraps the staged pixels in an *image.RGBA without copying.
//
// Returns:
//   - *image.RGBA: the image view of the staging data
func (t TextureStagingData) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    t.Pixels,
		Stride: int(t.Width) * 4,
		Rect:   image.Rect(0, 0, int(t.Width), int(t.Height)),
	}
}

// Resize returns a copy scaled to the given dimensions with bilinear filtering.
// The receiver is returned unchanged when the size already matches.
//
// Parameters:
//   - width: the target width in pixels
//   - height: the target height in pixels
//
// Returns:
//   - TextureStagingData: the resized staging data
func (t TextureStagingData) Resize(width, height int) TextureStagingData {
	if int(t.Width) == width && int(t.Height) == height {
		return t
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), t.Image(), t.Image().Bounds(), draw.Src, nil)
	return TextureStagingData{Pixels: dst.Pix, Width: uint32(width), Height: uint32(height)}
}

// SavePNG writes the staged pixels to a PNG file, creating parent directories as needed.
//
// Parameters:
//   - path: the destination file path
//
// Returns:
//   - error: error if the file cannot be written
func (t TextureStagingData) SavePNG(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		return fmt.Errorf("unsupported output extension %q, expected .png", filepath.Ext(path))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file %s: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, t.Image()); err != nil {
		return fmt.Errorf("failed to encode image file %s: %w", path, err)
	}
	return nil
}
