// Package vision prepares user photos for vision-capable providers.
// Providers cap request sizes, so images are fitted into a bounded box and
// re-encoded before they travel as base64 payloads.
package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

const (
	// maxEdge bounds the longer image edge after preprocessing.
	maxEdge = 1024
	// jpegQuality keeps payloads small without wrecking photo detail.
	jpegQuality = 82
)

// PrepareDataURL decodes an uploaded image, fits it inside maxEdge×maxEdge
// (never upscaling), and returns it as a base64 JPEG data URL ready to embed
// in a provider request.
func PrepareDataURL(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxEdge || bounds.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
