package tools

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"

	"github.com/disintegration/imaging"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// maxVisionDimension bounds the longest edge sent to a vision model — most
// providers downscale internally anyway, so sending anything larger just
// burns request bandwidth and upload time for no quality gain.
const maxVisionDimension = 1568

// normalizeForVision decodes each image; one larger than maxVisionDimension
// is downsampled to fit (preserving aspect ratio) and re-encoded as JPEG,
// and one already within bounds is returned unchanged. An
// image that fails to decode (unsupported format, corrupt data) is passed
// through unchanged rather than dropped, so a single bad attachment doesn't
// kill the whole vision call.
func normalizeForVision(images []providers.ImageContent) []providers.ImageContent {
	out := make([]providers.ImageContent, len(images))
	for i, img := range images {
		resized, err := resizeImageContent(img)
		if err != nil {
			out[i] = img
			continue
		}
		out[i] = resized
	}
	return out
}

func resizeImageContent(img providers.ImageContent) (providers.ImageContent, error) {
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return img, fmt.Errorf("decode base64: %w", err)
	}

	decoded, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return img, fmt.Errorf("decode image: %w", err)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() <= maxVisionDimension && bounds.Dy() <= maxVisionDimension {
		return img, nil
	}

	resized := imaging.Fit(decoded, maxVisionDimension, maxVisionDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return img, fmt.Errorf("encode resized image: %w", err)
	}

	return providers.ImageContent{
		MimeType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
