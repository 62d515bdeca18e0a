package dataset

import (
	"image"
	// Still image codecs registered for ImageDecoder.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	// WebP, common in scraped datasets.
	_ "github.com/chai2010/webp"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-firewatch/images"
)

// GocvDecoder decodes files with OpenCV, accepting every format it supports.
type GocvDecoder struct{}

// Decode reads, resizes and normalises an image file.
func (GocvDecoder) Decode(path string, size images.Size) ([]float32, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return nil, errors.Errorf("cannot decode %s", path)
	}

	return images.MatToTensor(img, size)
}

// ImageDecoder decodes JPEG, PNG, GIF and WebP files without OpenCV.
type ImageDecoder struct{}

// Decode reads, resizes and normalises an image file.
func (ImageDecoder) Decode(path string, size images.Size) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}

	return images.FromImage(img, size), nil
}
