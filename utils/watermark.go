// utils/watermark.go
package utils

import (
	"bytes"
	"image"
	"log"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Watermark brand label, burned into the top banner of every photo.
const watermarkBrand = "FieldProof"

// Font candidates in preference order. Missing fonts fall back to the
// built-in bitmap face rather than failing the watermark.
var fontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
}

// Watermark overlays the brand banner, coordinates and capture time onto a
// photo and re-encodes it as JPEG at quality 85, corrected to upright
// orientation. On any processing failure the input bytes are returned
// unchanged so the surrounding upload never loses the photo.
func Watermark(data []byte, lat, lon string) []byte {
	return watermarkAt(data, lat, lon, time.Now())
}

func watermarkAt(data []byte, lat, lon string, now time.Time) []byte {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		log.Printf("watermark: decode failed, keeping original: %v", err)
		return data
	}
	img = applyOrientation(img, readOrientation(data))

	dc := gg.NewContextForImage(img)
	width := float64(dc.Width())
	height := float64(dc.Height())

	// Text scales with resolution: 4% of image width.
	fontSize := width * 0.04
	dc.SetFontFace(loadFace(fontSize))

	// Top banner: brand name in orange on a translucent strip.
	dc.SetRGBA255(0, 0, 0, 160)
	dc.DrawRectangle(0, 0, width, fontSize*2)
	dc.Fill()
	dc.SetRGB255(255, 165, 0)
	dc.DrawString(watermarkBrand, 20, fontSize*1.3)

	// Bottom banner: coordinates above the capture time.
	bottomBox := fontSize * 2.5
	dc.SetRGBA255(0, 0, 0, 160)
	dc.DrawRectangle(0, height-bottomBox, width, bottomBox)
	dc.Fill()
	dc.SetRGB255(255, 255, 255)
	dc.DrawString(lat+", "+lon, 20, height-bottomBox+fontSize)
	dc.SetRGB255(200, 200, 200)
	dc.DrawString(now.Format("2006-01-02 15:04"), 20, height-fontSize*0.4)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dc.Image(), imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		log.Printf("watermark: encode failed, keeping original: %v", err)
		return data
	}
	return buf.Bytes()
}

// readOrientation returns the EXIF orientation value, defaulting to 1
// (upright) when the image carries none.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return orientation
}

// applyOrientation undoes the capture device rotation so the output is
// always upright. The eight EXIF orientation cases map onto flips and
// rotations; unknown values pass through untouched.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// loadFace resolves a typeface at the given size, trying the preferred
// truetype fonts before settling for the built-in bitmap face.
func loadFace(points float64) font.Face {
	for _, path := range fontPaths {
		if face, err := gg.LoadFontFace(path, points); err == nil {
			return face
		}
	}
	return basicfont.Face7x13
}
