// utils/gps.go
package utils

import (
	"fmt"
	"io"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ExtractGPS reads the GPS block of an image's EXIF metadata and returns
// latitude and longitude as decimal strings with 6 fractional digits.
// Extraction is best effort: any missing tag or malformed value returns an
// error, and callers treat every error as "no coordinates", never as a
// failure of the surrounding upload.
func ExtractGPS(r io.Reader) (string, string, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return "", "", fmt.Errorf("decode exif: %w", err)
	}

	lat, err := readCoordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef, "N")
	if err != nil {
		return "", "", err
	}
	lon, err := readCoordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef, "E")
	if err != nil {
		return "", "", err
	}

	return fmt.Sprintf("%.6f", lat), fmt.Sprintf("%.6f", lon), nil
}

// readCoordinate converts one GPS magnitude/hemisphere tag pair to a
// signed decimal degree value. Anything other than the positive hemisphere
// reference negates the value.
func readCoordinate(x *exif.Exif, valueTag, refTag exif.FieldName, positiveRef string) (float64, error) {
	tag, err := x.Get(valueTag)
	if err != nil {
		return 0, fmt.Errorf("missing %s: %w", valueTag, err)
	}
	deg, err := dmsToDecimal(tag)
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", valueTag, err)
	}

	ref, err := x.Get(refTag)
	if err != nil {
		return 0, fmt.Errorf("missing %s: %w", refTag, err)
	}
	refVal, err := ref.StringVal()
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", refTag, err)
	}
	return signedDegrees(deg, refVal, positiveRef), nil
}

// signedDegrees applies the hemisphere reference: any reference other than
// the positive one ("N" / "E") negates the magnitude.
func signedDegrees(deg float64, ref, positiveRef string) float64 {
	if ref != positiveRef {
		return -deg
	}
	return deg
}

// decimalDegrees converts a degrees/minutes/seconds triple to decimal
// degrees: degrees + minutes/60 + seconds/3600.
func decimalDegrees(deg, min, sec float64) float64 {
	return deg + min/60.0 + sec/3600.0
}

// dmsToDecimal reads a GPS magnitude tag's three rational components.
func dmsToDecimal(tag *tiff.Tag) (float64, error) {
	parts := make([]float64, 3)
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return 0, err
		}
		if den == 0 {
			return 0, fmt.Errorf("zero denominator in component %d", i)
		}
		parts[i] = float64(num) / float64(den)
	}
	return decimalDegrees(parts[0], parts[1], parts[2]), nil
}
