package utils

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"
)

func TestDecimalDegrees(t *testing.T) {
	tests := []struct {
		name     string
		deg      float64
		min      float64
		sec      float64
		expected float64
	}{
		{"whole degrees only", 12, 0, 0, 12.0},
		{"half degree from minutes", 12, 30, 0, 12.5},
		{"seconds contribute", 12, 30, 36, 12.51},
		{"zero value", 0, 0, 0, 0},
		{"minutes and seconds only", 0, 45, 0, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decimalDegrees(tt.deg, tt.min, tt.sec)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("decimalDegrees(%v, %v, %v) = %v, expected %v",
					tt.deg, tt.min, tt.sec, got, tt.expected)
			}
		})
	}
}

func TestSignedDegrees(t *testing.T) {
	tests := []struct {
		name        string
		deg         float64
		ref         string
		positiveRef string
		expected    float64
	}{
		{"north stays positive", 12.51, "N", "N", 12.51},
		{"south negates", 12.51, "S", "N", -12.51},
		{"east stays positive", 77.6, "E", "E", 77.6},
		{"west negates", 77.6, "W", "E", -77.6},
		// anything other than the positive reference negates
		{"unknown latitude ref negates", 10, "X", "N", -10},
		{"unknown longitude ref negates", 10, "?", "E", -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := signedDegrees(tt.deg, tt.ref, tt.positiveRef)
			if got != tt.expected {
				t.Errorf("signedDegrees(%v, %q, %q) = %v, expected %v",
					tt.deg, tt.ref, tt.positiveRef, got, tt.expected)
			}
		})
	}
}

// plainJPEG encodes a small image with no EXIF metadata.
func plainJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// gpsJPEG wraps plainJPEG in an APP1 segment whose TIFF structure carries
// a GPS IFD: hemisphere refs plus whole-number degree/minute/second
// rationals. Laid out by hand since no library in the tree writes EXIF.
func gpsJPEG(t *testing.T, latRef string, lat [3]uint32, lonRef string, lon [3]uint32) []byte {
	t.Helper()

	tiff := &bytes.Buffer{}
	le := binary.LittleEndian
	tiff.WriteString("II")
	binary.Write(tiff, le, uint16(42))
	binary.Write(tiff, le, uint32(8)) // IFD0 offset

	// IFD0: one entry, the GPS sub-IFD pointer
	binary.Write(tiff, le, uint16(1))
	binary.Write(tiff, le, uint16(0x8825)) // GPSInfoIFDPointer
	binary.Write(tiff, le, uint16(4))      // LONG
	binary.Write(tiff, le, uint32(1))
	binary.Write(tiff, le, uint32(26))
	binary.Write(tiff, le, uint32(0))

	// GPS IFD at 26: refs inline, rationals in the data area at 80 / 104
	binary.Write(tiff, le, uint16(4))
	writeRef := func(tag uint16, ref string) {
		binary.Write(tiff, le, tag)
		binary.Write(tiff, le, uint16(2)) // ASCII
		binary.Write(tiff, le, uint32(2))
		tiff.Write([]byte{ref[0], 0, 0, 0})
	}
	writeRats := func(tag uint16, offset uint32) {
		binary.Write(tiff, le, tag)
		binary.Write(tiff, le, uint16(5)) // RATIONAL
		binary.Write(tiff, le, uint32(3))
		binary.Write(tiff, le, offset)
	}
	writeRef(0x0001, latRef)  // GPSLatitudeRef
	writeRats(0x0002, 80)     // GPSLatitude
	writeRef(0x0003, lonRef)  // GPSLongitudeRef
	writeRats(0x0004, 104)    // GPSLongitude
	binary.Write(tiff, le, uint32(0))
	for _, v := range lat {
		binary.Write(tiff, le, v)
		binary.Write(tiff, le, uint32(1))
	}
	for _, v := range lon {
		binary.Write(tiff, le, v)
		binary.Write(tiff, le, uint32(1))
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	app1 := []byte{0xFF, 0xE1, byte((len(payload) + 2) >> 8), byte(len(payload) + 2)}
	app1 = append(app1, payload...)

	base := plainJPEG(t, 64, 48)
	out := make([]byte, 0, len(base)+len(app1))
	out = append(out, base[:2]...)
	out = append(out, app1...)
	out = append(out, base[2:]...)
	return out
}

func TestExtractGPS(t *testing.T) {
	tests := []struct {
		name    string
		latRef  string
		lat     [3]uint32
		lonRef  string
		lon     [3]uint32
		wantLat string
		wantLon string
	}{
		{"north east", "N", [3]uint32{12, 30, 36}, "E", [3]uint32{77, 36, 0}, "12.510000", "77.600000"},
		{"south west", "S", [3]uint32{33, 52, 12}, "W", [3]uint32{151, 12, 0}, "-33.870000", "-151.200000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := gpsJPEG(t, tt.latRef, tt.lat, tt.lonRef, tt.lon)
			lat, lon, err := ExtractGPS(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("ExtractGPS: %v", err)
			}
			if lat != tt.wantLat || lon != tt.wantLon {
				t.Errorf("got %s, %s, expected %s, %s", lat, lon, tt.wantLat, tt.wantLon)
			}
		})
	}
}

func TestExtractGPSWithoutMetadata(t *testing.T) {
	data := plainJPEG(t, 32, 32)
	if _, _, err := ExtractGPS(bytes.NewReader(data)); err == nil {
		t.Error("expected an error for a JPEG without EXIF metadata")
	}
}

func TestExtractGPSMalformedInput(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("definitely not an image"),
		{0xFF, 0xD8, 0xFF}, // truncated JPEG marker
	}
	for _, data := range inputs {
		if _, _, err := ExtractGPS(bytes.NewReader(data)); err == nil {
			t.Errorf("expected an error for input %q", data)
		}
	}
}
