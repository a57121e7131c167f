package media

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// createTestImage creates a gradient test image and saves it to the given path
func createTestImage(t *testing.T, path string, width, height int, format string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 128,
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image file: %v", err)
	}
	defer f.Close()

	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(f, img)
	case "bmp":
		err = bmp.Encode(f, img)
	case "tiff":
		err = tiff.Encode(f, img, nil)
	default:
		t.Fatalf("Unsupported test image format: %s", format)
	}

	if err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

func TestGetImageDimensions(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name   string
		width  int
		height int
		format string
	}{
		{name: "Small JPEG", width: 100, height: 100, format: "jpeg"},
		{name: "Small PNG", width: 200, height: 150, format: "png"},
		{name: "Wide BMP", width: 192, height: 108, format: "bmp"},
		{name: "Tall TIFF", width: 108, height: 192, format: "tiff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(tmpDir, tt.name+"."+tt.format)
			createTestImage(t, filename, tt.width, tt.height, tt.format)

			dims, err := GetImageDimensions(filename)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if dims.Width != tt.width {
				t.Errorf("Width = %d, want %d", dims.Width, tt.width)
			}
			if dims.Height != tt.height {
				t.Errorf("Height = %d, want %d", dims.Height, tt.height)
			}
		})
	}
}

func TestGetImageDimensionsErrors(t *testing.T) {
	notImage := filepath.Join(t.TempDir(), "not-image.txt")
	if err := os.WriteFile(notImage, []byte("This is not an image"), 0o644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	for _, path := range []string{"/nonexistent/path/to/image.jpg", notImage} {
		if _, err := GetImageDimensions(path); err == nil {
			t.Errorf("GetImageDimensions(%s): expected error but got none", path)
		}
	}
}

func TestLoadThumbnail(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name          string
		width, height int
		format        string
		boxW, boxH    int
		wantW, wantH  int
		wantFormat    Format
	}{
		{"Wide PNG", 400, 200, "png", 100, 100, 100, 50, FormatPNG},
		{"Small BMP is not enlarged", 50, 40, "bmp", 100, 100, 50, 40, FormatBMP},
		{"Square TIFF in wide box", 300, 300, "tiff", 64, 32, 32, 32, FormatTIFF},
		{"Zero box keeps full size", 120, 90, "png", 0, 0, 120, 90, FormatPNG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(tmpDir, tt.name+"."+tt.format)
			createTestImage(t, filename, tt.width, tt.height, tt.format)

			thumb, err := LoadThumbnail(context.Background(), filename, tt.boxW, tt.boxH, Lanczos)
			if err != nil {
				t.Fatalf("LoadThumbnail failed: %v", err)
			}

			b := thumb.Image.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("thumbnail is %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
			if thumb.Source.Width != tt.width || thumb.Source.Height != tt.height {
				t.Errorf("Source = %+v, want %dx%d", thumb.Source, tt.width, tt.height)
			}
			if thumb.Format != tt.wantFormat {
				t.Errorf("Format = %s, want %s", thumb.Format, tt.wantFormat)
			}
		})
	}
}

func TestLoadThumbnailCancelled(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test.png")
	createTestImage(t, filename, 64, 64, "png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LoadThumbnail(ctx, filename, 32, 32, Linear); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLoadThumbnailErrors(t *testing.T) {
	tmpDir := t.TempDir()

	garbage := filepath.Join(tmpDir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("\x89PNG but not really"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadThumbnail(context.Background(), garbage, 32, 32, Linear); err == nil {
		t.Error("expected error for corrupt PNG")
	}

	if _, err := LoadThumbnail(context.Background(), filepath.Join(tmpDir, "missing.png"), 32, 32, Linear); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDetectFormatBytes(t *testing.T) {
	tests := []struct {
		header string
		want   Format
	}{
		{"\xff\xd8\xff\xe0\x00\x10JFIF", FormatJPEG},
		{"\x89PNG\r\n\x1a\n", FormatPNG},
		{"GIF89a", FormatGIF},
		{"RIFF\x00\x00\x00\x00WEBPVP8 ", FormatWebP},
		{"BM\x00\x00", FormatBMP},
		{"II*\x00\x08\x00\x00\x00", FormatTIFF},
		{"MM\x00*\x00\x00\x00\x08", FormatTIFF},
		{"\x00\x00\x00\x18ftypheic", FormatHEIF},
		{"\x00\x00\x00\x1cftypavif", FormatAVIF},
		{"\x00\x00\x00\x18ftypisom", FormatUnknown},
		{"\xff\x0a\xfa", FormatJXL},
		{"\x00\x00\x00\x0cJXL \r\n\x87\n", FormatJXL},
		{"IIRO\x08\x00\x00\x00", FormatRaw},
		{"IIU\x00\x08\x00\x00\x00", FormatRaw},
		{"FUJIFILMCCD-RAW 0201FF383501", FormatRaw},
		{"hello", FormatUnknown},
		{"", FormatUnknown},
	}

	for _, tt := range tests {
		if got := DetectFormatBytes([]byte(tt.header)); got != tt.want {
			t.Errorf("DetectFormatBytes(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

func TestDetectFormatRawByExtension(t *testing.T) {
	dir := t.TempDir()
	header := []byte("II*\x00\x08\x00\x00\x00\x00\x00\x00\x00\x00\x00")

	tests := []struct {
		name string
		want Format
	}{
		{"scan.tif", FormatTIFF},
		{"IMG_0001.CR2", FormatRaw},
		{"DSC_0001.nef", FormatRaw},
		{"photo.dng", FormatRaw},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.name)
		if err := os.WriteFile(path, header, 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := DetectFormat(path)
		if err != nil {
			t.Fatalf("DetectFormat(%s) failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("DetectFormat(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}

	if !IsRaw("a/b/IMG_0001.CR2") || IsRaw("a.tif") {
		t.Error("IsRaw should go by extension")
	}
	if got := MimeType("x.nef"); got != "image/x-nikon-nef" {
		t.Errorf("MimeType(x.nef) = %q", got)
	}
	if !IsImage("x.raf") {
		t.Error("RAW files should count as images")
	}
}

func TestDetectFormatIgnoresExtension(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "really-a-png.jpg")
	createTestImage(t, filename, 10, 10, "png")

	got, err := DetectFormat(filename)
	if err != nil {
		t.Fatalf("DetectFormat failed: %v", err)
	}
	if got != FormatPNG {
		t.Errorf("DetectFormat = %s, want png", got)
	}
	if !IsJPEG(filename) {
		t.Error("IsJPEG should go by extension")
	}
}

func TestParseInterpolation(t *testing.T) {
	tests := map[string]Interpolation{
		"nearest": Nearest,
		"Linear":  Linear,
		"":        Linear,
		"lanczos": Lanczos,
		"high":    Lanczos,
	}
	for in, want := range tests {
		got, err := ParseInterpolation(in)
		if err != nil {
			t.Errorf("ParseInterpolation(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseInterpolation(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseInterpolation("cubic-ish"); err == nil {
		t.Error("expected error for unknown interpolation")
	}
}

func TestExtensions(t *testing.T) {
	tests := []struct {
		path  string
		image bool
		jpeg  bool
		mime  string
	}{
		{"a/b/photo.JPG", true, true, "image/jpeg"},
		{"photo.jpeg", true, true, "image/jpeg"},
		{"scan.tif", true, false, "image/tiff"},
		{"phone.HEIC", true, false, "image/heic"},
		{"notes.txt", false, false, "application/octet-stream"},
		{"noext", false, false, "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := IsImage(tt.path); got != tt.image {
			t.Errorf("IsImage(%s) = %v, want %v", tt.path, got, tt.image)
		}
		if got := IsJPEG(tt.path); got != tt.jpeg {
			t.Errorf("IsJPEG(%s) = %v, want %v", tt.path, got, tt.jpeg)
		}
		if got := MimeType(tt.path); got != tt.mime {
			t.Errorf("MimeType(%s) = %s, want %s", tt.path, got, tt.mime)
		}
	}
}

func TestFileSizeString(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{812, "812 B"},
		{1_400_000, "1.4 MB"},
		{-1, "?"},
	}
	for _, tt := range tests {
		if got := FileSizeString(tt.n); got != tt.want {
			t.Errorf("FileSizeString(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestPixelSizeString(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{640, 480, "640 x 480"},
		{4000, 3000, "4000 x 3000 (12.0 MP)"},
		{0, 10, ""},
	}
	for _, tt := range tests {
		if got := PixelSizeString(tt.w, tt.h); got != tt.want {
			t.Errorf("PixelSizeString(%d, %d) = %q, want %q", tt.w, tt.h, got, tt.want)
		}
	}
}
