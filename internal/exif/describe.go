package exif

import (
	"bytes"
	"sort"
	"strings"

	goexif "github.com/rwcarlsen/goexif/exif"
	exiftiff "github.com/rwcarlsen/goexif/tiff"

	"github.com/gobbledegook/creevey/internal/logging"
)

// Field is one human-readable EXIF tag.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// fieldCollector gathers every tag goexif walks over.
type fieldCollector struct {
	fields []Field
}

func (c *fieldCollector) Walk(name goexif.FieldName, tag *exiftiff.Tag) error {
	val := tag.String()
	if tag.Type == exiftiff.DTAscii || tag.Type == exiftiff.DTUndefined {
		if s, err := tag.StringVal(); err == nil {
			val = s
		}
	}
	val = strings.TrimSpace(strings.Trim(val, "\""))
	if val == "" {
		return nil
	}
	// Binary blobs such as MakerNote are noise in a tag listing.
	if len(val) > 256 {
		return nil
	}
	c.fields = append(c.fields, Field{Name: string(name), Value: val})
	return nil
}

// Describe lists the EXIF tags in raw sorted by name. It is best effort:
// undecodable metadata yields an empty list.
func Describe(raw []byte) (fields []Field) {
	defer func() {
		if r := recover(); r != nil {
			logging.Debug("exif: describe recovered from %v", r)
			fields = nil
		}
	}()

	x, err := goexif.Decode(bytes.NewReader(raw))
	if x == nil {
		logging.Debug("exif: describe: %v", err)
		return nil
	}
	if err != nil && goexif.IsCriticalError(err) {
		logging.Debug("exif: describe: %v", err)
		return nil
	}

	c := &fieldCollector{}
	if err := x.Walk(c); err != nil {
		return nil
	}
	sort.Slice(c.fields, func(i, j int) bool {
		return c.fields[i].Name < c.fields[j].Name
	})
	return c.fields
}
