package intake

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/claimdesk/internal/model"
)

var (
	// ErrEmptyFile is returned for zero-length uploads
	ErrEmptyFile = errors.New("file is empty")
	// ErrUnsupportedType is returned for extensions intake cannot parse
	ErrUnsupportedType = errors.New("unsupported file type")
)

// image extensions and the format name reported for them
var imageFormats = map[string]string{
	".png":  "PNG",
	".jpg":  "JPEG",
	".jpeg": "JPEG",
	".gif":  "GIF",
	".webp": "WEBP",
	".bmp":  "BMP",
}

// Parse turns raw upload bytes into an UploadedFile. Supported inputs are
// plain text (form feeds split pages), HTML, images, and JSON documents that
// were already parsed into the UploadedFile shape (for example PDFs run
// through an external text extractor).
func Parse(name string, data []byte) (model.UploadedFile, error) {
	if len(data) == 0 {
		return model.UploadedFile{}, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}

	ext := strings.ToLower(filepath.Ext(name))
	var (
		f   model.UploadedFile
		err error
	)
	switch {
	case ext == ".txt" || ext == ".text" || ext == ".md":
		f, err = parseText(name, data)
	case ext == ".html" || ext == ".htm":
		f, err = parseHTML(name, data)
	case ext == ".json":
		f, err = parseJSON(name, data)
	case imageFormats[ext] != "":
		f, err = parseImage(name, ext, data)
	default:
		return model.UploadedFile{}, fmt.Errorf("%s: %w: %q (use text, html, json or an image)", name, ErrUnsupportedType, ext)
	}
	if err != nil {
		return model.UploadedFile{}, err
	}

	Classify(&f)
	return f, nil
}

// Load reads and parses the file at path.
func Load(path string) (model.UploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("read file: %w", err)
	}
	return Parse(filepath.Base(path), data)
}

// Skipped is a directory entry LoadDir could not use
type Skipped struct {
	Name string
	Err  error
}

// LoadDir parses every supported file in dir, in name order. Hidden files
// are ignored; unsupported or empty files are reported in skipped.
func LoadDir(dir string) (files []model.UploadedFile, skipped []Skipped, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		f, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			skipped = append(skipped, Skipped{Name: e.Name(), Err: err})
			continue
		}
		files = append(files, f)
	}
	return files, skipped, nil
}

// Classify matches f to an expected document slot and records its source.
// Files that fit no slot are marked miscellaneous.
func Classify(f *model.UploadedFile) {
	if f.ExpectedFileName == "" {
		if slot, ok := MatchExpected(*f); ok {
			f.ExpectedFileName = slot.Name
			f.OriginalFilename = f.Filename
		} else {
			f.IsMiscellaneous = true
		}
	}
	if f.DetectedSource == "" {
		f.DetectedSource = model.IdentifySource(f.Key())
	}
}

// MatchExpected finds the expected slot for f: an exact filename match, else
// the slot of the same type whose source the filename names.
func MatchExpected(f model.UploadedFile) (model.ExpectedFile, bool) {
	name := strings.ToLower(f.Filename)
	for _, slot := range model.ExpectedFiles {
		if strings.ToLower(slot.Name) == name {
			return slot, true
		}
	}

	source := model.IdentifySource(name)
	for _, slot := range model.ExpectedFiles {
		if slot.Source != "" && slot.Source == source && slotAccepts(slot, f) {
			return slot, true
		}
	}

	// accident photos are the only image slot
	if f.Type == model.FileTypeImage && strings.Contains(name, "accident") {
		for _, slot := range model.ExpectedFiles {
			if slot.Type == model.FileTypeImage {
				return slot, true
			}
		}
	}
	return model.ExpectedFile{}, false
}

// document slots take any parsed document; image slots only images
func slotAccepts(slot model.ExpectedFile, f model.UploadedFile) bool {
	if slot.Type == model.FileTypeImage {
		return f.Type == model.FileTypeImage
	}
	return f.Type != model.FileTypeImage
}

func parseText(name string, data []byte) (model.UploadedFile, error) {
	if !utf8.Valid(data) {
		return model.UploadedFile{}, fmt.Errorf("%s: text is not valid UTF-8", name)
	}
	var pages []model.Page
	for i, chunk := range strings.Split(string(data), "\f") {
		pages = append(pages, model.Page{PageNumber: i + 1, Text: strings.TrimSpace(chunk)})
	}
	return model.UploadedFile{
		Type:     model.FileTypeText,
		Filename: name,
		Pages:    pages,
		Size:     len(data),
	}, nil
}

func parseJSON(name string, data []byte) (model.UploadedFile, error) {
	var f model.UploadedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.UploadedFile{}, fmt.Errorf("%s: decode document: %w", name, err)
	}
	if f.Filename == "" {
		f.Filename = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if f.Type == "" {
		f.Type = model.FileTypePDF
	}
	if err := Validate(f); err != nil {
		return model.UploadedFile{}, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

func parseImage(name, ext string, data []byte) (model.UploadedFile, error) {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return model.UploadedFile{}, fmt.Errorf("%s: content is %s, not an image", name, mime)
	}
	var buf bytes.Buffer
	buf.WriteString("data:")
	buf.WriteString(mime)
	buf.WriteString(";base64,")
	buf.WriteString(base64.StdEncoding.EncodeToString(data))

	return model.UploadedFile{
		Type:     model.FileTypeImage,
		Filename: name,
		Data:     buf.String(),
		Format:   imageFormats[ext],
		Size:     len(data),
	}, nil
}

// Validate checks the fields the extraction backend relies on.
func Validate(f model.UploadedFile) error {
	if strings.TrimSpace(f.Filename) == "" {
		return errors.New("filename is required")
	}
	switch f.Type {
	case model.FileTypePDF, model.FileTypeText:
		if len(f.Pages) == 0 {
			return fmt.Errorf("%s document has no pages", f.Type)
		}
	case model.FileTypeImage:
		if f.Data == "" {
			return errors.New("image has no data")
		}
	default:
		return fmt.Errorf("unknown file type %q", f.Type)
	}
	return nil
}
