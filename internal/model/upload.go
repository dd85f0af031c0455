package model

import "strings"

// File types accepted by the extraction backend
const (
	FileTypePDF   = "pdf"
	FileTypeImage = "image"
	FileTypeText  = "text"
)

// PageImage is an image embedded in a document page
type PageImage struct {
	Index int    `json:"index"`
	Data  string `json:"data"` // data URL
	Ext   string `json:"ext,omitempty"`
}

// Page is one page of an uploaded document
type Page struct {
	PageNumber int         `json:"page_number"`
	Text       string      `json:"text"`
	Images     []PageImage `json:"images,omitempty"`
}

// UploadedFile is a parsed document as sent to the extraction backend
type UploadedFile struct {
	Type             string `json:"type"`                       // pdf, image, text
	Filename         string `json:"filename"`                   // Name as uploaded
	ExpectedFileName string `json:"expectedFileName,omitempty"` // Slot it was matched to
	OriginalFilename string `json:"originalFilename,omitempty"`
	DetectedSource   string `json:"detected_source,omitempty"` // fnol, claimant, police, ...
	Pages            []Page `json:"pages,omitempty"`
	Data             string `json:"data,omitempty"`   // data URL for images
	Format           string `json:"format,omitempty"` // PNG, JPEG, ...
	Size             int    `json:"size,omitempty"`
	IsMiscellaneous  bool   `json:"is_miscellaneous,omitempty"`
}

// Key is the identifier the file is stored under in a session.
func (f UploadedFile) Key() string {
	if f.ExpectedFileName != "" {
		return f.ExpectedFileName
	}
	return f.Filename
}

// Text concatenates the text of all pages.
func (f UploadedFile) Text() string {
	parts := make([]string, 0, len(f.Pages))
	for _, p := range f.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n")
}

// PayloadBytes is the size of the document content: page text, page images
// and image data.
func (f UploadedFile) PayloadBytes() int64 {
	n := int64(len(f.Data))
	for _, p := range f.Pages {
		n += int64(len(p.Text))
		for _, img := range p.Images {
			n += int64(len(img.Data))
		}
	}
	return n
}

// ExpectedFile is a document slot the adjuster is asked to fill
type ExpectedFile struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Source      string `json:"source,omitempty"`
}

// ExpectedFiles lists the document slots of a claim file.
var ExpectedFiles = []ExpectedFile{
	{Name: "accident_images.png", Type: FileTypeImage, DisplayName: "Accident Images"},
	{Name: "fnol.pdf", Type: FileTypePDF, DisplayName: "First Notice of Loss", Source: "fnol"},
	{Name: "claimant_statement.pdf", Type: FileTypePDF, DisplayName: "Claimant Statement", Source: "claimant"},
	{Name: "other_driver_statement.pdf", Type: FileTypePDF, DisplayName: "Other Driver Statement", Source: "other_driver"},
	{Name: "police_report.pdf", Type: FileTypePDF, DisplayName: "Police Report", Source: "police"},
	{Name: "repair_estimate.pdf", Type: FileTypePDF, DisplayName: "Repair Estimate", Source: "repair_estimate"},
	{Name: "state_negligence_rules.pdf", Type: FileTypePDF, DisplayName: "State Negligence Rules"},
	{Name: "policy_document.pdf", Type: FileTypePDF, DisplayName: "Policy Document", Source: "policy"},
}

// Document sources recognised by IdentifySource
const (
	SourceFNOL           = "fnol"
	SourceClaimant       = "claimant"
	SourceOtherDriver    = "other_driver"
	SourcePolice         = "police"
	SourceRepairEstimate = "repair_estimate"
	SourcePolicy         = "policy"
	SourceUnknown        = "unknown"
)

// IdentifySource maps a document filename to the party or record it came from.
func IdentifySource(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "fnol"):
		return SourceFNOL
	case strings.Contains(name, "claimant"):
		return SourceClaimant
	case strings.Contains(name, "other_driver"), strings.Contains(name, "other driver"):
		return SourceOtherDriver
	case strings.Contains(name, "police"):
		return SourcePolice
	case strings.Contains(name, "repair"), strings.Contains(name, "estimate"):
		return SourceRepairEstimate
	case strings.Contains(name, "policy"):
		return SourcePolicy
	default:
		return SourceUnknown
	}
}
