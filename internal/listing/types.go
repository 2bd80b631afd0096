package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"listory/internal/catalog"
)

// Product holds the facts a seller provides. Only Name is required.
type Product struct {
	Name         string   `json:"name" yaml:"name"`
	Brand        string   `json:"brand,omitempty" yaml:"brand"`
	Category     string   `json:"category,omitempty" yaml:"category"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	Features     []string `json:"features,omitempty" yaml:"features"`
	SeedKeywords []string `json:"keywords,omitempty" yaml:"keywords"`
	Price        float64  `json:"price,omitempty" yaml:"price"`
	Currency     string   `json:"currency,omitempty" yaml:"currency"`
	SourcePath   string   `json:"-" yaml:"-"`
}

// Selectors are the caller's choices that, together with a product, define one generation.
type Selectors struct {
	Marketplace string `json:"marketplace"`
	Platform    string `json:"platform"`
	BrandTone   string `json:"brand_tone"`
	Occasion    string `json:"occasion"`
}

// GenerationRequest is everything one generation needs, resolved against the
// catalog. It is built once and never mutated afterwards.
type GenerationRequest struct {
	RequestID   string
	Product     Product
	Marketplace catalog.Marketplace
	Platform    catalog.Platform
	Tone        catalog.BrandTone
	Occasion    catalog.Occasion
	Locale      catalog.Locale
	Reference   catalog.Reference
	Language    string
	Currency    string
}

// Fingerprint identifies requests that must produce the same listing.
// The request id is deliberately excluded.
func (r GenerationRequest) Fingerprint() string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	p := r.Product
	write(p.Name, p.Brand, p.Category, p.Description, p.Currency, strconv.FormatFloat(p.Price, 'f', -1, 64))
	write(p.Features...)
	write(p.SeedKeywords...)
	write(r.Marketplace.Code, r.Language, r.Tone.Name, r.Occasion.Key, r.Platform.Name)
	return hex.EncodeToString(h.Sum(nil))
}

// BrandName returns the brand, or the product name when no brand was given.
func (r GenerationRequest) BrandName() string {
	if b := strings.TrimSpace(r.Product.Brand); b != "" {
		return b
	}
	return r.Product.Name
}

// CategoryName returns the category, or the product name when none was given.
func (r GenerationRequest) CategoryName() string {
	if c := strings.TrimSpace(r.Product.Category); c != "" {
		return c
	}
	return r.Product.Name
}

type Keywords struct {
	Short   []string `json:"short"`
	Long    []string `json:"long"`
	Backend string   `json:"backend"`
}

type RichSection struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Keywords         []string `json:"keywords,omitempty"`
	ImageDescription string   `json:"image_description"`
	SEONote          string   `json:"seo_note,omitempty"`
}

// ContentPlan is the structured listing content, first as the model returned
// it and later as the validator normalized it.
type ContentPlan struct {
	Title        string        `json:"title"`
	Bullets      []string      `json:"bullets"`
	Description  string        `json:"description"`
	Keywords     Keywords      `json:"keywords"`
	RichSections []RichSection `json:"rich_sections"`
}

// Section returns the rich section with key, if present.
func (p ContentPlan) Section(key string) (RichSection, bool) {
	for _, s := range p.RichSections {
		if s.Key == key {
			return s, true
		}
	}
	return RichSection{}, false
}

// HasMandatory reports whether any of title, bullets or description is present.
func (p ContentPlan) HasMandatory() bool {
	if strings.TrimSpace(p.Title) != "" || strings.TrimSpace(p.Description) != "" {
		return true
	}
	for _, b := range p.Bullets {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

type FieldStatus string

const (
	StatusAIAuthored          FieldStatus = "ai-authored"
	StatusFallbackSynthesized FieldStatus = "fallback-synthesized"
	StatusOutOfBand           FieldStatus = "out-of-band"
)

type FieldReport struct {
	Field  string      `json:"field"`
	Status FieldStatus `json:"status"`
	Note   string      `json:"note,omitempty"`
}

type QualityScore struct {
	Overall    float64 `json:"overall"`
	Emotion    float64 `json:"emotion"`
	Conversion float64 `json:"conversion"`
	Trust      float64 `json:"trust"`
}

// ValidationReport records, per field path, how the final value was obtained.
type ValidationReport struct {
	Fields             []FieldReport `json:"fields"`
	ExtractionStep     string        `json:"extraction_step"`
	Repairs            []string      `json:"repairs,omitempty"`
	Attempts           int           `json:"attempts"`
	BackendUtilization float64       `json:"backend_utilization"`
	BackendEfficiency  string        `json:"backend_efficiency"`
	Notes              []string      `json:"notes,omitempty"`
	Quality            QualityScore  `json:"quality"`
	Passed             bool          `json:"passed"`
}

// Set records the status of field, replacing an earlier entry for the same path.
func (r *ValidationReport) Set(field string, status FieldStatus, note string) {
	for i := range r.Fields {
		if r.Fields[i].Field == field {
			r.Fields[i].Status = status
			r.Fields[i].Note = note
			return
		}
	}
	r.Fields = append(r.Fields, FieldReport{Field: field, Status: status, Note: note})
}

// Status returns the recorded status of field.
func (r ValidationReport) Status(field string) (FieldStatus, bool) {
	for _, f := range r.Fields {
		if f.Field == field {
			return f.Status, true
		}
	}
	return "", false
}

// WithStatus lists the field paths recorded with status, sorted.
func (r ValidationReport) WithStatus(status FieldStatus) []string {
	out := []string{}
	for _, f := range r.Fields {
		if f.Status == status {
			out = append(out, f.Field)
		}
	}
	sort.Strings(out)
	return out
}

// ListingContent is the final artifact handed to storage.
type ListingContent struct {
	RequestID   string      `json:"request_id"`
	Fingerprint string      `json:"fingerprint"`
	Marketplace string      `json:"marketplace"`
	Language    string      `json:"language"`
	Currency    string      `json:"currency"`
	Platform    string      `json:"platform"`
	BrandTone   string      `json:"brand_tone"`
	Occasion    string      `json:"occasion,omitempty"`
	ProductName string      `json:"product_name"`
	Brand       string      `json:"brand"`
	Plan        ContentPlan `json:"content"`
	Markdown    string      `json:"markdown"`
	HTML        string      `json:"html"`
	GeneratedAt time.Time   `json:"generated_at"`
}
