// Package assemble renders a validated content plan into the final listing.
// It holds no business rules and never talks to a model.
package assemble

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"listory/internal/listing"
)

type Assembler struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	Now    func() time.Time
}

func New() *Assembler {
	return &Assembler{
		md:     goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
		policy: bluemonday.UGCPolicy(),
		Now:    time.Now,
	}
}

// Assemble builds the ListingContent for req from an already validated plan.
func (a *Assembler) Assemble(req listing.GenerationRequest, plan listing.ContentPlan) (listing.ListingContent, error) {
	markdown := RenderMarkdown(req, plan)
	html, err := a.RenderHTML(markdown)
	if err != nil {
		return listing.ListingContent{}, err
	}
	occasion := ""
	if !req.Occasion.IsNone() {
		occasion = req.Occasion.Key
	}
	return listing.ListingContent{
		RequestID:   req.RequestID,
		Fingerprint: req.Fingerprint(),
		Marketplace: req.Marketplace.Code,
		Language:    req.Language,
		Currency:    req.Currency,
		Platform:    req.Platform.Name,
		BrandTone:   req.Tone.Name,
		Occasion:    occasion,
		ProductName: req.Product.Name,
		Brand:       req.BrandName(),
		Plan:        plan,
		Markdown:    markdown,
		HTML:        html,
		GeneratedAt: a.Now().UTC(),
	}, nil
}

// RenderMarkdown lays the plan out as one document with a "##" heading per field.
func RenderMarkdown(req listing.GenerationRequest, plan listing.ContentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Listing (%s, %s)\n\n", strings.TrimSpace(req.BrandName()+" "+nameUnlessBrand(req)), strings.ToUpper(req.Marketplace.Code), req.Language)

	b.WriteString("## Title\n")
	b.WriteString(block(plan.Title))
	b.WriteString("\n\n## Bullet Points\n")
	for i, bp := range plan.Bullets {
		fmt.Fprintf(&b, "**Point %d**\n", i+1)
		b.WriteString(block(bp))
		b.WriteString("\n\n")
	}

	b.WriteString("## Product Description\n")
	b.WriteString(block(plan.Description))
	b.WriteString("\n\n## Keywords\n")
	b.WriteString("### Short Tail\n")
	writeList(&b, plan.Keywords.Short)
	b.WriteString("\n### Long Tail\n")
	writeList(&b, plan.Keywords.Long)

	b.WriteString("\n## Search Terms\n")
	b.WriteString(block(plan.Keywords.Backend))
	b.WriteString("\n\n## Rich Content\n")
	for i, s := range plan.RichSections {
		fmt.Fprintf(&b, "\n### %d. %s\n", i+1, inline(s.Title))
		b.WriteString(block(s.Content))
		b.WriteString("\n\n")
		if len(s.Keywords) > 0 {
			fmt.Fprintf(&b, "**Keywords:** %s\n\n", inline(strings.Join(s.Keywords, ", ")))
		}
		fmt.Fprintf(&b, "**Image Brief:** %s\n\n", inline(s.ImageDescription))
		if s.SEONote != "" {
			fmt.Fprintf(&b, "**SEO:** %s\n", inline(s.SEONote))
		}
	}
	return b.String()
}

// block escapes lines of model text that Markdown would read as a heading,
// so the text cannot open a section of its own.
func block(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "#") || isSetextUnderline(trimmed) {
			lines[i] = line[:len(line)-len(trimmed)] + "\\" + trimmed
		}
	}
	return strings.Join(lines, "\n")
}

// isSetextUnderline reports a line of only "=" or only "-" characters.
func isSetextUnderline(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	return strings.Trim(line, "=") == "" || strings.Trim(line, "-") == ""
}

// inline keeps model text on a single line.
func inline(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func nameUnlessBrand(req listing.GenerationRequest) string {
	if req.BrandName() == req.Product.Name {
		return ""
	}
	return req.Product.Name
}

func writeList(b *strings.Builder, items []string) {
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(inline(it))
		b.WriteString("\n")
	}
}

// RenderHTML converts markdown to sanitized HTML.
func (a *Assembler) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := a.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("渲染 HTML 失败：%w", err)
	}
	return a.policy.Sanitize(buf.String()), nil
}

// EncodeJSON is the storage representation of a listing.
func EncodeJSON(content listing.ListingContent) ([]byte, error) {
	raw, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("编码 JSON 失败：%w", err)
	}
	return append(raw, '\n'), nil
}
