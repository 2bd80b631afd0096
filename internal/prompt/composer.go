package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"listory/internal/listing"
)

// FormatHint selects how strongly the prompt insists on machine readable output.
type FormatHint string

const (
	HintJSONObject  FormatHint = "json_object"
	HintStrictJSON  FormatHint = "strict_json"
	HintMinimalJSON FormatHint = "minimal_json"
)

// HintForAttempt varies the output format instruction between attempts.
func HintForAttempt(attempt int) FormatHint {
	switch {
	case attempt <= 1:
		return HintJSONObject
	case attempt == 2:
		return HintStrictJSON
	default:
		return HintMinimalJSON
	}
}

const (
	FragmentRole     = "role"
	FragmentFacts    = "facts"
	FragmentLocale   = "locale"
	FragmentTone     = "tone"
	FragmentOccasion = "occasion"
	FragmentSchema   = "schema"
	FragmentExample  = "example"
	FragmentFormat   = "format"
)

// ExpectedKeys are the top level keys the model is asked to return.
var ExpectedKeys = []string{"title", "bullets", "description", "keywords", "richSections"}

type Fragment struct {
	Name string
	Text string
}

type Bundle struct {
	System      string
	Fragments   []Fragment
	Text        string
	Hint        FormatHint
	SectionKeys []string
}

// Fragment returns the text of the named fragment.
func (b Bundle) Fragment(name string) (string, bool) {
	for _, f := range b.Fragments {
		if f.Name == name {
			return f.Text, true
		}
	}
	return "", false
}

const systemPrompt = "You are a senior e-commerce copywriter. You reply with exactly one JSON object and nothing else: no Markdown, no code fences, no commentary."

// Compose renders the prompt for req. The output depends only on its inputs.
func Compose(req listing.GenerationRequest, hint FormatHint) Bundle {
	frags := []Fragment{
		{Name: FragmentRole, Text: roleFragment(req)},
		{Name: FragmentFacts, Text: factsFragment(req)},
		{Name: FragmentLocale, Text: localeFragment(req)},
		{Name: FragmentTone, Text: toneFragment(req)},
		{Name: FragmentOccasion, Text: occasionFragment(req)},
		{Name: FragmentSchema, Text: schemaFragment(req)},
		{Name: FragmentExample, Text: exampleFragment(req)},
	}
	if hint != "" && hint != HintJSONObject {
		frags = append(frags, Fragment{Name: FragmentFormat, Text: formatFragment(hint)})
	}
	parts := make([]string, 0, len(frags))
	for _, f := range frags {
		parts = append(parts, f.Text)
	}
	return Bundle{
		System:      systemPrompt,
		Fragments:   frags,
		Text:        strings.Join(parts, "\n\n"),
		Hint:        hint,
		SectionKeys: append([]string(nil), req.Platform.SectionKeys...),
	}
}

func roleFragment(req listing.GenerationRequest) string {
	return fmt.Sprintf(
		"ROLE\nYou are a native %s copywriter who specializes in %s listings for the %s marketplace (%s). Write a complete, conversion focused listing for the product below and return it as one JSON object.",
		req.Locale.Name, titleCase(req.Platform.Name), req.Marketplace.Name, strings.ToUpper(req.Marketplace.Code),
	)
}

func factsFragment(req listing.GenerationRequest) string {
	p := req.Product
	var b strings.Builder
	b.WriteString("PRODUCT FACTS (do not invent specifications that are not listed here)\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Brand: %s\n", req.BrandName())
	if p.Category != "" {
		fmt.Fprintf(&b, "- Category: %s\n", p.Category)
	}
	if p.Price > 0 {
		fmt.Fprintf(&b, "- Price: %.2f %s\n", p.Price, req.Currency)
	} else {
		fmt.Fprintf(&b, "- Currency: %s\n", req.Currency)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "- Seller description: %s\n", p.Description)
	}
	if len(p.Features) > 0 {
		b.WriteString("- Features:\n")
		for _, f := range p.Features {
			fmt.Fprintf(&b, "  * %s\n", f)
		}
	}
	if len(p.SeedKeywords) > 0 {
		fmt.Fprintf(&b, "- Seed keywords: %s\n", strings.Join(p.SeedKeywords, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func localeFragment(req listing.GenerationRequest) string {
	m := req.Marketplace
	var b strings.Builder
	b.WriteString("LANGUAGE AND LOCALE RULES\n")
	fmt.Fprintf(&b, "- Write every customer facing field only in %s (%s). Prices are in %s.\n", req.Locale.Name, req.Language, req.Currency)
	if req.Locale.Tag != req.Reference.Language {
		b.WriteString("- Do NOT use English or words from any other language in customer facing fields.\n")
		if len(m.AvoidWords) > 0 {
			fmt.Fprintf(&b, "- Forbidden words: %s\n", strings.Join(m.AvoidWords, ", "))
		}
	}
	if m.RequiredChars != "" {
		fmt.Fprintf(&b, "- Use the correct native characters wherever spelling requires them: %s\n", strings.Join(strings.Split(m.RequiredChars, ""), " "))
	}
	for _, rule := range m.EnforcementRules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	fmt.Fprintf(&b, "- Exception: every imageDescription is an internal design brief. Write it in English and start it with %q.", req.Reference.ImagePrefix)
	return b.String()
}

func toneFragment(req listing.GenerationRequest) string {
	t := req.Tone
	var b strings.Builder
	fmt.Fprintf(&b, "BRAND TONE: %s\n", strings.ToUpper(t.Name))
	if t.Enforcement != "" {
		fmt.Fprintf(&b, "- %s\n", t.Enforcement)
	}
	if len(t.PowerWords) > 0 {
		fmt.Fprintf(&b, "- Convey these qualities: %s\n", strings.Join(t.PowerWords, ", "))
	}
	if starters := t.Starters(req.Locale.Tag); len(starters) > 0 {
		fmt.Fprintf(&b, "- Suitable title openers: %s\n", strings.Join(starters, ", "))
	}
	fmt.Fprintf(&b, "- Start each bullet with a short label in capitals, e.g. %s\n", strings.Join(bulletLabels(req), " | "))
	if len(req.Marketplace.PowerWords) > 0 {
		fmt.Fprintf(&b, "- Local power words: %s\n", strings.Join(req.Marketplace.PowerWords, ", "))
	}
	if len(req.Marketplace.CulturalKeywords) > 0 {
		fmt.Fprintf(&b, "- Local cultural hooks: %s\n", strings.Join(req.Marketplace.CulturalKeywords, ", "))
	}
	if len(t.AvoidWords) > 0 {
		fmt.Fprintf(&b, "- Never use: %s\n", strings.Join(t.AvoidWords, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func occasionFragment(req listing.GenerationRequest) string {
	if req.Occasion.IsNone() {
		return "OCCASION\n- None. Do not mention holidays, seasons or gifting events."
	}
	lang := req.Locale.Tag
	return fmt.Sprintf(
		"OCCASION: %s\n- Mention %s naturally in the title, in at least one bullet and in the description.\n- Useful vocabulary: %s",
		req.Occasion.Label(lang), req.Occasion.Label(lang), strings.Join(req.Occasion.Words(lang), ", "),
	)
}

func schemaFragment(req listing.GenerationRequest) string {
	p := req.Platform
	var b strings.Builder
	b.WriteString("OUTPUT SCHEMA (every field is required)\n")
	fmt.Fprintf(&b, "- title: string, %d to %d characters\n", p.TitleMin, p.TitleMax)
	if p.BulletsMin == p.BulletsMax {
		fmt.Fprintf(&b, "- bullets: array of exactly %d strings, each at most %d characters\n", p.BulletsMin, p.BulletMaxChars)
	} else {
		fmt.Fprintf(&b, "- bullets: array of %d to %d strings, each at most %d characters\n", p.BulletsMin, p.BulletsMax, p.BulletMaxChars)
	}
	fmt.Fprintf(&b, "- description: string, at least %d characters", p.DescriptionMin)
	if p.DescriptionMax > 0 {
		fmt.Fprintf(&b, " and at most %d", p.DescriptionMax)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- keywords.short: array of at least %d search terms with one or two words each\n", p.ShortTailMin)
	fmt.Fprintf(&b, "- keywords.long: array of at least %d search phrases with three or more words each\n", p.LongTailMin)
	fmt.Fprintf(&b, "- keywords.backend: one string of space separated terms, at most %d bytes, not repeating title words\n", p.BackendMaxBytes)
	fmt.Fprintf(&b, "- richSections: object with exactly these %d keys: %s\n", p.RichSections, strings.Join(p.SectionKeys, ", "))
	b.WriteString("  each section: {\"title\": string, \"content\": string, \"keywords\": [string], \"imageDescription\": string, \"seoNote\": string}")
	return b.String()
}

type exampleSection struct {
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Keywords         []string `json:"keywords"`
	ImageDescription string   `json:"imageDescription"`
	SEONote          string   `json:"seoNote"`
}

type exampleKeywords struct {
	Short   []string `json:"short"`
	Long    []string `json:"long"`
	Backend string   `json:"backend"`
}

type exampleDoc struct {
	Title        string                    `json:"title"`
	Bullets      []string                  `json:"bullets"`
	Description  string                    `json:"description"`
	Keywords     exampleKeywords           `json:"keywords"`
	RichSections map[string]exampleSection `json:"richSections"`
}

func exampleFragment(req listing.GenerationRequest) string {
	p := req.Platform
	bullets := make([]string, 0, p.BulletsMin)
	for i := 0; i < p.BulletsMin; i++ {
		bullets = append(bullets, fmt.Sprintf("LABEL %d: benefit first sentence about feature %d, followed by a concrete detail.", i+1, i+1))
	}
	sections := make(map[string]exampleSection, len(p.SectionKeys))
	for _, key := range p.SectionKeys {
		sections[key] = exampleSection{
			Title:            "Short localized heading",
			Content:          "Two or three localized sentences for this module.",
			Keywords:         []string{"term one", "term two"},
			ImageDescription: req.Reference.ImagePrefix + "Lifestyle photo of the travel mug on a desk at sunrise",
			SEONote:          "Targets: term one, term two",
		}
	}
	doc := exampleDoc{
		Title:       "Aurora Insulated Travel Mug 450 ml, Leak Proof Lid, Keeps Drinks Hot 12 Hours, Stainless Steel Coffee Cup for Car and Office",
		Bullets:     bullets,
		Description: "Opening paragraph that speaks to the buyer. Second paragraph on features. Third paragraph on quality and trust.",
		Keywords: exampleKeywords{
			Short:   []string{"travel mug", "coffee cup"},
			Long:    []string{"leak proof travel mug for car", "insulated coffee cup for office"},
			Backend: "thermos tumbler flask commuter insulated",
		},
		RichSections: sections,
	}
	raw, _ := json.MarshalIndent(doc, "", "  ")
	return "EXAMPLE (structure only; write your own content in the target language and meet every length target above)\n" + string(raw)
}

func formatFragment(hint FormatHint) string {
	switch hint {
	case HintStrictJSON:
		return "FORMAT REMINDER\nYour previous reply could not be parsed. Return strictly valid JSON: double quoted keys and strings, no trailing commas, escaped line breaks, nothing before the opening brace or after the closing brace."
	case HintMinimalJSON:
		return "FORMAT REMINDER\nReturn only the JSON object. Keep sentences simple, avoid quotation marks inside strings and do not add any field that is not in the schema."
	default:
		return ""
	}
}

func bulletLabels(req listing.GenerationRequest) []string {
	if labels := req.Tone.Labels(req.Locale.Tag); len(labels) > 0 {
		return labels
	}
	return req.Locale.BulletLabels
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
