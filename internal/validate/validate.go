// Package validate turns whatever the model produced into a listing that
// meets the platform contract, synthesizing any field it cannot use.
package validate

import (
	"fmt"
	"strings"

	"listory/internal/listing"
)

// Field paths used in the report.
const (
	FieldTitle       = "title"
	FieldBullets     = "bullets"
	FieldDescription = "description"
	FieldShort       = "keywords.short"
	FieldLong        = "keywords.long"
	FieldBackend     = "keywords.backend"
)

// SectionField returns the report path of a rich section, or of one of its
// subfields when sub is not empty.
func SectionField(key, sub string) string {
	if sub == "" {
		return "richSections." + key
	}
	return "richSections." + key + "." + sub
}

type normalizer struct {
	req      listing.GenerationRequest
	lang     string
	prefix   string
	features []string
	report   *listing.ValidationReport
}

// Normalize validates plan against the request's platform and locale and
// returns the corrected plan with a report of how each field was obtained.
// It never fails: fields that cannot be brought into band are reported as
// out-of-band.
func Normalize(req listing.GenerationRequest, plan listing.ContentPlan) (listing.ContentPlan, listing.ValidationReport) {
	report := listing.ValidationReport{}
	n := &normalizer{
		req:      req,
		lang:     req.Locale.Tag,
		prefix:   req.Reference.ImagePrefix,
		features: req.Product.Features,
		report:   &report,
	}
	if len(n.features) == 0 {
		n.features = []string{req.Product.Name}
	}

	var out listing.ContentPlan
	out.Title = n.title(plan.Title)
	out.Bullets = n.bullets(plan.Bullets)
	out.Description = n.description(plan.Description, out.Bullets)
	out.Keywords.Short, out.Keywords.Long = n.keywords(plan.Keywords)
	out.Keywords.Backend = n.backend(plan.Keywords.Backend, out)
	out.RichSections = n.sections(plan.RichSections, out.Keywords.Short)

	n.languageChecks(out)
	report.Quality = n.quality(out)
	report.Passed = len(report.WithStatus(listing.StatusOutOfBand)) == 0
	return out, report
}

func (n *normalizer) set(field string, status listing.FieldStatus, note string) {
	n.report.Set(field, status, note)
}

func (n *normalizer) note(format string, args ...any) {
	n.report.Notes = append(n.report.Notes, fmt.Sprintf(format, args...))
}

// customer strips the internal reference prefix from customer-facing text.
func (n *normalizer) customer(s string) string {
	return stripPrefix(clean(s), n.prefix)
}

func (n *normalizer) feature(i int) string {
	return n.features[i%len(n.features)]
}

func (n *normalizer) labels() []string {
	if l := n.req.Tone.Labels(n.lang); len(l) > 0 {
		return l
	}
	if len(n.req.Locale.BulletLabels) > 0 {
		return n.req.Locale.BulletLabels
	}
	return []string{strings.ToUpper(n.req.Product.Name)}
}

// fill expands a locale template with the request's product facts.
func (n *normalizer) fill(tpl string, vars ...string) string {
	occasion := ""
	if !n.req.Occasion.IsNone() {
		occasion = n.req.Occasion.Label(n.lang)
	}
	pairs := []string{
		"{brand}", n.req.BrandName(),
		"{name}", n.req.Product.Name,
		"{category}", n.req.CategoryName(),
		"{occasion}", occasion,
	}
	pairs = append(pairs, vars...)
	return clean(strings.NewReplacer(pairs...).Replace(tpl))
}

func (n *normalizer) title(raw string) string {
	p := n.req.Platform
	t := unquoteEdges(titleLabelRe.ReplaceAllString(n.customer(raw), ""))
	if t == "" {
		t = n.extendTitle(n.baseTitle())
		n.checkTitle(t, listing.StatusFallbackSynthesized, "根据产品信息生成")
		return t
	}
	switch l := runeLen(t); {
	case l > p.TitleMax:
		t = truncateWords(t, p.TitleMax)
		n.checkTitle(t, listing.StatusAIAuthored, fmt.Sprintf("超长截断 %d→%d", l, runeLen(t)))
	case l < p.TitleMin:
		t = n.extendTitle(t)
		n.checkTitle(t, listing.StatusFallbackSynthesized, fmt.Sprintf("过短补全 %d→%d", l, runeLen(t)))
	default:
		n.set(FieldTitle, listing.StatusAIAuthored, "")
	}
	return t
}

func (n *normalizer) checkTitle(t string, status listing.FieldStatus, note string) {
	p := n.req.Platform
	if l := runeLen(t); l < p.TitleMin || l > p.TitleMax {
		status = listing.StatusOutOfBand
		note = fmt.Sprintf("标题长度 %d 不在 [%d,%d]", l, p.TitleMin, p.TitleMax)
	}
	n.set(FieldTitle, status, note)
}

func (n *normalizer) baseTitle() string {
	name := n.req.Product.Name
	brand := n.req.BrandName()
	base := name
	if !containsFold(name, brand) {
		base = brand + " " + name
	}
	if starters := n.req.Tone.Starters(n.lang); len(starters) > 0 {
		base = starters[0] + " " + base
	}
	return base
}

// extendTitle appends localized vocabulary until the title reaches the
// minimum length, skipping any piece that would overshoot the maximum.
func (n *normalizer) extendTitle(t string) string {
	p := n.req.Platform
	pieces := []string{}
	if !n.req.Occasion.IsNone() && n.req.Locale.OccasionPhrase != "" {
		pieces = append(pieces, n.fill(n.req.Locale.OccasionPhrase))
	}
	pieces = append(pieces, n.req.Product.Features...)
	pieces = append(pieces, n.req.Locale.TitleFillers...)
	pieces = append(pieces, n.req.Marketplace.CulturalKeywords...)
	pieces = append(pieces, n.req.Marketplace.PowerWords...)
	pieces = append(pieces, n.req.Locale.KeywordFillers...)
	for _, piece := range pieces {
		if runeLen(t) >= p.TitleMin {
			break
		}
		piece = clean(piece)
		if piece == "" || containsFold(t, piece) {
			continue
		}
		next := t + ", " + piece
		if runeLen(next) > p.TitleMax {
			continue
		}
		t = next
	}
	return t
}

func (n *normalizer) bullets(raw []string) []string {
	p := n.req.Platform
	out := []string{}
	seen := map[string]struct{}{}
	truncated := 0
	for _, b := range raw {
		b = unquoteEdges(bulletMarkRe.ReplaceAllString(n.customer(b), ""))
		if b == "" {
			continue
		}
		k := strings.ToLower(b)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if p.BulletMaxChars > 0 && runeLen(b) > p.BulletMaxChars {
			b = truncateWords(b, p.BulletMaxChars)
			truncated++
		}
		out = append(out, b)
	}
	ai := len(out)
	if p.BulletsMax > 0 && len(out) > p.BulletsMax {
		out = out[:p.BulletsMax]
		ai = len(out)
		n.note("bullets: 超出上限，保留前 %d 条", p.BulletsMax)
	}

	labels := n.labels()
	templates := n.req.Locale.BulletTemplates
	if len(templates) == 0 {
		templates = []string{"{label}: {feature}"}
	}
	for i := len(out); i < p.BulletsMin; i++ {
		b := n.fill(templates[i%len(templates)], "{label}", labels[i%len(labels)], "{feature}", n.feature(i))
		if p.BulletMaxChars > 0 {
			b = truncateWords(b, p.BulletMaxChars)
		}
		out = append(out, b)
		n.set(fmt.Sprintf("%s[%d]", FieldBullets, i), listing.StatusFallbackSynthesized, "")
	}

	switch {
	case ai == 0:
		n.set(FieldBullets, listing.StatusFallbackSynthesized, "全部根据产品信息生成")
	case ai < len(out):
		n.set(FieldBullets, listing.StatusAIAuthored, fmt.Sprintf("补全 %d 条", len(out)-ai))
	case truncated > 0:
		n.set(FieldBullets, listing.StatusAIAuthored, fmt.Sprintf("截断 %d 条", truncated))
	default:
		n.set(FieldBullets, listing.StatusAIAuthored, "")
	}
	return out
}

func (n *normalizer) description(raw string, bullets []string) string {
	p := n.req.Platform
	d := stripPrefix(cleanBlock(raw), n.prefix)
	status, note := listing.StatusAIAuthored, ""
	if d == "" {
		status, note = listing.StatusFallbackSynthesized, "根据产品信息生成"
	}
	if l := runeLen(d); l < p.DescriptionMin {
		d = n.extendDescription(d, bullets)
		if status == listing.StatusAIAuthored {
			status, note = listing.StatusFallbackSynthesized, fmt.Sprintf("过短补全 %d→%d", l, runeLen(d))
		}
	}
	if p.DescriptionMax > 0 && runeLen(d) > p.DescriptionMax {
		l := runeLen(d)
		d = truncateSentences(d, p.DescriptionMin, p.DescriptionMax)
		if note == "" {
			note = fmt.Sprintf("超长截断 %d→%d", l, runeLen(d))
		}
	}
	if l := runeLen(d); l < p.DescriptionMin || (p.DescriptionMax > 0 && l > p.DescriptionMax) {
		status, note = listing.StatusOutOfBand, fmt.Sprintf("描述长度 %d 不在 [%d,%d]", l, p.DescriptionMin, p.DescriptionMax)
	}
	n.set(FieldDescription, status, note)
	return d
}

// extendDescription appends locale paragraphs, then the bullets as one
// paragraph, until the minimum length is reached.
func (n *normalizer) extendDescription(d string, bullets []string) string {
	paras := n.req.Locale.DescriptionParagraphs
	if n.lang == n.req.Reference.Language {
		paras = append(append([]string(nil), n.req.Tone.DescriptionHooks...), paras...)
	}
	pieces := make([]string, 0, 2*len(paras)+1)
	for i, p := range paras {
		pieces = append(pieces, n.fill(p, "{feature}", n.feature(i)))
	}
	pieces = append(pieces, strings.Join(bullets, " "))
	for i, p := range paras {
		pieces = append(pieces, n.fill(p, "{feature}", n.feature(i+1)))
	}

	min := n.req.Platform.DescriptionMin
	for _, para := range pieces {
		if runeLen(d) >= min {
			break
		}
		if para == "" || containsFold(d, para) {
			continue
		}
		if d == "" {
			d = para
		} else {
			d += "\n\n" + para
		}
	}
	return d
}
