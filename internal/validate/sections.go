package validate

import (
	"strings"

	"listory/internal/listing"
)

// sections returns exactly one section per platform key, in platform order.
// Sections the model did not deliver are synthesized locally.
func (n *normalizer) sections(raw []listing.RichSection, short []string) []listing.RichSection {
	keys := n.req.Platform.SectionKeys
	byKey := map[string]listing.RichSection{}
	unkeyed := []listing.RichSection{}
	for _, s := range raw {
		if sectionEmpty(s) {
			continue
		}
		key := matchKey(keys, s.Key)
		if key == "" {
			unkeyed = append(unkeyed, s)
			continue
		}
		if _, dup := byKey[key]; !dup {
			byKey[key] = s
		}
	}
	for _, key := range keys {
		if len(unkeyed) == 0 {
			break
		}
		if _, ok := byKey[key]; !ok {
			byKey[key] = unkeyed[0]
			unkeyed = unkeyed[1:]
		}
	}

	out := make([]listing.RichSection, 0, len(keys))
	for i, key := range keys {
		s, ok := byKey[key]
		if !ok {
			out = append(out, n.synthSection(i, key, short))
			n.set(SectionField(key, ""), listing.StatusFallbackSynthesized, "")
			continue
		}
		out = append(out, n.repairSection(i, key, s, short))
		n.set(SectionField(key, ""), listing.StatusAIAuthored, "")
	}
	return out
}

func sectionEmpty(s listing.RichSection) bool {
	return strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.Content) == ""
}

// matchKey maps a model supplied key onto a platform key. "section3" and
// "Section3_Usage" both match "section3_usage".
func matchKey(keys []string, key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return ""
	}
	for _, want := range keys {
		if k == want {
			return want
		}
	}
	head := k
	if i := strings.IndexByte(k, '_'); i > 0 {
		head = k[:i]
	}
	for _, want := range keys {
		if strings.HasPrefix(want, head+"_") {
			return want
		}
	}
	return ""
}

func (n *normalizer) synthSection(i int, key string, short []string) listing.RichSection {
	kws := pick(short, i*3, 3)
	return listing.RichSection{
		Key:              key,
		Title:            n.sectionTitle(key),
		Content:          n.fill(n.sectionBody(), "{feature}", n.feature(i)),
		Keywords:         kws,
		ImageDescription: n.imageBrief(i, key),
		SEONote:          n.seoNote(kws),
	}
}

func (n *normalizer) repairSection(i int, key string, s listing.RichSection, short []string) listing.RichSection {
	out := listing.RichSection{
		Key:      key,
		Title:    n.customer(s.Title),
		Content:  stripPrefix(cleanBlock(s.Content), n.prefix),
		SEONote:  n.customer(s.SEONote),
		Keywords: []string{},
	}
	for _, kw := range s.Keywords {
		if kw = n.customer(kw); kw != "" {
			out.Keywords = append(out.Keywords, kw)
		}
	}
	filled := func(sub string) {
		n.set(SectionField(key, sub), listing.StatusFallbackSynthesized, "")
	}
	if out.Title == "" {
		out.Title = n.sectionTitle(key)
		filled("title")
	}
	if out.Content == "" {
		out.Content = n.fill(n.sectionBody(), "{feature}", n.feature(i))
		filled("content")
	}
	if len(out.Keywords) == 0 {
		out.Keywords = pick(short, i*3, 3)
		filled("keywords")
	}
	if out.SEONote == "" {
		out.SEONote = n.seoNote(out.Keywords)
		filled("seoNote")
	}

	img := stripPrefix(clean(s.ImageDescription), n.prefix)
	switch {
	case img == "":
		out.ImageDescription = n.imageBrief(i, key)
		filled("imageDescription")
	case !looksEnglish(img):
		out.ImageDescription = n.imageBrief(i, key)
		n.set(SectionField(key, "imageDescription"), listing.StatusFallbackSynthesized, "非英文图片说明已替换")
	default:
		out.ImageDescription = n.prefix + img
	}
	return out
}

func (n *normalizer) sectionTitle(key string) string {
	if t := n.req.Locale.SectionTitles[key]; t != "" {
		return n.fill(t)
	}
	return n.req.Product.Name
}

func (n *normalizer) sectionBody() string {
	if b := n.req.Locale.SectionBody; b != "" {
		return b
	}
	return "{brand} {name}: {feature}"
}

func (n *normalizer) seoNote(kws []string) string {
	tpl := n.req.Locale.SEONote
	if tpl == "" {
		return strings.Join(kws, ", ")
	}
	return n.fill(tpl, "{keywords}", strings.Join(kws, ", "))
}

// imageBrief is the English design brief for a section. Product names are
// kept as given.
func (n *normalizer) imageBrief(i int, key string) string {
	brief := n.req.Reference.ImageBriefs[key]
	if brief == "" {
		brief = "Product photo of the {brand} {name} on a clean background"
	}
	return n.prefix + n.fill(brief, "{feature}", n.feature(i))
}

// pick returns up to count items from list starting at offset, wrapping around.
func pick(list []string, offset, count int) []string {
	if len(list) == 0 {
		return []string{}
	}
	if count > len(list) {
		count = len(list)
	}
	out := make([]string, 0, count)
	for j := 0; j < count; j++ {
		out = append(out, list[(offset+j)%len(list)])
	}
	return out
}
