package validate

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"listory/internal/listing"
)

// keywordSet keeps short and long tail keywords disjoint and free of
// case-insensitive duplicates. A keyword's tier is decided by word count.
type keywordSet struct {
	short []string
	long  []string
	seen  map[string]struct{}
}

func newKeywordSet() *keywordSet {
	return &keywordSet{seen: map[string]struct{}{}}
}

func normalizeKeyword(s string) string {
	s = strings.ToLower(clean(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// add files kw under its tier and reports whether it was new.
func (k *keywordSet) add(kw string) bool {
	kw = normalizeKeyword(kw)
	if kw == "" {
		return false
	}
	if _, ok := k.seen[kw]; ok {
		return false
	}
	k.seen[kw] = struct{}{}
	if wordCount(kw) <= 2 {
		k.short = append(k.short, kw)
	} else {
		k.long = append(k.long, kw)
	}
	return true
}

// Partition splits keywords into short (at most two words) and long tail
// tiers, dropping duplicates.
func Partition(keywords []string) (short, long []string) {
	set := newKeywordSet()
	for _, kw := range keywords {
		set.add(kw)
	}
	return set.short, set.long
}

func (n *normalizer) keywords(in listing.Keywords) ([]string, []string) {
	p := n.req.Platform
	set := newKeywordSet()
	for _, kw := range in.Short {
		set.add(stripPrefix(kw, n.prefix))
	}
	for _, kw := range in.Long {
		set.add(stripPrefix(kw, n.prefix))
	}
	aiShort, aiLong := len(set.short), len(set.long)
	for _, kw := range n.req.Product.SeedKeywords {
		set.add(kw)
	}

	if len(set.short) < p.ShortTailMin {
		for _, c := range n.shortCandidates() {
			if len(set.short) >= p.ShortTailMin {
				break
			}
			if wordCount(c) <= 2 {
				set.add(c)
			}
		}
	}
	if len(set.long) < p.LongTailMin {
		for _, c := range n.longCandidates() {
			if len(set.long) >= p.LongTailMin {
				break
			}
			if wordCount(c) > 2 {
				set.add(c)
			}
		}
	}

	n.tierStatus(FieldShort, aiShort, len(set.short), p.ShortTailMin)
	n.tierStatus(FieldLong, aiLong, len(set.long), p.LongTailMin)
	return set.short, set.long
}

func (n *normalizer) tierStatus(field string, ai, total, min int) {
	switch {
	case total < min:
		n.set(field, listing.StatusOutOfBand, fmt.Sprintf("数量 %d 少于 %d", total, min))
	case ai >= min:
		n.set(field, listing.StatusAIAuthored, "")
	case ai == 0:
		n.set(field, listing.StatusFallbackSynthesized, fmt.Sprintf("生成 %d 个", total))
	default:
		n.set(field, listing.StatusFallbackSynthesized, fmt.Sprintf("补全 %d 个", total-ai))
	}
}

// keyTerm is the single word most likely to be searched for.
func (n *normalizer) keyTerm() string {
	cat := strings.Fields(n.req.CategoryName())
	best := ""
	for _, w := range cat {
		if runeLen(w) > runeLen(best) {
			best = w
		}
	}
	return best
}

func (n *normalizer) shortCandidates() []string {
	prod := n.req.Product
	brand := n.req.BrandName()
	term := n.keyTerm()
	out := []string{n.req.CategoryName(), prod.Name, brand, phrase(brand, term)}
	out = append(out, prod.Features...)
	if !n.req.Occasion.IsNone() {
		out = append(out, n.req.Occasion.Words(n.lang)...)
		out = append(out, phrase(term, n.req.Occasion.Label(n.lang)))
	}
	for _, f := range n.req.Locale.KeywordFillers {
		out = append(out, phrase(term, f))
	}
	for _, f := range n.req.Locale.KeywordFillers {
		out = append(out, phrase(brand, f))
	}
	for _, w := range n.req.Marketplace.PowerWords {
		out = append(out, phrase(w, term))
	}
	out = append(out, n.req.Locale.KeywordFillers...)
	return out
}

func (n *normalizer) longCandidates() []string {
	prod := n.req.Product
	brand := n.req.BrandName()
	term := n.keyTerm()
	out := []string{}
	for _, tpl := range n.req.Locale.LongKeywordTemplates {
		out = append(out, n.fill(tpl))
	}
	for _, f := range prod.Features {
		out = append(out, phrase(prod.Name, f))
	}
	if !n.req.Occasion.IsNone() && n.req.Locale.OccasionPhrase != "" {
		out = append(out, phrase(n.fill(n.req.Locale.OccasionPhrase), term))
	}
	fillers := n.req.Locale.KeywordFillers
	for _, f := range fillers {
		p := phrase(prod.Name, f)
		if wordCount(p) <= 2 {
			p = phrase(brand, prod.Name, f)
		}
		out = append(out, p)
	}
	for i := range fillers {
		for j := i + 1; j < len(fillers); j++ {
			out = append(out, phrase(term, fillers[i], fillers[j]))
		}
	}
	return out
}

// backend packs candidate terms into the byte budget, highest priority
// first, then tries swaps that use leftover bytes.
func (n *normalizer) backend(aiBackend string, plan listing.ContentPlan) string {
	p := n.req.Platform
	budget := p.BackendMaxBytes
	titleWords := map[string]struct{}{}
	for _, w := range words(plan.Title) {
		titleWords[w] = struct{}{}
	}

	aiTerms := words(stripPrefix(aiBackend, n.prefix))
	tiers := append(wordsOf(plan.Keywords.Short), wordsOf(plan.Keywords.Long)...)
	groups := [][]string{aiTerms, n.transliterated(aiTerms), tiers, n.transliterated(tiers)}
	vocab := append([]string{}, n.req.Locale.KeywordFillers...)
	vocab = append(vocab, n.req.Marketplace.PowerWords...)
	vocab = append(vocab, n.req.Marketplace.CulturalKeywords...)
	vocab = append(vocab, n.req.Product.Features...)
	if !n.req.Occasion.IsNone() {
		vocab = append(vocab, n.req.Occasion.Words(n.lang)...)
	}
	groups = append(groups, wordsOf(vocab))

	pool := []string{}
	deferred := []string{}
	seen := map[string]struct{}{}
	for _, g := range groups {
		for _, w := range g {
			if runeLen(w) < 2 {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			if _, inTitle := titleWords[w]; inTitle {
				deferred = append(deferred, w)
				continue
			}
			pool = append(pool, w)
		}
	}
	pool = append(pool, deferred...)

	chosen := Pack(pool, budget)
	out := strings.Join(chosen, " ")
	util := 0.0
	if budget > 0 {
		util = float64(len(out)) / float64(budget) * 100
	}
	n.report.BackendUtilization = round1(util)
	n.report.BackendEfficiency = EfficiencyLabel(util)

	switch {
	case len(out) > budget:
		n.set(FieldBackend, listing.StatusOutOfBand, fmt.Sprintf("%d 字节超出 %d", len(out), budget))
	case len(aiTerms) == 0:
		n.set(FieldBackend, listing.StatusFallbackSynthesized, fmt.Sprintf("%d/%d 字节", len(out), budget))
	default:
		n.set(FieldBackend, listing.StatusAIAuthored, fmt.Sprintf("%d/%d 字节", len(out), budget))
	}
	if util < p.BackendTargetPct {
		n.note("keywords.backend: 利用率 %.1f%% 低于目标 %.0f%%", util, p.BackendTargetPct)
	}
	return out
}

// transliterated returns the plain spelling of every term that has one.
func (n *normalizer) transliterated(terms []string) []string {
	out := []string{}
	for _, w := range terms {
		if t := n.req.Marketplace.Transliterate(w); t != w {
			out = append(out, t)
		}
	}
	return out
}

// Pack selects terms in order while their space separated byte length fits
// budget, then swaps chosen terms for longer unused ones where the leftover
// allows. The result never exceeds budget bytes.
func Pack(pool []string, budget int) []string {
	chosen := []string{}
	used := 0
	picked := map[int]bool{}
	for i, w := range pool {
		cost := len(w)
		if len(chosen) > 0 {
			cost++
		}
		if used+cost > budget {
			continue
		}
		chosen = append(chosen, w)
		picked[i] = true
		used += cost
	}

	unused := []string{}
	for i, w := range pool {
		if !picked[i] {
			unused = append(unused, w)
		}
	}
	sort.SliceStable(unused, func(a, b int) bool { return len(unused[a]) > len(unused[b]) })
	for ci := len(chosen) - 1; ci >= 0 && used < budget; ci-- {
		gap := budget - used
		for ui, u := range unused {
			delta := len(u) - len(chosen[ci])
			if delta > 0 && delta <= gap {
				unused[ui] = chosen[ci]
				chosen[ci] = u
				used += delta
				break
			}
		}
	}
	return chosen
}

// EfficiencyLabel grades a backend utilization percentage.
func EfficiencyLabel(pct float64) string {
	switch {
	case pct >= 95:
		return "excellent"
	case pct >= 80:
		return "good"
	case pct >= 60:
		return "fair"
	default:
		return "poor"
	}
}

func wordsOf(list []string) []string {
	out := []string{}
	for _, s := range list {
		out = append(out, words(s)...)
	}
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
