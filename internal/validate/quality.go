package validate

import (
	"strings"

	"listory/internal/listing"
)

// leakThreshold is the share of English filler words above which a
// customer-facing field in another language is flagged.
const leakThreshold = 0.05

func (n *normalizer) languageChecks(plan listing.ContentPlan) {
	if n.lang == n.req.Reference.Language {
		return
	}
	fields := map[string]string{
		FieldTitle:       plan.Title,
		FieldBullets:     strings.Join(plan.Bullets, " "),
		FieldDescription: plan.Description,
	}
	for _, name := range []string{FieldTitle, FieldBullets, FieldDescription} {
		if ratio := EnglishLeak(fields[name], n.req.Marketplace.AvoidWords); ratio > leakThreshold {
			n.note("%s: 疑似英文混入（%.0f%%）", name, ratio*100)
		}
	}
	if req := n.req.Marketplace.RequiredChars; req != "" && runeLen(plan.Description) >= 200 &&
		!strings.ContainsAny(strings.ToLower(plan.Description), req) {
		n.note("description: 缺少本地字符 %s", req)
	}
}

// EnglishLeak returns the share of words in text that are on the avoid list.
func EnglishLeak(text string, avoid []string) float64 {
	ws := words(text)
	if len(ws) == 0 || len(avoid) == 0 {
		return 0
	}
	set := map[string]struct{}{}
	for _, a := range avoid {
		set[strings.ToLower(a)] = struct{}{}
	}
	hits := 0
	for _, w := range ws {
		if _, ok := set[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(ws))
}

// quality scores the listing from 0 to 10 on three axes.
func (n *normalizer) quality(plan listing.ContentPlan) listing.QualityScore {
	r := n.report
	ai, total := 0, 0
	for _, f := range r.Fields {
		if strings.Count(f.Field, ".") > 1 || strings.Contains(f.Field, "[") {
			continue
		}
		total++
		if f.Status == listing.StatusAIAuthored {
			ai++
		}
	}
	aiShare := 0.0
	if total > 0 {
		aiShare = float64(ai) / float64(total)
	}
	outOfBand := len(r.WithStatus(listing.StatusOutOfBand))

	copyText := strings.ToLower(plan.Title + " " + strings.Join(plan.Bullets, " ") + " " + plan.Description)
	hits := 0
	vocab := append([]string{}, n.req.Marketplace.PowerWords...)
	vocab = append(vocab, n.labels()...)
	for _, w := range vocab {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" && strings.Contains(copyText, w) {
			hits++
		}
	}
	emotion := clamp(4 + 1.5*float64(hits))
	conversion := clamp(10*(0.5*aiShare+0.5*r.BackendUtilization/100) - 2*float64(outOfBand))
	trust := 10.0
	for _, note := range r.Notes {
		if strings.Contains(note, "英文混入") || strings.Contains(note, "本地字符") {
			trust -= 2
		}
	}
	trust = clamp(trust - 2*float64(outOfBand))
	return listing.QualityScore{
		Overall:    round1((emotion + conversion + trust) / 3),
		Emotion:    round1(emotion),
		Conversion: round1(conversion),
		Trust:      round1(trust),
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
