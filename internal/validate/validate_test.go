package validate

import (
	"strings"
	"testing"

	"listory/internal/catalog"
	"listory/internal/listing"
)

func mustRequest(t *testing.T, p listing.Product, sel listing.Selectors) listing.GenerationRequest {
	t.Helper()
	store, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default failed: %v", err)
	}
	req, err := listing.BuildRequest(store, p, sel)
	if err != nil {
		t.Fatalf("BuildRequest failed: %v", err)
	}
	return req
}

func sectionStatuses(r listing.ValidationReport, status listing.FieldStatus) []string {
	out := []string{}
	for _, f := range r.WithStatus(status) {
		if strings.HasPrefix(f, "richSections.") && strings.Count(f, ".") == 1 {
			out = append(out, f)
		}
	}
	return out
}

func TestNormalizeEmptyPlanMeetsContract(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "X", Brand: "Y"}, listing.Selectors{Marketplace: "de", Occasion: "none"})
	plan, report := Normalize(req, listing.ContentPlan{})

	if l := runeLen(plan.Title); l < 120 || l > 200 {
		t.Fatalf("title length %d out of band: %q", l, plan.Title)
	}
	if len(plan.Bullets) < 5 {
		t.Fatalf("expected at least 5 bullets, got %d", len(plan.Bullets))
	}
	if l := runeLen(plan.Description); l < 1000 {
		t.Fatalf("description too short: %d", l)
	}
	if len(plan.RichSections) != 8 {
		t.Fatalf("expected 8 sections, got %d", len(plan.RichSections))
	}
	if len(plan.Keywords.Backend) > 249 {
		t.Fatalf("backend too long: %d bytes", len(plan.Keywords.Backend))
	}
	if len(plan.Keywords.Short) < 15 || len(plan.Keywords.Long) < 15 {
		t.Fatalf("keyword tiers below minimum: %d/%d", len(plan.Keywords.Short), len(plan.Keywords.Long))
	}
	if !report.Passed {
		t.Fatalf("expected report to pass, out-of-band: %v", report.WithStatus(listing.StatusOutOfBand))
	}
	if st, _ := report.Status(FieldTitle); st != listing.StatusFallbackSynthesized {
		t.Fatalf("title should be synthesized, got %s", st)
	}
	if got := sectionStatuses(report, listing.StatusFallbackSynthesized); len(got) != 8 {
		t.Fatalf("all 8 sections should be synthesized, got %v", got)
	}
	for i, s := range plan.RichSections {
		if s.Key != req.Platform.SectionKeys[i] {
			t.Fatalf("section %d key %q, want %q", i, s.Key, req.Platform.SectionKeys[i])
		}
		if !strings.HasPrefix(s.ImageDescription, "ENGLISH: ") {
			t.Fatalf("image description missing prefix: %q", s.ImageDescription)
		}
		if s.Title == "" || s.Content == "" || s.SEONote == "" || len(s.Keywords) == 0 {
			t.Fatalf("section %s incomplete: %+v", s.Key, s)
		}
	}
}

func TestNormalizeMissingSectionsAreSynthesized(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Thermosflasche", Brand: "Acme", Features: []string{"Hält 12 Stunden warm"}},
		listing.Selectors{Marketplace: "de"})
	keys := req.Platform.SectionKeys
	in := listing.ContentPlan{Title: "Acme Thermosflasche"}
	for _, k := range keys {
		if k == "section3_usage" || k == "section7_comparison" {
			continue
		}
		in.RichSections = append(in.RichSections, listing.RichSection{
			Key: k, Title: "Titel " + k, Content: "Inhalt für " + k, Keywords: []string{"flasche"},
			ImageDescription: "ENGLISH: Photo of the bottle on a desk", SEONote: "Notiz",
		})
	}
	plan, report := Normalize(req, in)
	if len(plan.RichSections) != 8 {
		t.Fatalf("expected 8 sections, got %d", len(plan.RichSections))
	}
	got := sectionStatuses(report, listing.StatusFallbackSynthesized)
	want := []string{SectionField("section3_usage", ""), SectionField("section7_comparison", "")}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("synthesized sections %v, want %v", got, want)
	}
	if len(sectionStatuses(report, listing.StatusAIAuthored)) != 6 {
		t.Fatalf("expected 6 ai-authored sections")
	}
	if plan.RichSections[0].Title != "Titel section1_hero" {
		t.Fatalf("ai section not kept: %+v", plan.RichSections[0])
	}
}

func TestSectionSubfieldsAndKeyMatching(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flask"}, listing.Selectors{Marketplace: "de"})
	in := listing.ContentPlan{RichSections: []listing.RichSection{
		{Key: "Section2", Title: "Funktionen", Content: "Text", ImageDescription: "Foto der Flasche auf dem Tisch mit Blumen"},
		{Title: "Ohne Schlüssel", Content: "Text"},
	}}
	plan, report := Normalize(req, in)
	s := plan.RichSections[1]
	if s.Key != "section2_features" || s.Title != "Funktionen" {
		t.Fatalf("short key not matched: %+v", s)
	}
	if st, _ := report.Status(SectionField("section2_features", "imageDescription")); st != listing.StatusFallbackSynthesized {
		t.Fatalf("german image brief should be replaced, got %q", st)
	}
	if !looksEnglish(strings.TrimPrefix(s.ImageDescription, "ENGLISH: ")) {
		t.Fatalf("replacement brief is not english: %q", s.ImageDescription)
	}
	if st, _ := report.Status(SectionField("section2_features", "seoNote")); st != listing.StatusFallbackSynthesized {
		t.Fatalf("missing seoNote should be reported, got %q", st)
	}
	if plan.RichSections[0].Title != "Ohne Schlüssel" {
		t.Fatalf("unkeyed section should fill the first free slot: %+v", plan.RichSections[0])
	}
}

func TestImageDescriptionPrefixAdded(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flask"}, listing.Selectors{Marketplace: "us"})
	in := listing.ContentPlan{RichSections: []listing.RichSection{
		{Key: "section1_hero", Title: "Hero", Content: "Body", ImageDescription: "Lifestyle photo of the flask on a desk"},
	}}
	plan, _ := Normalize(req, in)
	if got := plan.RichSections[0].ImageDescription; got != "ENGLISH: Lifestyle photo of the flask on a desk" {
		t.Fatalf("unexpected image description: %q", got)
	}
}

func TestCustomerFieldsLoseReferencePrefix(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flask"}, listing.Selectors{Marketplace: "de"})
	in := listing.ContentPlan{
		Title:       "ENGLISH: Acme Flasche",
		Bullets:     []string{"ENGLISH: Erster Punkt", "- Zweiter Punkt"},
		Description: "english: Beschreibung",
	}
	plan, _ := Normalize(req, in)
	if strings.Contains(strings.ToUpper(plan.Title), "ENGLISH:") || !strings.HasPrefix(plan.Title, "Acme Flasche") {
		t.Fatalf("title kept prefix: %q", plan.Title)
	}
	if plan.Bullets[0] != "Erster Punkt" || plan.Bullets[1] != "Zweiter Punkt" {
		t.Fatalf("bullets not cleaned: %q", plan.Bullets[:2])
	}
	if !strings.HasPrefix(plan.Description, "Beschreibung") {
		t.Fatalf("description kept prefix: %q", plan.Description[:30])
	}
}

func TestTitleTooLongIsTruncatedAtWordBoundary(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flask"}, listing.Selectors{Marketplace: "us"})
	long := strings.Repeat("stainless steel bottle ", 12)
	plan, report := Normalize(req, listing.ContentPlan{Title: long})
	if l := runeLen(plan.Title); l > 200 || l < 120 {
		t.Fatalf("title length %d out of band", l)
	}
	if !strings.HasPrefix(long, plan.Title+" ") {
		t.Fatalf("title not cut at a word boundary: %q", plan.Title)
	}
	if st, _ := report.Status(FieldTitle); st != listing.StatusAIAuthored {
		t.Fatalf("truncated title stays ai-authored, got %s", st)
	}
}

func TestBulletsClampedToBand(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flask"}, listing.Selectors{Marketplace: "us"})
	in := listing.ContentPlan{Bullets: []string{"1. a", "2. b", "3. c", "4. d", "5. e", "6. f", strings.Repeat("word ", 80)}}
	plan, _ := Normalize(req, in)
	if len(plan.Bullets) != 5 {
		t.Fatalf("expected 5 bullets, got %d", len(plan.Bullets))
	}
	if plan.Bullets[0] != "a" {
		t.Fatalf("numbering not stripped: %q", plan.Bullets[0])
	}

	in = listing.ContentPlan{Bullets: []string{strings.Repeat("word ", 80), "b"}}
	plan, report := Normalize(req, in)
	if runeLen(plan.Bullets[0]) > 250 {
		t.Fatalf("bullet not truncated: %d", runeLen(plan.Bullets[0]))
	}
	if len(plan.Bullets) != 5 {
		t.Fatalf("missing bullets not synthesized: %d", len(plan.Bullets))
	}
	for i := 2; i < 5; i++ {
		if st, _ := report.Status("bullets[" + string(rune('0'+i)) + "]"); st != listing.StatusFallbackSynthesized {
			t.Fatalf("bullet %d should be synthesized, got %q", i, st)
		}
	}
}

func TestDescriptionCappedAtMaximum(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flask"}, listing.Selectors{Marketplace: "us"})
	desc := strings.Repeat("This flask keeps drinks hot for hours. ", 80)
	plan, report := Normalize(req, listing.ContentPlan{Description: desc})
	if l := runeLen(plan.Description); l > 2000 || l < 1000 {
		t.Fatalf("description length %d out of band", l)
	}
	if !strings.HasSuffix(plan.Description, ".") {
		t.Fatalf("description should end at a sentence: %q", plan.Description[len(plan.Description)-20:])
	}
	if st, _ := report.Status(FieldDescription); st != listing.StatusAIAuthored {
		t.Fatalf("capped description stays ai-authored, got %s", st)
	}
}

func TestKeywordPartitionLaw(t *testing.T) {
	in := []string{"flask", "Flask", "steel bottle", "insulated steel bottle", "  STEEL  bottle ", "gift for dad idea", "", "mug,"}
	short, long := Partition(in)
	if strings.Join(short, "|") != "flask|steel bottle|mug" {
		t.Fatalf("unexpected short tier: %v", short)
	}
	if strings.Join(long, "|") != "insulated steel bottle|gift for dad idea" {
		t.Fatalf("unexpected long tier: %v", long)
	}
	assertPartition(t, short, long)
}

func assertPartition(t *testing.T, short, long []string) {
	t.Helper()
	seen := map[string]string{}
	for _, k := range short {
		if wordCount(k) > 2 {
			t.Fatalf("short keyword %q has more than two words", k)
		}
		if _, dup := seen[strings.ToLower(k)]; dup {
			t.Fatalf("duplicate keyword %q", k)
		}
		seen[strings.ToLower(k)] = "short"
	}
	for _, k := range long {
		if wordCount(k) <= 2 {
			t.Fatalf("long keyword %q has two words or fewer", k)
		}
		if tier, dup := seen[strings.ToLower(k)]; dup {
			t.Fatalf("keyword %q appears in %s and long", k, tier)
		}
		seen[strings.ToLower(k)] = "long"
	}
	if len(seen) != len(short)+len(long) {
		t.Fatalf("partition does not cover all keywords")
	}
}

func TestEveryMarketplaceMeetsInvariants(t *testing.T) {
	store, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default failed: %v", err)
	}
	product := listing.Product{Name: "Thermo Flask", Brand: "Acme", Features: []string{"Keeps drinks hot", "Leak proof"}}
	ai := listing.ContentPlan{
		Keywords: listing.Keywords{
			Short:   []string{"flask", "thermo flask", "travel mug with lid"},
			Long:    []string{"bottle", "insulated bottle for hiking"},
			Backend: "flask thermos tumbler",
		},
	}
	for _, platform := range store.PlatformNames() {
		for _, code := range store.MarketplaceCodes() {
			req, err := listing.BuildRequest(store, product, listing.Selectors{Marketplace: code, Platform: platform, Occasion: "christmas"})
			if err != nil {
				t.Fatalf("%s/%s: BuildRequest failed: %v", platform, code, err)
			}
			plan, report := Normalize(req, ai)
			if len(plan.RichSections) != req.Platform.RichSections {
				t.Fatalf("%s/%s: %d sections, want %d", platform, code, len(plan.RichSections), req.Platform.RichSections)
			}
			if n := len(plan.Keywords.Backend); n > req.Platform.BackendMaxBytes {
				t.Fatalf("%s/%s: backend %d bytes over %d", platform, code, n, req.Platform.BackendMaxBytes)
			}
			if plan.Title == "" || plan.Description == "" || len(plan.Bullets) < req.Platform.BulletsMin {
				t.Fatalf("%s/%s: mandatory field empty", platform, code)
			}
			assertPartition(t, plan.Keywords.Short, plan.Keywords.Long)
			if report.Quality.Overall < 0 || report.Quality.Overall > 10 {
				t.Fatalf("%s/%s: quality out of range: %+v", platform, code, report.Quality)
			}
		}
	}
}

func TestPackRespectsBudgetAndUtilization(t *testing.T) {
	pool := strings.Fields("thermosflasche edelstahl isolierflasche trinkflasche kaffeebecher auslaufsicher doppelwandig vakuum " +
		"wasserflasche sport fahrrad schule büro outdoor wandern camping kinder erwachsene geschenk set deckel teesieb heiß kalt " +
		"stunden liter bpa frei spülmaschinenfest robust leicht thermobecher reise auto to go ml")
	got := strings.Join(Pack(pool, 249), " ")
	if len(got) > 249 {
		t.Fatalf("packed %d bytes over budget", len(got))
	}
	if util := float64(len(got)) / 249 * 100; util < 95 {
		t.Fatalf("utilization %.1f below 95", util)
	}
	if got := Pack([]string{"abcdefghij"}, 5); len(got) != 0 {
		t.Fatalf("oversized term should be skipped: %v", got)
	}
	if got := strings.Join(Pack([]string{"aa", "bb", "cccc"}, 7), " "); got != "cccc bb" && got != "aa cccc" {
		t.Fatalf("swap should use leftover bytes, got %q", got)
	}
}

func TestBackendTransliterationsAndReport(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flasche", Features: []string{"für größere Touren"}}, listing.Selectors{Marketplace: "de"})
	plan, report := Normalize(req, listing.ContentPlan{Keywords: listing.Keywords{Backend: "größer für"}})
	if !strings.Contains(plan.Keywords.Backend, "groesser") || !strings.Contains(plan.Keywords.Backend, "fuer") {
		t.Fatalf("transliterations missing: %q", plan.Keywords.Backend)
	}
	if report.BackendEfficiency == "" || report.BackendUtilization <= 0 {
		t.Fatalf("backend metrics not reported: %+v", report)
	}
	if st, _ := report.Status(FieldBackend); st != listing.StatusAIAuthored {
		t.Fatalf("backend with ai terms should be ai-authored, got %s", st)
	}
}

func TestEfficiencyLabel(t *testing.T) {
	cases := map[float64]string{100: "excellent", 95: "excellent", 94.9: "good", 80: "good", 60: "fair", 59: "poor"}
	for pct, want := range cases {
		if got := EfficiencyLabel(pct); got != want {
			t.Fatalf("EfficiencyLabel(%v)=%s want %s", pct, got, want)
		}
	}
}

func TestEnglishLeakNote(t *testing.T) {
	req := mustRequest(t, listing.Product{Name: "Flasche"}, listing.Selectors{Marketplace: "de"})
	_, report := Normalize(req, listing.ContentPlan{Title: "The best bottle with quality and style for the whole family and friends"})
	found := false
	for _, n := range report.Notes {
		if strings.HasPrefix(n, "title:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected english leak note, got %v", report.Notes)
	}
	if EnglishLeak("Eine Flasche für die Familie", []string{"the", "and"}) != 0 {
		t.Fatalf("german text should not leak")
	}
}

func TestTruncateHelpers(t *testing.T) {
	if got := truncateWords("alpha beta gamma", 12); got != "alpha beta" {
		t.Fatalf("truncateWords=%q", got)
	}
	if got := truncateWords("alpha beta gamma", 10); got != "alpha beta" {
		t.Fatalf("truncateWords at boundary=%q", got)
	}
	if got := truncateSentences("One. Two. Three.", 3, 10); got != "One. Two." {
		t.Fatalf("truncateSentences=%q", got)
	}
	if got := phrase("X", "x", "kaufen"); got != "X kaufen" {
		t.Fatalf("phrase=%q", got)
	}
}
