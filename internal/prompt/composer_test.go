package prompt

import (
	"strings"
	"testing"

	"listory/internal/catalog"
	"listory/internal/listing"
)

func buildRequest(t *testing.T, sel listing.Selectors) listing.GenerationRequest {
	t.Helper()
	store, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	req, err := listing.BuildRequest(store, listing.Product{
		Name:         "Thermo Becher",
		Brand:        "Kaltwerk",
		Category:     "Trinkflaschen",
		Features:     []string{"Hält 12 Stunden warm", "Auslaufsicherer Deckel"},
		SeedKeywords: []string{"thermobecher", "kaffeebecher to go"},
		Price:        24.99,
	}, sel)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	return req
}

func TestComposeFragmentOrder(t *testing.T) {
	req := buildRequest(t, listing.Selectors{Marketplace: "de"})
	b := Compose(req, HintJSONObject)
	want := []string{FragmentRole, FragmentFacts, FragmentLocale, FragmentTone, FragmentOccasion, FragmentSchema, FragmentExample}
	if len(b.Fragments) != len(want) {
		t.Fatalf("fragment count %d != %d", len(b.Fragments), len(want))
	}
	for i, f := range b.Fragments {
		if f.Name != want[i] {
			t.Fatalf("fragment %d = %s, want %s", i, f.Name, want[i])
		}
	}
	schema, _ := b.Fragment(FragmentSchema)
	example, _ := b.Fragment(FragmentExample)
	if strings.Index(b.Text, schema) >= strings.Index(b.Text, example) {
		t.Fatalf("schema must precede the example")
	}
	if len(b.SectionKeys) != 8 {
		t.Fatalf("unexpected section keys: %v", b.SectionKeys)
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	req := buildRequest(t, listing.Selectors{Marketplace: "de", BrandTone: "luxury", Occasion: "christmas"})
	a := Compose(req, HintStrictJSON)
	b := Compose(req, HintStrictJSON)
	if a.Text != b.Text || a.System != b.System {
		t.Fatalf("compose must be deterministic")
	}
}

func TestLocaleFragmentForbidsOtherLanguages(t *testing.T) {
	de := Compose(buildRequest(t, listing.Selectors{Marketplace: "de"}), HintJSONObject)
	text, _ := de.Fragment(FragmentLocale)
	for _, want := range []string{"Deutsch", "Do NOT use English", "ä ö ü ß", "ENGLISH: "} {
		if !strings.Contains(text, want) {
			t.Fatalf("locale fragment missing %q:\n%s", want, text)
		}
	}

	us := Compose(buildRequest(t, listing.Selectors{Marketplace: "us"}), HintJSONObject)
	text, _ = us.Fragment(FragmentLocale)
	if strings.Contains(text, "Do NOT use English") {
		t.Fatalf("english marketplace must not forbid english:\n%s", text)
	}
}

func TestOccasionFragment(t *testing.T) {
	none := Compose(buildRequest(t, listing.Selectors{Marketplace: "de"}), HintJSONObject)
	text, _ := none.Fragment(FragmentOccasion)
	if !strings.Contains(text, "None") {
		t.Fatalf("unexpected none occasion fragment: %s", text)
	}
	xmas := Compose(buildRequest(t, listing.Selectors{Marketplace: "de", Occasion: "christmas"}), HintJSONObject)
	text, _ = xmas.Fragment(FragmentOccasion)
	if !strings.Contains(text, "Weihnachten") || !strings.Contains(text, "Geschenkidee") {
		t.Fatalf("occasion fragment not localized: %s", text)
	}
}

func TestToneFragmentUsesLocalizedLabels(t *testing.T) {
	b := Compose(buildRequest(t, listing.Selectors{Marketplace: "de", BrandTone: "luxury"}), HintJSONObject)
	text, _ := b.Fragment(FragmentTone)
	if !strings.Contains(text, "EXKLUSIVE VERARBEITUNG") {
		t.Fatalf("tone labels not localized: %s", text)
	}
	fr := Compose(buildRequest(t, listing.Selectors{Marketplace: "fr", BrandTone: "luxury"}), HintJSONObject)
	text, _ = fr.Fragment(FragmentTone)
	if !strings.Contains(text, "VOTRE AVANTAGE") {
		t.Fatalf("expected locale labels when the tone has none: %s", text)
	}
}

func TestSchemaCarriesPlatformTargets(t *testing.T) {
	b := Compose(buildRequest(t, listing.Selectors{Marketplace: "de"}), HintJSONObject)
	text, _ := b.Fragment(FragmentSchema)
	for _, want := range []string{"120 to 200", "exactly 5", "at least 1000", "249 bytes", "section8_package"} {
		if !strings.Contains(text, want) {
			t.Fatalf("schema missing %q:\n%s", want, text)
		}
	}
	example, _ := b.Fragment(FragmentExample)
	for _, key := range b.SectionKeys {
		if !strings.Contains(example, key) {
			t.Fatalf("example missing section %s", key)
		}
	}
}

func TestFormatHints(t *testing.T) {
	if HintForAttempt(1) != HintJSONObject || HintForAttempt(2) != HintStrictJSON || HintForAttempt(5) != HintMinimalJSON {
		t.Fatalf("unexpected hint progression")
	}
	req := buildRequest(t, listing.Selectors{Marketplace: "us"})
	first := Compose(req, HintForAttempt(1))
	if _, ok := first.Fragment(FragmentFormat); ok {
		t.Fatalf("first attempt should not carry a format reminder")
	}
	retry := Compose(req, HintForAttempt(2))
	last := retry.Fragments[len(retry.Fragments)-1]
	if last.Name != FragmentFormat || !strings.Contains(last.Text, "trailing commas") {
		t.Fatalf("unexpected retry fragment: %+v", last)
	}
}
