package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const wellFormed = `{
  "title": "Acme Thermo Flask",
  "bullets": ["Keeps drinks hot", "Leak proof lid"],
  "description": "A flask that lasts.",
  "keywords": {"short": ["flask", "thermos"], "long": ["insulated steel water bottle"], "backend": "flask bottle"},
  "richSections": {
    "section1_hero": {"title": "Hero", "content": "Body", "imageDescription": "ENGLISH: hero shot"},
    "section2_features": {"headline": "Features", "body": "More", "image_suggestion": "ENGLISH: close up"}
  }
}`

func TestExtractDirect(t *testing.T) {
	out, err := Extract(wellFormed)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepDirect || len(out.Repairs) != 0 {
		t.Fatalf("unexpected step: %s %v", out.Step, out.Repairs)
	}
	p := out.Plan
	if p.Title != "Acme Thermo Flask" || len(p.Bullets) != 2 || p.Description == "" {
		t.Fatalf("unexpected plan: %+v", p)
	}
	if len(p.Keywords.Short) != 2 || len(p.Keywords.Long) != 1 || p.Keywords.Backend != "flask bottle" {
		t.Fatalf("unexpected keywords: %+v", p.Keywords)
	}
	if len(p.RichSections) != 2 || p.RichSections[0].Key != "section1_hero" || p.RichSections[1].Title != "Features" {
		t.Fatalf("unexpected sections: %+v", p.RichSections)
	}
	if p.RichSections[1].ImageDescription != "ENGLISH: close up" {
		t.Fatalf("image alias not mapped: %+v", p.RichSections[1])
	}
}

func TestExtractFencesAndProse(t *testing.T) {
	raw := "Sure! Here is your listing:\n```json\n" + wellFormed + "\n```\nLet me know if you need changes."
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepFences || out.Plan.Title != "Acme Thermo Flask" {
		t.Fatalf("unexpected outcome: %s %+v", out.Step, out.Plan)
	}
}

func TestExtractTrailingProseWithoutFences(t *testing.T) {
	raw := `{"title":"T","bullets":["a"]} and some notes {not json}`
	out, err := Extract(raw)
	if err != nil || out.Step != StepDirect || out.Plan.Title != "T" {
		t.Fatalf("unexpected outcome: %+v %v", out, err)
	}
}

func TestExtractAliasesAndArraySections(t *testing.T) {
	raw := `{
	  "productTitle": "X",
	  "bulletPoints": "one\ntwo\n",
	  "productDescription": "D",
	  "seoKeywords": {"primary": "a, b", "buyer_intent": ["buy cheap x online"]},
	  "amazonBackendKeywords": ["k1", "k2"],
	  "aPlusContentPlan": [{"key": "section1_hero", "title": "H", "imageStrategy": "ENGLISH: x", "seoOptimization": "n"}]
	}`
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	p := out.Plan
	if p.Title != "X" || strings.Join(p.Bullets, "|") != "one|two" || p.Description != "D" {
		t.Fatalf("unexpected mandatory fields: %+v", p)
	}
	if strings.Join(p.Keywords.Short, "|") != "a|b" || p.Keywords.Long[0] != "buy cheap x online" || p.Keywords.Backend != "k1 k2" {
		t.Fatalf("unexpected keywords: %+v", p.Keywords)
	}
	s := p.RichSections[0]
	if s.Key != "section1_hero" || s.ImageDescription != "ENGLISH: x" || s.SEONote != "n" {
		t.Fatalf("unexpected section: %+v", s)
	}
}

func TestExtractRepairsTruncatedDocument(t *testing.T) {
	raw := `{"title": "Acme", "bullets": ["one", "two", "thr`
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepRepaired {
		t.Fatalf("expected repaired step, got %s", out.Step)
	}
	if out.Plan.Title != "Acme" || len(out.Plan.Bullets) != 3 {
		t.Fatalf("unexpected plan: %+v", out.Plan)
	}
	if !contains(out.Repairs, "balance_brackets") {
		t.Fatalf("expected balance pass, got %v", out.Repairs)
	}
}

func TestExtractRepairsCommasAndControlChars(t *testing.T) {
	raw := "{\"title\": \"Line one\nline two\", \"bullets\": [\"a\", \"b\",],}"
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Plan.Title != "Line one\nline two" || len(out.Plan.Bullets) != 2 {
		t.Fatalf("unexpected plan: %+v", out.Plan)
	}
	if !contains(out.Repairs, "trailing_commas") || !contains(out.Repairs, "control_chars") {
		t.Fatalf("unexpected repairs: %v", out.Repairs)
	}
}

func TestExtractRegexFallback(t *testing.T) {
	raw := "Title: Acme Flask 1L\n\n- Keeps hot 12h\n- BPA free\n\nDescription: Great flask."
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepRegex || out.Plan.Title != "Acme Flask 1L" || len(out.Plan.Bullets) != 2 || out.Plan.Description != "Great flask." {
		t.Fatalf("unexpected outcome: %s %+v", out.Step, out.Plan)
	}
}

func TestExtractRegexOnUnrepairableJSON(t *testing.T) {
	raw := `{"title": "Acme", "description": "Good" "bullets": ["x" "y"]}`
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepRegex || out.Plan.Title != "Acme" || out.Plan.Description != "Good" {
		t.Fatalf("unexpected outcome: %s %+v", out.Step, out.Plan)
	}
}

func TestExtractRepairsOuterObjectBeforeNestedOnes(t *testing.T) {
	raw := `{"title":"Acme Flask","bullets":["Steel","Leak proof"],"description":"Keeps drinks cold.",` +
		`"richSections":[{"key":"section1_hero","title":"Hero","content":"Body"}],}`
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepRepaired || !contains(out.Repairs, "trailing_commas") {
		t.Fatalf("expected trailing comma repair, got %s %v", out.Step, out.Repairs)
	}
	p := out.Plan
	if p.Title != "Acme Flask" || len(p.Bullets) != 2 || p.Description != "Keeps drinks cold." {
		t.Fatalf("nested section taken as listing: %+v", p)
	}
	if len(p.RichSections) != 1 || p.RichSections[0].Title != "Hero" {
		t.Fatalf("sections lost: %+v", p.RichSections)
	}
}

func TestExtractControlCharsWithNestedKeywords(t *testing.T) {
	raw := "{\"title\": \"Acme\nFlask\", \"bullets\": [\"a\"], \"keywords\": {\"short\": [\"flask\", \"bottle\"]}}"
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepRepaired || !contains(out.Repairs, "control_chars") {
		t.Fatalf("expected control char repair, got %s %v", out.Step, out.Repairs)
	}
	if out.Plan.Title != "Acme\nFlask" || strings.Join(out.Plan.Keywords.Short, "|") != "flask|bottle" {
		t.Fatalf("unexpected plan: %+v", out.Plan)
	}
}

func TestExtractFallsThroughToLaterTopLevelObject(t *testing.T) {
	raw := `note {"foo": 1} then {"title": "Later", "bullets": ["x"]}`
	out, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Step != StepDirect || out.Plan.Title != "Later" {
		t.Fatalf("unexpected outcome: %s %+v", out.Step, out.Plan)
	}
}

func TestExtractParseFailure(t *testing.T) {
	for _, raw := range []string{"", "I cannot produce that right now.", `{"foo": 1}`} {
		_, err := Extract(raw)
		var pf *ParseFailure
		if !errors.As(err, &pf) {
			t.Fatalf("%q: expected ParseFailure, got %v", raw, err)
		}
	}
}

func TestRepairIsIdempotentOnWellFormedJSON(t *testing.T) {
	docs := []string{wellFormed, `{}`, `[]`, `{"a":"x, ]","b":[1,2,{"c":"}"}]}`, `{"s":"tab\tescaped \"q\""}`}
	for _, doc := range docs {
		got, applied := Repair(doc)
		if got != doc || len(applied) != 0 {
			t.Fatalf("repair changed valid json %q -> %q (%v)", doc, got, applied)
		}
		for _, p := range Passes {
			if p.Apply(doc) != doc {
				t.Fatalf("pass %s changed valid json %q", p.Name, doc)
			}
		}
	}
}

func TestTrailingCommaRepairEqualsManualStripping(t *testing.T) {
	cases := map[string]string{
		`{"a":1,}`:                   `{"a":1}`,
		`[1,2,3,]`:                   `[1,2,3]`,
		`{"a":[1,2,],"b":{"c":1,},}`: `{"a":[1,2],"b":{"c":1}}`,
		"{\"a\":1 ,\n }":             "{\"a\":1 \n }",
		`{"s":"keep ,}"}`:            `{"s":"keep ,}"}`,
	}
	for in, want := range cases {
		if got := RemoveTrailingCommas(in); got != want {
			t.Fatalf("RemoveTrailingCommas(%q)=%q want %q", in, got, want)
		}
		var a, b any
		if err := json.Unmarshal([]byte(RemoveTrailingCommas(in)), &a); err != nil {
			t.Fatalf("repaired %q invalid: %v", in, err)
		}
		_ = json.Unmarshal([]byte(want), &b)
	}
}

func TestBalanceBrackets(t *testing.T) {
	cases := map[string]string{
		`{"a":[1,2`:          `{"a":[1,2]}`,
		`{"a":"open`:         `{"a":"open"}`,
		`{"a":1,"b`:          `{"a":1}`,
		`{"a":{"b":[{"c":1`:  `{"a":{"b":[{"c":1}]}}`,
		`{"a":"x\`:           `{"a":"x"}`,
		`{"a":1,"b":`:        `{"a":1}`,
		`{"a":"v","b":[1,2,`: `{"a":"v","b":[1,2]}`,
	}
	for in, want := range cases {
		if got := BalanceBrackets(in); got != want {
			t.Fatalf("BalanceBrackets(%q)=%q want %q", in, got, want)
		}
	}
}

func TestCandidates(t *testing.T) {
	cases := map[string][]string{
		`noise {"a":"}"} tail {"b":1}`: {`{"a":"}"}`, `{"b":1}`},
		`see {x} then {"ok":true}`:     {`{x}`, `{"ok":true}`},
		`prefix {"a":[1,`:              {`{"a":[1,`},
		`{"a":{"b":1},"c":[{"d":2}],}`: {`{"a":{"b":1},"c":[{"d":2}],}`},
		"no json here":                 nil,
	}
	for in, want := range cases {
		if got := Candidates(in); strings.Join(got, "|") != strings.Join(want, "|") || len(got) != len(want) {
			t.Fatalf("Candidates(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCandidatesAreTopLevelOnly(t *testing.T) {
	got := Candidates(`a {"x":{"y":1}} b {"z":"}"} c {"open":[`)
	want := []string{`{"x":{"y":1}}`, `{"z":"}"}`, `{"open":[`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Candidates = %q, want %q", got, want)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":     `{"a":1}`,
		"```\n{\"a\":1}\n```":         `{"a":1}`,
		"```JSON\n{\"a\":1}":          `{"a":1}`,
		"intro\n```json {\"a\":1}```": `{"a":1}`,
		`{"a":1}`:                     `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Fatalf("StripFences(%q)=%q want %q", in, got, want)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
