package extract

import (
	"strings"

	"github.com/tidwall/gjson"

	"listory/internal/listing"
)

// Field aliases seen in model output, most specific first.
var (
	titlePaths       = []string{"title", "productTitle", "product_title", "listing.title"}
	bulletPaths      = []string{"bullets", "bulletPoints", "bullet_points", "listing.bullets"}
	descriptionPaths = []string{"description", "productDescription", "product_description", "long_description", "listing.description"}
	shortPaths       = []string{"keywords.short", "keywords.shortTail", "keywords.short_tail", "shortTailKeywords", "seoKeywords.primary"}
	longPaths        = []string{"keywords.long", "keywords.longTail", "keywords.long_tail", "longTailKeywords", "seoKeywords.buyer_intent"}
	backendPaths     = []string{"keywords.backend", "backendKeywords", "backend_keywords", "amazonBackendKeywords", "seoKeywords.backend"}
	sectionsPaths    = []string{"richSections", "rich_sections", "aPlusContentPlan", "aplus"}

	sectionKeyPaths     = []string{"key", "id", "section"}
	sectionTitlePaths   = []string{"title", "headline", "heading"}
	sectionContentPaths = []string{"content", "body", "text", "copy"}
	sectionKwPaths      = []string{"keywords", "seoKeywords"}
	sectionImagePaths   = []string{"imageDescription", "image_description", "imageStrategy", "image_suggestion"}
	sectionSEOPaths     = []string{"seoNote", "seo_note", "seoOptimization"}
)

// mapPlan reads a valid JSON document into a plan and reports which
// top-level fields it found.
func mapPlan(doc string) (listing.ContentPlan, []string) {
	root := gjson.Parse(doc)
	var plan listing.ContentPlan
	found := []string{}
	mark := func(name string, ok bool) {
		if ok {
			found = append(found, name)
		}
	}

	plan.Title = first(root, titlePaths).String()
	plan.Title = strings.TrimSpace(plan.Title)
	mark("title", plan.Title != "")

	plan.Bullets = stringList(first(root, bulletPaths), true)
	mark("bullets", len(plan.Bullets) > 0)

	plan.Description = strings.TrimSpace(first(root, descriptionPaths).String())
	mark("description", plan.Description != "")

	plan.Keywords.Short = stringList(first(root, shortPaths), false)
	mark("keywords.short", len(plan.Keywords.Short) > 0)
	plan.Keywords.Long = stringList(first(root, longPaths), false)
	mark("keywords.long", len(plan.Keywords.Long) > 0)

	if b := first(root, backendPaths); b.IsArray() {
		plan.Keywords.Backend = strings.Join(stringList(b, false), " ")
	} else {
		plan.Keywords.Backend = strings.TrimSpace(b.String())
	}
	mark("keywords.backend", plan.Keywords.Backend != "")

	plan.RichSections = sections(first(root, sectionsPaths))
	mark("richSections", len(plan.RichSections) > 0)
	return plan, found
}

func first(r gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// stringList accepts an array of strings (or objects carrying a text field)
// or a single delimited string.
func stringList(v gjson.Result, lines bool) []string {
	out := []string{}
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if item.IsObject() {
				add(first(item, []string{"text", "content", "bullet", "keyword", "value"}).String())
				continue
			}
			add(item.String())
		}
	case v.Type == gjson.String:
		sep := ","
		if lines {
			sep = "\n"
		}
		for _, part := range strings.Split(v.String(), sep) {
			add(part)
		}
	}
	return out
}

func sections(v gjson.Result) []listing.RichSection {
	out := []listing.RichSection{}
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if !item.IsObject() {
				continue
			}
			out = append(out, section(strings.TrimSpace(first(item, sectionKeyPaths).String()), item))
		}
	case v.IsObject():
		v.ForEach(func(key, item gjson.Result) bool {
			if item.IsObject() {
				out = append(out, section(key.String(), item))
			}
			return true
		})
	}
	return out
}

func section(key string, item gjson.Result) listing.RichSection {
	return listing.RichSection{
		Key:              key,
		Title:            strings.TrimSpace(first(item, sectionTitlePaths).String()),
		Content:          strings.TrimSpace(first(item, sectionContentPaths).String()),
		Keywords:         stringList(first(item, sectionKwPaths), false),
		ImageDescription: strings.TrimSpace(first(item, sectionImagePaths).String()),
		SEONote:          strings.TrimSpace(first(item, sectionSEOPaths).String()),
	}
}
