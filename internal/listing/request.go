package listing

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"listory/internal/catalog"
)

const (
	DefaultPlatform  = "amazon"
	DefaultBrandTone = "professional"
)

// BuildRequest resolves selectors against the catalog and freezes the
// product facts into a GenerationRequest. It never calls a model.
func BuildRequest(store *catalog.Store, product Product, sel Selectors) (GenerationRequest, error) {
	product = normalizeProduct(product)
	if product.Name == "" {
		return GenerationRequest{}, &catalog.ConfigurationError{Kind: catalog.KindProduct, Detail: "产品名称不能为空"}
	}
	if strings.TrimSpace(sel.Marketplace) == "" {
		return GenerationRequest{}, &catalog.ConfigurationError{Kind: catalog.KindMarketplace, Detail: "未指定 marketplace"}
	}

	market, err := store.Marketplace(sel.Marketplace)
	if err != nil {
		return GenerationRequest{}, err
	}
	platformName := sel.Platform
	if strings.TrimSpace(platformName) == "" {
		platformName = DefaultPlatform
	}
	platform, err := store.Platform(platformName)
	if err != nil {
		return GenerationRequest{}, err
	}
	toneName := sel.BrandTone
	if strings.TrimSpace(toneName) == "" {
		toneName = DefaultBrandTone
	}
	tone, err := store.BrandTone(toneName)
	if err != nil {
		return GenerationRequest{}, err
	}
	occasion, err := store.Occasion(sel.Occasion)
	if err != nil {
		return GenerationRequest{}, err
	}
	locale, err := store.Locale(market.Language)
	if err != nil {
		return GenerationRequest{}, err
	}

	currency := market.Currency
	if product.Currency == "" {
		product.Currency = currency
	}

	return GenerationRequest{
		RequestID:   uuid.NewString(),
		Product:     product,
		Marketplace: market,
		Platform:    platform,
		Tone:        tone,
		Occasion:    occasion,
		Locale:      locale,
		Reference:   store.Reference(),
		Language:    market.Language,
		Currency:    currency,
	}, nil
}

func normalizeProduct(p Product) Product {
	out := Product{
		Name:        cleanFact(p.Name),
		Brand:       cleanFact(p.Brand),
		Category:    cleanFact(p.Category),
		Description: cleanFact(p.Description),
		Price:       p.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(p.Currency)),
		SourcePath:  p.SourcePath,
	}
	out.Features = cleanList(p.Features)
	out.SeedKeywords = cleanList(p.SeedKeywords)
	return out
}

func cleanFact(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, v := range in {
		v = cleanFact(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
