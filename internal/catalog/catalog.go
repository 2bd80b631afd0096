package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// NoOccasion is the occasion key used when a request targets no occasion.
const NoOccasion = "none"

type Reference struct {
	Language    string            `yaml:"language"`
	ImagePrefix string            `yaml:"image_prefix"`
	ImageBriefs map[string]string `yaml:"image_briefs"`
}

type Platform struct {
	Name             string   `yaml:"-"`
	TitleMin         int      `yaml:"title_min"`
	TitleMax         int      `yaml:"title_max"`
	BulletsMin       int      `yaml:"bullets_min"`
	BulletsMax       int      `yaml:"bullets_max"`
	BulletMaxChars   int      `yaml:"bullet_max_chars"`
	DescriptionMin   int      `yaml:"description_min"`
	DescriptionMax   int      `yaml:"description_max"`
	ShortTailMin     int      `yaml:"short_tail_min"`
	LongTailMin      int      `yaml:"long_tail_min"`
	BackendMaxBytes  int      `yaml:"backend_max_bytes"`
	BackendTargetPct float64  `yaml:"backend_target_pct"`
	RichSections     int      `yaml:"rich_sections"`
	SectionKeys      []string `yaml:"section_keys"`
}

type BrandTone struct {
	Name             string              `yaml:"-"`
	PowerWords       []string            `yaml:"power_words"`
	TitleStarters    map[string][]string `yaml:"title_starters"`
	BulletLabels     map[string][]string `yaml:"bullet_labels"`
	DescriptionHooks []string            `yaml:"description_hooks"`
	AvoidWords       []string            `yaml:"avoid_words"`
	Enforcement      string              `yaml:"enforcement"`
}

// Labels returns the tone's bullet labels for lang, or nil when the tone has none for it.
func (t BrandTone) Labels(lang string) []string {
	return t.BulletLabels[lang]
}

// Starters returns title openers for lang.
func (t BrandTone) Starters(lang string) []string {
	return t.TitleStarters[lang]
}

type Occasion struct {
	Key        string              `yaml:"-"`
	Aliases    []string            `yaml:"aliases"`
	Labels     map[string]string   `yaml:"labels"`
	Vocabulary map[string][]string `yaml:"vocabulary"`
}

// IsNone reports whether o is the empty occasion.
func (o Occasion) IsNone() bool {
	return o.Key == "" || o.Key == NoOccasion
}

// Label returns the occasion name in lang, falling back to English.
func (o Occasion) Label(lang string) string {
	if o.IsNone() {
		return ""
	}
	if v := strings.TrimSpace(o.Labels[lang]); v != "" {
		return v
	}
	if v := strings.TrimSpace(o.Labels["en"]); v != "" {
		return v
	}
	return o.Key
}

// Words returns occasion vocabulary for lang. The localized label is always first.
func (o Occasion) Words(lang string) []string {
	if o.IsNone() {
		return nil
	}
	out := []string{o.Label(lang)}
	return append(out, o.Vocabulary[lang]...)
}

type Marketplace struct {
	Code             string            `yaml:"-"`
	Name             string            `yaml:"name"`
	Language         string            `yaml:"language"`
	Currency         string            `yaml:"currency"`
	PowerWords       []string          `yaml:"power_words"`
	CulturalKeywords []string          `yaml:"cultural_keywords"`
	EnforcementRules []string          `yaml:"enforcement_rules"`
	RequiredChars    string            `yaml:"required_chars"`
	AvoidWords       []string          `yaml:"avoid_words"`
	Transliterations map[string]string `yaml:"transliterations"`
}

// LanguageBase returns the base language subtag, e.g. "de" for "de-DE".
func (m Marketplace) LanguageBase() string {
	tag, err := language.Parse(m.Language)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(m.Language))
	}
	base, _ := tag.Base()
	return base.String()
}

// Transliterate replaces every diacritic the marketplace knows a plain spelling for.
func (m Marketplace) Transliterate(s string) string {
	if len(m.Transliterations) == 0 {
		return s
	}
	keys := make([]string, 0, len(m.Transliterations))
	for k := range m.Transliterations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m.Transliterations[k])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Locale is the text kit for one language: section titles, vocabulary and
// the templates fallback content is synthesized from.
type Locale struct {
	Tag                   string            `yaml:"-"`
	Name                  string            `yaml:"name"`
	SectionTitles         map[string]string `yaml:"section_titles"`
	BulletLabels          []string          `yaml:"bullet_labels"`
	TitleFillers          []string          `yaml:"title_fillers"`
	BulletTemplates       []string          `yaml:"bullet_templates"`
	DescriptionParagraphs []string          `yaml:"description_paragraphs"`
	KeywordFillers        []string          `yaml:"keyword_fillers"`
	LongKeywordTemplates  []string          `yaml:"long_keyword_templates"`
	SectionBody           string            `yaml:"section_body"`
	SEONote               string            `yaml:"seo_note"`
	OccasionPhrase        string            `yaml:"occasion_phrase"`
}

type document struct {
	Reference    Reference              `yaml:"reference"`
	Platforms    map[string]Platform    `yaml:"platforms"`
	BrandTones   map[string]BrandTone   `yaml:"brand_tones"`
	Occasions    map[string]Occasion    `yaml:"occasions"`
	Marketplaces map[string]Marketplace `yaml:"marketplaces"`
	Locales      map[string]Locale      `yaml:"locales"`
}

// Store is the read-only view over the marketplace, tone, occasion and
// platform tables. It is safe for concurrent use.
type Store struct {
	doc     document
	aliases map[string]string
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
	defaultErr   error
)

// Default returns the store parsed from the embedded catalog.
func Default() (*Store, error) {
	defaultOnce.Do(func() {
		defaultStore, defaultErr = Parse(embeddedCatalog)
	})
	return defaultStore, defaultErr
}

// Load reads a catalog file. An empty path returns the embedded catalog.
func Load(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取目录配置失败（%s）：%w", path, err)
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("目录配置无效（%s）：%w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("解析目录配置失败：%w", err)
	}
	s := &Store{doc: doc, aliases: map[string]string{}}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) normalize() {
	if strings.TrimSpace(s.doc.Reference.Language) == "" {
		s.doc.Reference.Language = "en"
	}
	if s.doc.Reference.ImagePrefix == "" {
		s.doc.Reference.ImagePrefix = "ENGLISH: "
	}
	for code, m := range s.doc.Marketplaces {
		m.Code = code
		if tag, err := language.Parse(m.Language); err == nil {
			m.Language = tag.String()
		}
		s.doc.Marketplaces[code] = m
	}
	for name, p := range s.doc.Platforms {
		p.Name = name
		s.doc.Platforms[name] = p
	}
	for name, t := range s.doc.BrandTones {
		t.Name = name
		s.doc.BrandTones[name] = t
	}
	for key, o := range s.doc.Occasions {
		o.Key = key
		s.doc.Occasions[key] = o
		for _, a := range o.Aliases {
			s.aliases[normalizeKey(a)] = key
		}
	}
	for tag, l := range s.doc.Locales {
		l.Tag = tag
		s.doc.Locales[tag] = l
	}
}

// Validate checks that the tables are consistent with each other.
func (s *Store) Validate() error {
	var problems []string
	if len(s.doc.Marketplaces) == 0 {
		problems = append(problems, "marketplaces 为空")
	}
	if _, ok := s.doc.Locales[s.doc.Reference.Language]; !ok {
		problems = append(problems, fmt.Sprintf("参考语言 %s 缺少文案模板", s.doc.Reference.Language))
	}
	for _, code := range sortedKeys(s.doc.Marketplaces) {
		m := s.doc.Marketplaces[code]
		if _, err := language.Parse(m.Language); err != nil {
			problems = append(problems, fmt.Sprintf("marketplace %s 语言标签无效：%s", code, m.Language))
			continue
		}
		if _, ok := s.doc.Locales[m.LanguageBase()]; !ok {
			problems = append(problems, fmt.Sprintf("marketplace %s 的语言 %s 缺少文案模板", code, m.Language))
		}
		if strings.TrimSpace(m.Currency) == "" {
			problems = append(problems, fmt.Sprintf("marketplace %s 缺少货币", code))
		}
	}
	for _, name := range sortedKeys(s.doc.Platforms) {
		p := s.doc.Platforms[name]
		if p.RichSections <= 0 || len(p.SectionKeys) != p.RichSections {
			problems = append(problems, fmt.Sprintf("platform %s 的 section_keys 数量（%d）与 rich_sections（%d）不一致", name, len(p.SectionKeys), p.RichSections))
		}
		if p.TitleMin <= 0 || p.TitleMax < p.TitleMin {
			problems = append(problems, fmt.Sprintf("platform %s 标题长度范围无效", name))
		}
		if p.BulletsMin <= 0 || p.BulletsMax < p.BulletsMin {
			problems = append(problems, fmt.Sprintf("platform %s 五点数量范围无效", name))
		}
		if p.DescriptionMin <= 0 || (p.DescriptionMax > 0 && p.DescriptionMax < p.DescriptionMin) {
			problems = append(problems, fmt.Sprintf("platform %s 描述长度范围无效", name))
		}
		if p.BackendMaxBytes <= 0 {
			problems = append(problems, fmt.Sprintf("platform %s backend_max_bytes 必须大于 0", name))
		}
	}
	for _, tag := range sortedKeys(s.doc.Locales) {
		l := s.doc.Locales[tag]
		if len(l.DescriptionParagraphs) == 0 || len(l.TitleFillers) == 0 || len(l.BulletTemplates) == 0 || len(l.BulletLabels) == 0 {
			problems = append(problems, fmt.Sprintf("locale %s 文案模板不完整", tag))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("目录配置校验失败：%s", strings.Join(problems, "；"))
	}
	return nil
}

func (s *Store) Reference() Reference {
	return s.doc.Reference
}

func (s *Store) Marketplace(code string) (Marketplace, error) {
	m, ok := s.doc.Marketplaces[normalizeKey(code)]
	if !ok {
		return Marketplace{}, &ConfigurationError{Kind: KindMarketplace, Value: code}
	}
	return m, nil
}

func (s *Store) Platform(name string) (Platform, error) {
	p, ok := s.doc.Platforms[normalizeKey(name)]
	if !ok {
		return Platform{}, &ConfigurationError{Kind: KindPlatform, Value: name}
	}
	return p, nil
}

func (s *Store) BrandTone(name string) (BrandTone, error) {
	t, ok := s.doc.BrandTones[normalizeKey(name)]
	if !ok {
		return BrandTone{}, &ConfigurationError{Kind: KindBrandTone, Value: name}
	}
	return t, nil
}

// Occasion resolves a canonical key or a market-specific alias such as
// "weihnachten". An empty key and "none" resolve to the empty occasion.
func (s *Store) Occasion(key string) (Occasion, error) {
	k := normalizeKey(key)
	if k == "" || k == NoOccasion {
		return Occasion{Key: NoOccasion}, nil
	}
	if o, ok := s.doc.Occasions[k]; ok {
		return o, nil
	}
	if canonical, ok := s.aliases[k]; ok {
		return s.doc.Occasions[canonical], nil
	}
	return Occasion{}, &ConfigurationError{Kind: KindOccasion, Value: key}
}

// Locale returns the text kit for a language tag. Region subtags are ignored.
func (s *Store) Locale(tag string) (Locale, error) {
	base := strings.ToLower(strings.TrimSpace(tag))
	if t, err := language.Parse(tag); err == nil {
		b, _ := t.Base()
		base = b.String()
	}
	l, ok := s.doc.Locales[base]
	if !ok {
		return Locale{}, &ConfigurationError{Kind: KindLanguage, Value: tag}
	}
	return l, nil
}

func (s *Store) MarketplaceCodes() []string {
	return sortedKeys(s.doc.Marketplaces)
}

func (s *Store) PlatformNames() []string {
	return sortedKeys(s.doc.Platforms)
}

func (s *Store) BrandToneNames() []string {
	return sortedKeys(s.doc.BrandTones)
}

func (s *Store) OccasionKeys() []string {
	return sortedKeys(s.doc.Occasions)
}

func normalizeKey(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, "-", "_")
	return strings.ReplaceAll(v, " ", "_")
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
