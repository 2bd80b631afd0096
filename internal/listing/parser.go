package listing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const Marker = "===Listing Product==="

var (
	nameLabels     = []string{"Name:", "产品名:"}
	brandLabels    = []string{"Brand:", "品牌名:"}
	categoryLabels = []string{"Category:", "分类:"}
	priceLabels    = []string{"Price:", "价格:"}
	currencyLabels = []string{"Currency:", "币种:"}

	featureHeadings     = []string{"# Features", "# 卖点"}
	keywordHeadings     = []string{"# Keywords", "# 关键词库"}
	descriptionHeadings = []string{"# Description", "# 描述"}
	categoryHeadings    = []string{"# Category", "# 分类"}
)

// Sheet is a parsed product sheet file.
type Sheet struct {
	Product  Product
	Warnings []string
}

// Parse reads a product sheet. Markdown fields fill whatever an optional YAML
// front matter block left empty.
func Parse(raw string) (Sheet, error) {
	body, ok := BodyAfterMarker(raw)
	if !ok {
		return Sheet{}, fmt.Errorf("文件不是产品资料格式（缺少首行标志 %s）", Marker)
	}

	var p Product
	front, body := splitFrontMatter(body)
	if front != "" {
		if err := yaml.Unmarshal([]byte(front), &p); err != nil {
			return Sheet{}, fmt.Errorf("front matter 格式错误：%w", err)
		}
	}
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&p.Name, parseField(body, nameLabels))
	fill(&p.Brand, parseField(body, brandLabels))
	fill(&p.Category, parseField(body, categoryLabels))
	fill(&p.Currency, parseField(body, currencyLabels))
	fill(&p.Description, parseParagraph(body, descriptionHeadings))
	fill(&p.Category, firstLineUnder(body, categoryHeadings))
	p.Features = append(p.Features, parseList(body, featureHeadings)...)
	p.SeedKeywords = append(p.SeedKeywords, parseList(body, keywordHeadings)...)

	var warnings []string
	if v := parseField(body, priceLabels); v != "" && p.Price == 0 {
		price, err := strconv.ParseFloat(strings.TrimLeft(v, "$€£¥ "), 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("价格无法解析，已忽略：%s", v))
		} else {
			p.Price = price
		}
	}
	if strings.TrimSpace(p.Name) == "" {
		return Sheet{}, fmt.Errorf("产品名称缺失")
	}
	if len(p.Features) == 0 {
		warnings = append(warnings, "未提供卖点，生成内容将只依赖名称和分类")
	}
	return Sheet{Product: p, Warnings: warnings}, nil
}

// splitFrontMatter separates a leading YAML block delimited by "---" lines.
func splitFrontMatter(body string) (string, string) {
	trimmed := strings.TrimLeft(body, "\n")
	if !strings.HasPrefix(trimmed, "---\n") {
		return "", body
	}
	rest := trimmed[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", body
	}
	front := rest[:end]
	after := rest[end+len("\n---"):]
	if i := strings.IndexByte(after, '\n'); i >= 0 {
		after = after[i+1:]
	} else {
		after = ""
	}
	return front, after
}

func IsProductSheet(raw string) bool {
	_, ok := BodyAfterMarker(raw)
	return ok
}

func BodyAfterMarker(raw string) (string, bool) {
	raw = strings.TrimPrefix(raw, "\ufeff")
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	idx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == Marker {
			idx = i
		}
		break
	}
	if idx < 0 {
		return "", false
	}
	if idx+1 >= len(lines) {
		return "", true
	}
	return strings.Join(lines[idx+1:], "\n"), true
}

func parseField(body string, labels []string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		for _, label := range labels {
			if strings.HasPrefix(line, label) {
				return strings.TrimSpace(strings.TrimPrefix(line, label))
			}
		}
	}
	return ""
}

func headingIndex(lines []string, headings []string) int {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, h := range headings {
			if strings.EqualFold(trimmed, h) {
				return i
			}
		}
	}
	return -1
}

func firstLineUnder(body string, headings []string) string {
	lines := strings.Split(body, "\n")
	i := headingIndex(lines, headings)
	if i < 0 {
		return ""
	}
	for j := i + 1; j < len(lines); j++ {
		next := strings.TrimSpace(lines[j])
		if next == "" {
			continue
		}
		if strings.HasPrefix(next, "#") {
			return ""
		}
		return next
	}
	return ""
}

var listPrefixRe = regexp.MustCompile(`^([0-9]{1,2}[\.)]|[-*•])\s*`)

func parseList(body string, headings []string) []string {
	lines := strings.Split(body, "\n")
	start := headingIndex(lines, headings)
	if start < 0 {
		return nil
	}

	out := make([]string, 0, 20)
	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			break
		}
		item := strings.TrimSpace(listPrefixRe.ReplaceAllString(line, ""))
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func parseParagraph(body string, headings []string) string {
	lines := strings.Split(body, "\n")
	start := headingIndex(lines, headings)
	if start < 0 {
		return ""
	}
	parts := []string{}
	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "#") {
			break
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
