package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"listory/internal/listing"
)

type Step string

const (
	StepDirect   Step = "direct"
	StepFences   Step = "fences"
	StepRepaired Step = "repaired"
	StepRegex    Step = "regex"
	StepFailed   Step = "failed"
)

// Outcome is what could be recovered from one model response.
type Outcome struct {
	Plan    listing.ContentPlan
	Step    Step
	Repairs []string
	Found   []string
}

// ParseFailure means not a single mandatory field could be recovered.
type ParseFailure struct {
	Step    Step
	Repairs []string
	Reason  string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("无法从模型响应中提取内容（%s）：%s", e.Step, e.Reason)
}

// Extract runs the recovery steps in order and stops at the first one that
// yields a mandatory field.
func Extract(raw string) (Outcome, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Outcome{Step: StepFailed}, &ParseFailure{Step: StepFailed, Reason: "响应为空"}
	}
	text := StripFences(trimmed)
	step := StepDirect
	if text != trimmed {
		step = StepFences
	}

	var repairs []string
	for i, payload := range Candidates(text) {
		doc := payload
		docStep := step
		if !json.Valid([]byte(doc)) {
			var applied []string
			doc, applied = Repair(doc)
			docStep = StepRepaired
			if i == 0 {
				repairs = applied
			}
			if !json.Valid([]byte(doc)) {
				continue
			}
			repairs = applied
		}
		plan, found := mapPlan(doc)
		if plan.HasMandatory() {
			return Outcome{Plan: plan, Step: docStep, Repairs: repairs, Found: found}, nil
		}
	}

	plan, found := regexPlan(text)
	if plan.HasMandatory() {
		return Outcome{Plan: plan, Step: StepRegex, Repairs: repairs, Found: found}, nil
	}
	return Outcome{Step: StepFailed, Repairs: repairs}, &ParseFailure{Step: StepFailed, Repairs: repairs, Reason: "未找到标题、五点或描述"}
}

// StripFences removes a Markdown code fence around the payload, and any
// prose before the opening fence.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	i := strings.Index(t, "```")
	if i < 0 {
		return t
	}
	body := t[i+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.ToLower(strings.TrimSpace(body[:nl]))
		if tag == "" || isFenceTag(tag) {
			body = body[nl+1:]
		}
	} else {
		for _, tag := range fenceTags {
			if strings.HasPrefix(strings.ToLower(body), tag) {
				body = body[len(tag):]
				break
			}
		}
	}
	if j := strings.Index(body, "```"); j >= 0 {
		body = body[:j]
	}
	return strings.TrimSpace(body)
}

var fenceTags = []string{"json5", "jsonc", "json", "javascript", "text", "markdown"}

func isFenceTag(tag string) bool {
	for _, t := range fenceTags {
		if tag == t {
			return true
		}
	}
	return false
}

// Candidates lists the top-level brace-delimited spans of text in order,
// honouring strings and escapes. Objects nested inside an earlier span are
// never listed on their own. The last one may be an unterminated tail.
func Candidates(text string) []string {
	var out []string
	for i := 0; i < len(text); {
		start := strings.IndexByte(text[i:], '{')
		if start < 0 {
			break
		}
		start += i
		candidate, complete := balancedFrom(text, start)
		out = append(out, candidate)
		if !complete {
			break
		}
		i = start + len(candidate)
	}
	return out
}

func balancedFrom(text string, start int) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return text[start:], false
}

var (
	titleFieldRe  = regexp.MustCompile(`"(?:title|productTitle|product_title)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	descFieldRe   = regexp.MustCompile(`"(?:description|productDescription|product_description|long_description)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	bulletsRe     = regexp.MustCompile(`(?s)"(?:bullets|bulletPoints|bullet_points)"\s*:\s*\[(.*?)(?:\]|$)`)
	quotedRe      = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	titleLineRe   = regexp.MustCompile(`(?im)^\s*(?:#+\s*)?\**(?:title|product title)\**\s*[:：]\s*(.+)$`)
	descLineRe    = regexp.MustCompile(`(?im)^\s*(?:#+\s*)?\**(?:description|product description)\**\s*[:：]\s*(.+)$`)
	bulletLineRe  = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	truncStringRe = regexp.MustCompile(`"(?:title|productTitle)"\s*:\s*"((?:[^"\\]|\\.)+)$`)
)

// regexPlan recovers the mandatory fields from text that is not JSON at all
// or too broken to repair.
func regexPlan(text string) (listing.ContentPlan, []string) {
	var plan listing.ContentPlan
	found := []string{}

	if m := titleFieldRe.FindStringSubmatch(text); m != nil {
		plan.Title = unquote(m[1])
	} else if m := titleLineRe.FindStringSubmatch(text); m != nil {
		plan.Title = strings.TrimSpace(m[1])
	} else if m := truncStringRe.FindStringSubmatch(text); m != nil {
		plan.Title = unquote(m[1])
	}
	if strings.TrimSpace(plan.Title) != "" {
		found = append(found, "title")
	}

	if m := bulletsRe.FindStringSubmatch(text); m != nil {
		for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
			if b := strings.TrimSpace(unquote(q[1])); b != "" {
				plan.Bullets = append(plan.Bullets, b)
			}
		}
	}
	if len(plan.Bullets) == 0 && !strings.Contains(text, "{") {
		for _, m := range bulletLineRe.FindAllStringSubmatch(text, -1) {
			if b := strings.TrimSpace(m[1]); b != "" {
				plan.Bullets = append(plan.Bullets, b)
			}
		}
	}
	if len(plan.Bullets) > 0 {
		found = append(found, "bullets")
	}

	if m := descFieldRe.FindStringSubmatch(text); m != nil {
		plan.Description = unquote(m[1])
	} else if m := descLineRe.FindStringSubmatch(text); m != nil {
		plan.Description = strings.TrimSpace(m[1])
	}
	if strings.TrimSpace(plan.Description) != "" {
		found = append(found, "description")
	}
	return plan, found
}

func unquote(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}
