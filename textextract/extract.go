// Package textextract pulls structured content out of free-form model
// responses. Every extractor tries several strategies in order because
// output formatting drifts between models even with explicit instructions.
package textextract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	latexBlockRe = regexp.MustCompile("(?s)```latex\\s*(.*?)```")
	texBlockRe   = regexp.MustCompile("(?s)```tex\\s*(.*?)```")
	anyBlockRe   = regexp.MustCompile("(?s)```\\s*(.*?)```")
	jsonBlockRe  = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	mdBlockRe    = regexp.MustCompile("(?s)```markdown\\s*(.*?)```")

	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// stripThinking removes <think>...</think> reasoning blocks. Reasoning
// models emit partial code inside them that confuses later patterns.
func stripThinking(text string) string {
	return thinkBlockRe.ReplaceAllString(text, "")
}

// ExtractLaTeX extracts a LaTeX document from a model response.
// Returns "" when nothing parseable is found.
//
// Strategies, in order:
//  1. ```latex ... ``` code block
//  2. ```tex ... ``` code block
//  3. any ``` ... ``` block containing \documentclass
//  4. raw \documentclass ... \end{document} substring
func ExtractLaTeX(text string) string {
	text = stripThinking(text)

	for _, re := range []*regexp.Regexp{latexBlockRe, texBlockRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			content := strings.TrimSpace(m[1])
			if strings.Contains(content, `\documentclass`) {
				return content
			}
		}
	}

	for _, m := range anyBlockRe.FindAllStringSubmatch(text, -1) {
		content := strings.TrimSpace(m[1])
		if strings.Contains(content, `\documentclass`) {
			return content
		}
	}

	start := strings.Index(text, `\documentclass`)
	end := strings.LastIndex(text, `\end{document}`)
	if start != -1 && end != -1 && end >= start {
		return strings.TrimSpace(text[start : end+len(`\end{document}`)])
	}

	return ""
}

var markdownListRe = regexp.MustCompile(
	`(?m)(\\section\*\{[^}]+\}(?:\s*\n\\vspace\{[^}]+\})?)\s*\n((?:^- .+\n?)+)`,
)

var listItemRe = regexp.MustCompile(`(?m)^- `)

// FixMarkdownLists converts bare "- item" lines under \section* headings
// into proper LaTeX itemize blocks. Models sometimes forget the itemize
// wrapper and emit markdown-style bullets, which render as one merged
// paragraph in LaTeX.
func FixMarkdownLists(tex string) string {
	return markdownListRe.ReplaceAllStringFunc(tex, func(block string) string {
		m := markdownListRe.FindStringSubmatch(block)
		pre := m[1]
		items := listItemRe.ReplaceAllString(strings.TrimSpace(m[2]), `\item `)
		return pre + "\n" +
			`\begin{itemize}[leftmargin=*, label=$\bullet$, itemsep=2pt, parsep=0pt]` + "\n" +
			items + "\n" +
			`\end{itemize}`
	})
}

// ATSReport holds the two halves of an ATS check response. Either half
// may be missing when the model ignored the output format.
type ATSReport struct {
	JSON     map[string]any
	Markdown string
}

// CoveragePct returns the coverage percentage from the JSON half, or -1
// when the report carries no usable score.
func (r *ATSReport) CoveragePct() float64 {
	if r == nil || r.JSON == nil {
		return -1
	}
	score, ok := r.JSON["coverage_score"].(map[string]any)
	if !ok {
		return -1
	}
	pct, ok := score["coverage_pct"].(float64)
	if !ok {
		return -1
	}
	return pct
}

// Verdict returns the verdict string from the JSON half, or "UNKNOWN".
func (r *ATSReport) Verdict() string {
	if r == nil || r.JSON == nil {
		return "UNKNOWN"
	}
	score, ok := r.JSON["coverage_score"].(map[string]any)
	if !ok {
		return "UNKNOWN"
	}
	v, ok := score["verdict"].(string)
	if !ok || v == "" {
		return "UNKNOWN"
	}
	return v
}

// SuggestedEdits returns the suggested_edits list from the JSON half.
func (r *ATSReport) SuggestedEdits() []any {
	if r == nil || r.JSON == nil {
		return nil
	}
	edits, _ := r.JSON["suggested_edits"].([]any)
	return edits
}

// ParseATSReport extracts the JSON and Markdown halves of an ATS check
// response. The JSON half comes from a ```json block or, failing that,
// the whole response. The Markdown half comes from a ```markdown block,
// a "# ATS Check" header, or is synthesized from the JSON.
func ParseATSReport(text string) *ATSReport {
	text = stripThinking(text)
	report := &ATSReport{}

	if m := jsonBlockRe.FindStringSubmatch(text); m != nil {
		report.JSON = safeParseJSON(strings.TrimSpace(m[1]))
	}
	if report.JSON == nil {
		report.JSON = safeParseJSON(strings.TrimSpace(text))
	}

	if m := mdBlockRe.FindStringSubmatch(text); m != nil {
		report.Markdown = strings.TrimSpace(m[1])
	} else if idx := strings.Index(text, "# ATS Check"); idx != -1 {
		md := text[idx:]
		// Stop at a JSON block if present
		if jsonStart := strings.Index(md, "```json"); jsonStart > 0 {
			md = md[:jsonStart]
		}
		report.Markdown = strings.TrimSpace(md)
	}

	if report.JSON != nil && report.Markdown == "" {
		report.Markdown = minimalMarkdown(report.JSON)
	}

	return report
}

func minimalMarkdown(j map[string]any) string {
	company, _ := j["company"].(string)
	if company == "" {
		company = "?"
	}
	title, _ := j["job_title"].(string)
	if title == "" {
		title = "?"
	}
	pct := "?"
	verdict := "?"
	if score, ok := j["coverage_score"].(map[string]any); ok {
		if p, ok := score["coverage_pct"].(float64); ok {
			pct = fmt.Sprintf("%g", p)
		}
		if v, ok := score["verdict"].(string); ok && v != "" {
			verdict = v
		}
	}
	return fmt.Sprintf("# ATS Check: %s - %s\n\nCoverage: %s%%\nVerdict: %s\n",
		company, title, pct, verdict)
}

// safeParseJSON parses a JSON object, retrying once after removing
// trailing commas, the most common model JSON error.
func safeParseJSON(raw string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out
	}
	fixed := trailingCommaRe.ReplaceAllString(raw, "$1")
	if err := json.Unmarshal([]byte(fixed), &out); err == nil {
		return out
	}
	return nil
}

// QA is one extracted question/answer pair.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

var (
	qaHeaderQRe = regexp.MustCompile(`(?im)^###?\s*Q(?:uestion)?[:\s]+`)
	qaHeaderARe = regexp.MustCompile(`(?im)^###?\s*A(?:nswer)?[:\s]+`)
	qaPrefixQRe = regexp.MustCompile(`(?im)^Q[:\s]+`)
	qaPrefixARe = regexp.MustCompile(`(?im)^A[:\s]+`)

	qaLeadingJunkRe = regexp.MustCompile(`^[\d#.*]+\s*`)
)

// ParseQAAnswers extracts question/answer pairs from a model response.
//
// Strategies, in order:
//  1. "### Q:" / "### A:" markdown header pattern
//  2. bare "Q:" / "A:" prefix pattern
//  3. numbered sections split on "---" separators
func ParseQAAnswers(text string) []QA {
	text = stripThinking(text)

	if pairs := extractPairs(qaHeaderQRe, qaHeaderARe, text); len(pairs) > 0 {
		return pairs
	}
	if pairs := extractPairs(qaPrefixQRe, qaPrefixARe, text); len(pairs) > 0 {
		return pairs
	}

	var pairs []QA
	for _, section := range strings.Split(text, "---") {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		parts := strings.SplitN(section, "\n", 2)
		if len(parts) != 2 {
			continue
		}
		q := strings.TrimSpace(qaLeadingJunkRe.ReplaceAllString(parts[0], ""))
		a := strings.TrimSpace(parts[1])
		if q != "" && len(a) > 20 {
			pairs = append(pairs, QA{Question: q, Answer: a})
		}
	}
	return pairs
}

// extractPairs slices the text at each question marker, then splits each
// slice at its answer marker. RE2 has no lookahead, so pair boundaries
// are found by position rather than by a single pattern.
func extractPairs(qRe, aRe *regexp.Regexp, text string) []QA {
	qLocs := qRe.FindAllStringIndex(text, -1)
	if len(qLocs) == 0 {
		return nil
	}
	var pairs []QA
	for i, loc := range qLocs {
		end := len(text)
		if i+1 < len(qLocs) {
			end = qLocs[i+1][0]
		}
		seg := text[loc[1]:end]
		aLoc := aRe.FindStringIndex(seg)
		if aLoc == nil {
			continue
		}
		q := strings.TrimSpace(seg[:aLoc[0]])
		a := strings.TrimSpace(seg[aLoc[1]:])
		if idx := strings.Index(a, "\n---"); idx != -1 {
			a = strings.TrimSpace(a[:idx])
		}
		if q != "" && a != "" {
			pairs = append(pairs, QA{Question: q, Answer: a})
		}
	}
	return pairs
}
