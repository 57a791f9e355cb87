// Package planfile parses markdown plan files into executable tasks. A plan
// is a markdown document with optional YAML frontmatter and one "## Task N:
// Title" section per task.
package planfile

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/calder/foreman/internal/models"
)

var (
	taskHeadingRegex = regexp.MustCompile(`^Task\s+(\d+):\s+(.+)$`)
	typeRegex        = regexp.MustCompile(`\*\*Type\*\*:\s*([a-zA-Z_-]+)`)
	priorityRegex    = regexp.MustCompile(`\*\*Priority\*\*:\s*([a-zA-Z]+)`)
	targetRegex      = regexp.MustCompile("\\*\\*Target\\*\\*:\\s*`?([^`\n]+)`?")
	maxRetriesRegex  = regexp.MustCompile(`\*\*Max Retries\*\*:\s*(\d+)`)
	codeBlockRegex   = regexp.MustCompile("(?s)```.*?```")
)

// Defaults are plan-wide settings from the frontmatter. Per-task
// annotations override them.
type Defaults struct {
	Type       string `yaml:"default_type"`
	Priority   string `yaml:"default_priority"`
	MaxRetries int    `yaml:"max_retries"`
}

// Plan is the parsed form of a plan file.
type Plan struct {
	Defaults Defaults
	Tasks    []*models.Task
}

// Parser turns markdown plan documents into tasks.
type Parser struct {
	markdown goldmark.Markdown
}

func NewParser() *Parser {
	return &Parser{markdown: goldmark.New()}
}

// ParseFile parses the plan at path.
func (p *Parser) ParseFile(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads a full plan document and extracts its tasks in document
// order. Task headings inside fenced code blocks are ignored because they
// never become AST headings.
func (p *Parser) Parse(r io.Reader) (*Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	plan := &Plan{
		Defaults: Defaults{Type: "code", Priority: "normal", MaxRetries: 3},
	}
	body, frontmatter := splitFrontmatter(content)
	if frontmatter != nil {
		if err := yaml.Unmarshal(frontmatter, &plan.Defaults); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	sections, err := p.taskSections(body)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("plan contains no task sections")
	}

	seen := make(map[int]bool, len(sections))
	for _, sec := range sections {
		if seen[sec.number] {
			return nil, fmt.Errorf("duplicate task number %d", sec.number)
		}
		seen[sec.number] = true
		plan.Tasks = append(plan.Tasks, p.buildTask(plan.Defaults, sec))
	}
	return plan, nil
}

type taskSection struct {
	number int
	title  string
	body   string
}

// taskSections walks the goldmark AST for level-2 task headings and slices
// each section's body out of the source using the heading line offsets.
func (p *Parser) taskSections(source []byte) ([]taskSection, error) {
	doc := p.markdown.Parser().Parse(text.NewReader(source))

	type headingAt struct {
		start  int // byte offset of the heading line
		stop   int // byte offset just past the heading text
		isTask bool
		number int
		title  string
	}
	var headings []headingAt

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 2 || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}

		seg := heading.Lines().At(0)
		h := headingAt{start: lineStart(source, seg.Start), stop: seg.Stop}
		if matches := taskHeadingRegex.FindStringSubmatch(headingText(heading, source)); len(matches) == 3 {
			number, convErr := strconv.Atoi(matches[1])
			if convErr != nil {
				return ast.WalkStop, fmt.Errorf("invalid task number in heading %q", matches[0])
			}
			h.isTask = true
			h.number = number
			h.title = strings.TrimSpace(matches[2])
		}
		headings = append(headings, h)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(headings, func(i, j int) bool { return headings[i].start < headings[j].start })

	var sections []taskSection
	for i, h := range headings {
		if !h.isTask {
			continue
		}
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		sections = append(sections, taskSection{
			number: h.number,
			title:  h.title,
			body:   strings.TrimSpace(string(source[h.stop:end])),
		})
	}
	return sections, nil
}

// buildTask converts one section into a task, applying plan defaults where
// the section carries no annotation.
func (p *Parser) buildTask(defaults Defaults, sec taskSection) *models.Task {
	// Metadata annotations inside code examples must not leak into the task.
	meta := codeBlockRegex.ReplaceAllString(sec.body, "")

	taskType := defaults.Type
	if matches := typeRegex.FindStringSubmatch(meta); len(matches) > 1 {
		taskType = strings.ToLower(matches[1])
	}
	priority := models.ParsePriority(defaults.Priority)
	if matches := priorityRegex.FindStringSubmatch(meta); len(matches) > 1 {
		priority = models.ParsePriority(matches[1])
	}

	description := sec.title
	if sec.body != "" {
		description = sec.title + "\n\n" + sec.body
	}

	task := models.NewTask(taskType, description, priority)
	task.MaxRetries = defaults.MaxRetries
	if matches := maxRetriesRegex.FindStringSubmatch(meta); len(matches) > 1 {
		if n, err := strconv.Atoi(matches[1]); err == nil {
			task.MaxRetries = n
		}
	}
	if matches := targetRegex.FindStringSubmatch(meta); len(matches) > 1 {
		task.TargetPath = strings.TrimSpace(matches[1])
	}
	task.Metadata = map[string]interface{}{
		"plan_task_number": sec.number,
		"plan_title":       sec.title,
	}
	return task
}

func headingText(heading *ast.Heading, source []byte) string {
	var sb strings.Builder
	for c := heading.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(sb.String())
}

// lineStart backtracks from offset to the beginning of its line.
func lineStart(source []byte, offset int) int {
	for offset > 0 && source[offset-1] != '\n' {
		offset--
	}
	return offset
}

// splitFrontmatter separates a leading YAML frontmatter block from the
// document body. Returns the original content and nil when no complete
// frontmatter block is present.
func splitFrontmatter(content []byte) (body, frontmatter []byte) {
	lines := strings.Split(string(content), "\n")
	if len(lines) < 3 || strings.TrimSpace(lines[0]) != "---" {
		return content, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return []byte(strings.Join(lines[i+1:], "\n")), []byte(strings.Join(lines[1:i], "\n"))
		}
	}
	return content, nil
}
