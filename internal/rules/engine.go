// Package rules corrects recognized questions before they are sent, using a
// small built-in table of commonly misheard medical terms plus an optional
// user rules file.
//
// A rules file holds one rule per line:
//
//	타이 레놀 => 타이레놀
//	s/아스피\s*린/아스피린/g
//
// Literal rules (`from => to`) replace every case-insensitive occurrence.
// Substitution rules use sed syntax with any non-alphanumeric delimiter and
// the flags i, g, m and s. Blank lines and lines starting with # are ignored.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrUnstable is returned when the rules keep rewriting the text beyond the
// iteration limit, which means two rules undo each other.
var ErrUnstable = errors.New("correction rules did not settle")

// BuiltIn are the corrections applied before any file rules.
var BuiltIn = []string{
	`타이 레놀 => 타이레놀`,
	`이부 프로펜 => 이부프로펜`,
	`아스 피린 => 아스피린`,
	`s/혈압\s+약/혈압약/g`,
	`s/소화\s+제/소화제/g`,
	`s/감기\s+약/감기약/g`,
}

type rule interface {
	apply(input string) (output string, changed bool)
}

// Engine applies deterministic substitutions until the text is stable.
type Engine struct {
	rules     []rule
	loopLimit int
}

// Options controls which rules are loaded.
type Options struct {
	Path        string
	LoopLimit   int
	SkipBuiltIn bool
}

// NewEngine loads the built-in corrections and the rules file at path. A
// missing file is not an error.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	return Load(Options{Path: path, LoopLimit: loopLimit})
}

func Load(opts Options) (*Engine, error) {
	if opts.LoopLimit <= 0 {
		opts.LoopLimit = 30
	}
	engine := &Engine{loopLimit: opts.LoopLimit}

	if !opts.SkipBuiltIn {
		builtIn, err := Parse(strings.Join(BuiltIn, "\n"))
		if err != nil {
			return nil, fmt.Errorf("built-in rules: %w", err)
		}
		engine.rules = append(engine.rules, builtIn.rules...)
	}

	if strings.TrimSpace(opts.Path) == "" {
		return engine, nil
	}
	contents, err := os.ReadFile(opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", opts.Path, err)
	}
	fromFile, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", opts.Path, err)
	}
	engine.rules = append(engine.rules, fromFile.rules...)
	return engine, nil
}

// Parse compiles rules text without the built-in table.
func Parse(contents string) (*Engine, error) {
	engine := &Engine{loopLimit: 30}
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			r   rule
			err error
		)
		switch {
		case isSubstitution(line):
			r, err = parseSubstitution(line)
		case strings.Contains(line, "=>"):
			r, err = parseLiteral(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		engine.rules = append(engine.rules, r)
	}
	return engine, nil
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply runs every rule in order, repeating until a full pass changes
// nothing. Runs of whitespace left behind by replacements are collapsed.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, r := range e.rules {
			if next, ok := r.apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return strings.Join(strings.Fields(result), " "), nil
		}
	}
	return text, fmt.Errorf("%w after %d passes", ErrUnstable, e.loopLimit)
}

type literal struct {
	re *regexp.Regexp
	to string
}

func parseLiteral(line string) (rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literal{re: re, to: strings.TrimSpace(to)}, nil
}

func (r literal) apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.to)
	return output, output != input
}

type substitution struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseSubstitution(line string) (rule, error) {
	delim := line[1]
	pattern, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	flags := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			flags += string(flag)
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + flags + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return substitution{re: re, replacement: replacement, global: global}, nil
}

func (r substitution) apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// readDelimited reads up to the next unescaped delim. Escapes are kept so
// the regexp compiler sees them.
func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var b strings.Builder
	escaped := false
	for i := start; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == delim:
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
	}
	return "", 0, errors.New("unterminated expression")
}

func isSubstitution(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	c := line[1]
	alnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	return !alnum && c != ' ' && c != '\t' && c < 0x80
}
