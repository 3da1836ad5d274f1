package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// rule pairs a compiled pattern with a resolver turning its captures into a
// Command. A resolver may decline (ok=false) to let later rules run.
type rule struct {
	re      *regexp.Regexp
	resolve func(m []string) (Command, bool)
}

// Parser maps free-text prompts to Commands with an ordered rule list.
// Rules are compiled once at construction; Parse is pure and safe for
// concurrent use.
type Parser struct {
	rules []rule
}

// NewParser builds the parser with the default rule set, most-specific
// rules first so a short keyword prefix cannot swallow a longer command.
func NewParser() *Parser {
	return &Parser{rules: []rule{
		{
			// Title capture is greedy on purpose: a lazy .+? truncates
			// multi-word titles to their first word.
			re:      regexp.MustCompile(`(?i)^(?:add|create)\s+(.+)$`),
			resolve: resolveAdd,
		},
		{
			re: regexp.MustCompile(`(?i)^(?:list|show)(?:\s+tasks)?$`),
			resolve: func([]string) (Command, bool) {
				return ListTasks{}, true
			},
		},
		{
			re: regexp.MustCompile(`(?i)^(?:complete|done)\s+(\d+)$`),
			resolve: func(m []string) (Command, bool) {
				id, ok := parseID(m[1])
				return CompleteTask{ID: id}, ok
			},
		},
		{
			re: regexp.MustCompile(`(?i)^(?:delete|remove)\s+(\d+)$`),
			resolve: func(m []string) (Command, bool) {
				id, ok := parseID(m[1])
				return DeleteTask{ID: id}, ok
			},
		},
		{
			re: regexp.MustCompile(`(?i)^update\s+(\d+)\s+(.+)$`),
			resolve: func(m []string) (Command, bool) {
				id, ok := parseID(m[1])
				return UpdateTask{ID: id, NewTitle: strings.TrimSpace(m[2])}, ok
			},
		},
	}}
}

// Parse resolves a prompt to a Command. It never fails: input that matches
// no rule, or carries an unusable numeric capture, comes back as
// Unrecognized with the trimmed raw text.
func (p *Parser) Parse(text string) Command {
	trimmed := strings.TrimSpace(text)
	for _, r := range p.rules {
		m := r.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if cmd, ok := r.resolve(m); ok {
			return cmd
		}
	}
	return Unrecognized{RawText: trimmed}
}

// resolveAdd strips the optional "task" keyword after add/create. The
// keyword is reserved only as a whole leading word: "add task buy milk"
// titles "buy milk", while "add task-tracker cleanup" keeps its hyphenated
// first word. Bare "add task" resolves to an empty title and is rejected at
// dispatch, not treated as a literal title.
func resolveAdd(m []string) (Command, bool) {
	title := strings.TrimSpace(m[1])
	switch {
	case strings.EqualFold(title, "task"):
		title = ""
	case len(title) > 5 && strings.EqualFold(title[:5], "task "):
		title = strings.TrimSpace(title[5:])
	}
	return AddTask{Title: title, Description: ""}, true
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
