package agent

import "testing"

func TestParseAddKeepsFullTitle(t *testing.T) {
	p := NewParser()
	// Regression: the title capture must be greedy or multi-word titles
	// get truncated.
	for _, input := range []string{"add buy milk and eggs", "add task buy milk and eggs", "ADD TASK buy milk and eggs", "create buy milk and eggs"} {
		cmd := p.Parse(input)
		add, ok := cmd.(AddTask)
		if !ok {
			t.Fatalf("parse %q: expected AddTask, got %T", input, cmd)
		}
		if add.Title != "buy milk and eggs" {
			t.Fatalf("parse %q: title %q", input, add.Title)
		}
		if add.Description != "" {
			t.Fatalf("parse %q: unexpected description %q", input, add.Description)
		}
	}
}

func TestParseAddTaskKeywordBoundaries(t *testing.T) {
	p := NewParser()

	// Bare "add task" is an empty title, not a task called "task".
	add, ok := p.Parse("add task").(AddTask)
	if !ok || add.Title != "" {
		t.Fatalf("expected AddTask with empty title, got %#v", p.Parse("add task"))
	}

	// The keyword is only reserved as a whole word.
	add, ok = p.Parse("add tasks to the board").(AddTask)
	if !ok || add.Title != "tasks to the board" {
		t.Fatalf("expected full title, got %#v", add)
	}
	add, ok = p.Parse("add task-tracker cleanup").(AddTask)
	if !ok || add.Title != "task-tracker cleanup" {
		t.Fatalf("expected hyphenated title kept, got %#v", add)
	}

	// "add" alone matches no rule.
	if _, ok := p.Parse("add").(Unrecognized); !ok {
		t.Fatalf("expected Unrecognized for bare add, got %#v", p.Parse("add"))
	}
}

func TestParseListVariants(t *testing.T) {
	p := NewParser()
	for _, input := range []string{"list", "list tasks", "show", "show tasks", "  LIST TASKS  "} {
		if _, ok := p.Parse(input).(ListTasks); !ok {
			t.Fatalf("parse %q: expected ListTasks, got %#v", input, p.Parse(input))
		}
	}
	// "list" must not swallow longer prompts.
	if _, ok := p.Parse("list tasks please").(Unrecognized); !ok {
		t.Fatalf("expected Unrecognized, got %#v", p.Parse("list tasks please"))
	}
}

func TestParseIDCommands(t *testing.T) {
	p := NewParser()
	if c, ok := p.Parse("complete 7").(CompleteTask); !ok || c.ID != 7 {
		t.Fatalf("complete: got %#v", p.Parse("complete 7"))
	}
	if c, ok := p.Parse("done 12").(CompleteTask); !ok || c.ID != 12 {
		t.Fatalf("done: got %#v", p.Parse("done 12"))
	}
	if c, ok := p.Parse("delete 3").(DeleteTask); !ok || c.ID != 3 {
		t.Fatalf("delete: got %#v", p.Parse("delete 3"))
	}
	if c, ok := p.Parse("remove 4").(DeleteTask); !ok || c.ID != 4 {
		t.Fatalf("remove: got %#v", p.Parse("remove 4"))
	}
	u, ok := p.Parse("update 5 walk the dog").(UpdateTask)
	if !ok || u.ID != 5 || u.NewTitle != "walk the dog" {
		t.Fatalf("update: got %#v", p.Parse("update 5 walk the dog"))
	}
}

func TestParseRejectsBadIDs(t *testing.T) {
	p := NewParser()
	for _, input := range []string{"complete 0", "delete 0", "complete 99999999999999999999", "complete seven"} {
		if _, ok := p.Parse(input).(Unrecognized); !ok {
			t.Fatalf("parse %q: expected Unrecognized, got %#v", input, p.Parse(input))
		}
	}
}

func TestParseUnrecognized(t *testing.T) {
	p := NewParser()
	cmd := p.Parse("  xyz nonsense  ")
	u, ok := cmd.(Unrecognized)
	if !ok {
		t.Fatalf("expected Unrecognized, got %T", cmd)
	}
	if u.RawText != "xyz nonsense" {
		t.Fatalf("expected trimmed raw text, got %q", u.RawText)
	}
}
