package agent

// Command is the typed intent parsed from a single free-text prompt.
// The set of variants is closed; Dispatcher switches over it exhaustively,
// so adding a variant is a compile-time visible change.
type Command interface {
	isCommand()
}

type AddTask struct {
	Title       string
	Description string
}

type ListTasks struct {
	// Filter is reserved; every list phrasing currently lists everything.
	Filter string
}

type CompleteTask struct {
	ID int64
}

type DeleteTask struct {
	ID int64
}

type UpdateTask struct {
	ID       int64
	NewTitle string
}

// Unrecognized carries the raw input of a prompt no rule matched.
type Unrecognized struct {
	RawText string
}

func (AddTask) isCommand()      {}
func (ListTasks) isCommand()    {}
func (CompleteTask) isCommand() {}
func (DeleteTask) isCommand()   {}
func (UpdateTask) isCommand()   {}
func (Unrecognized) isCommand() {}
