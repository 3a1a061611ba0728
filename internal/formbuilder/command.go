package formbuilder

import "fmt"

type Op string

const (
	OpAddSection        Op = "addSection"
	OpUpdateSection     Op = "updateSection"
	OpDeleteSection     Op = "deleteSection"
	OpAddQuestion       Op = "addQuestion"
	OpUpdateQuestion    Op = "updateQuestion"
	OpDeleteQuestion    Op = "deleteQuestion"
	OpDuplicateQuestion Op = "duplicateQuestion"
	OpMoveSection       Op = "moveSection"
	OpMoveQuestion      Op = "moveQuestion"
	OpDragEnd           Op = "dragEnd"
)

// Command is one editor action sent over the wire so a client can replay
// its edit log against the stored form.
type Command struct {
	Op         Op             `json:"op"`
	SectionID  string         `json:"sectionId,omitempty"`
	QuestionID string         `json:"questionId,omitempty"`
	ActiveID   string         `json:"activeId,omitempty"`
	OverID     string         `json:"overId,omitempty"`
	Type       QuestionType   `json:"type,omitempty"`
	Section    *SectionPatch  `json:"section,omitempty"`
	Question   *QuestionPatch `json:"question,omitempty"`
}

// CommandResult reports whether the command changed the tree and, for adds
// and duplicates, the id it created.
type CommandResult struct {
	Applied bool   `json:"applied"`
	ID      string `json:"id,omitempty"`
}

// Apply runs one command. Lookup misses are reported as Applied=false; only
// an unknown op is an error.
func (b *Builder) Apply(cmd Command) (CommandResult, error) {
	switch cmd.Op {
	case OpAddSection:
		id := b.AddSection()
		if cmd.Section != nil {
			b.UpdateSection(id, *cmd.Section)
		}
		return CommandResult{Applied: true, ID: id}, nil
	case OpUpdateSection:
		if cmd.Section == nil {
			return CommandResult{}, nil
		}
		return CommandResult{Applied: b.UpdateSection(cmd.SectionID, *cmd.Section)}, nil
	case OpDeleteSection:
		return CommandResult{Applied: b.DeleteSection(cmd.SectionID)}, nil
	case OpAddQuestion:
		id, ok := b.AddQuestion(cmd.SectionID, cmd.Type)
		if ok && cmd.Question != nil {
			b.UpdateQuestion(cmd.SectionID, id, *cmd.Question)
		}
		return CommandResult{Applied: ok, ID: id}, nil
	case OpUpdateQuestion:
		if cmd.Question == nil {
			return CommandResult{}, nil
		}
		return CommandResult{Applied: b.UpdateQuestion(cmd.SectionID, cmd.QuestionID, *cmd.Question)}, nil
	case OpDeleteQuestion:
		return CommandResult{Applied: b.DeleteQuestion(cmd.SectionID, cmd.QuestionID)}, nil
	case OpDuplicateQuestion:
		id, ok := b.DuplicateQuestion(cmd.SectionID, cmd.QuestionID)
		return CommandResult{Applied: ok, ID: id}, nil
	case OpMoveSection:
		return CommandResult{Applied: b.MoveSection(cmd.ActiveID, cmd.OverID)}, nil
	case OpMoveQuestion:
		return CommandResult{Applied: b.MoveQuestion(cmd.SectionID, cmd.ActiveID, cmd.OverID)}, nil
	case OpDragEnd:
		return CommandResult{Applied: b.DragEnd(cmd.ActiveID, cmd.OverID)}, nil
	default:
		return CommandResult{}, fmt.Errorf("unknown editor command %q", cmd.Op)
	}
}
