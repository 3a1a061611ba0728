package formbuilder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyReplaysEditLog(t *testing.T) {
	b, _ := newTestBuilder(t)

	var log []Command
	require.NoError(t, json.Unmarshal([]byte(`[
		{"op":"addSection","section":{"title":"Company"}},
		{"op":"addSection"},
		{"op":"addQuestion","sectionId":"id2","type":"radio","question":{"label":"Size"}},
		{"op":"addQuestion","sectionId":"id2","type":"text"},
		{"op":"duplicateQuestion","sectionId":"id2","questionId":"id4"},
		{"op":"dragEnd","activeId":"id6","overId":"id4"},
		{"op":"moveSection","activeId":"id3","overId":"id2"},
		{"op":"deleteQuestion","sectionId":"id2","questionId":"id5"}
	]`), &log))

	var created []string
	for _, cmd := range log {
		res, err := b.Apply(cmd)
		require.NoError(t, err)
		require.True(t, res.Applied, "command %s", cmd.Op)
		if res.ID != "" {
			created = append(created, res.ID)
		}
	}
	assert.Equal(t, []string{"id2", "id3", "id4", "id5", "id6"}, created)

	f := b.Form()
	require.Len(t, f.Sections, 2)
	assert.Equal(t, "id3", f.Sections[0].ID)
	assert.Equal(t, "Company", f.Sections[1].Title)
	qs := f.Sections[1].Questions
	require.Len(t, qs, 2)
	assert.Equal(t, "id6", qs[0].ID)
	assert.Equal(t, "Size (Copy)", qs[0].Label)
	assert.Equal(t, "id4", qs[1].ID)
	assert.Equal(t, 0, qs[0].Order)
	assert.Equal(t, 1, qs[1].Order)

	f.Title = "Edited"
	assert.NoError(t, ValidateForm(f))
}

func TestApplyMissesAndUnknownOps(t *testing.T) {
	b, _ := newTestBuilder(t)
	sid, _ := b.Apply(Command{Op: OpAddSection})

	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "update section without patch", cmd: Command{Op: OpUpdateSection, SectionID: sid.ID}},
		{name: "update unknown section", cmd: Command{Op: OpUpdateSection, SectionID: "nope", Section: &SectionPatch{}}},
		{name: "add question unknown type", cmd: Command{Op: OpAddQuestion, SectionID: sid.ID, Type: "matrix"}},
		{name: "delete unknown question", cmd: Command{Op: OpDeleteQuestion, SectionID: sid.ID, QuestionID: "q"}},
		{name: "update question without patch", cmd: Command{Op: OpUpdateQuestion, SectionID: sid.ID, QuestionID: "q"}},
		{name: "drag without target", cmd: Command{Op: OpDragEnd, ActiveID: sid.ID}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := b.Apply(tc.cmd)
			require.NoError(t, err)
			assert.False(t, res.Applied)
		})
	}

	_, err := b.Apply(Command{Op: "renameForm"})
	assert.Error(t, err)
}
