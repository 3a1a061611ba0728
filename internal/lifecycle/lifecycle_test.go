package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{"draft", "active", true},
		{"active", "archived", true},
		{"archived", "draft", true},
		{"active", "draft", true},
		{"draft", "archived", false},
		{"archived", "active", false},
		{"draft", "draft", true},
	}
	for _, tc := range tests {
		err := FormStatus.Transition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s", tc.from, tc.to)
		var te *TransitionError
		assert.True(t, errors.As(err, &te))
		assert.Equal(t, tc.from, te.From)
	}
}

func TestUnknownTargetStatus(t *testing.T) {
	err := PostStatus.Transition("draft", "deleted")
	assert.ErrorIs(t, err, ErrUnknownStatus)
	assert.False(t, errors.Is(err, ErrIllegalTransition))
}

func TestLeadStatusTerminal(t *testing.T) {
	assert.Empty(t, LeadStatus.Next("converted"))
	assert.Equal(t, []string{"contacted", "lost"}, LeadStatus.Next("new"))
	assert.ErrorIs(t, LeadStatus.Transition("converted", "lost"), ErrIllegalTransition)
	assert.NoError(t, LeadStatus.Transition("lost", "new"))
}

func TestPostStatusScheduled(t *testing.T) {
	assert.NoError(t, PostStatus.Transition("draft", "scheduled"))
	assert.NoError(t, PostStatus.Transition("scheduled", "published"))
	assert.ErrorIs(t, PostStatus.Transition("published", "scheduled"), ErrIllegalTransition)
	assert.True(t, CaseStudyStatus.Valid("published"))
	assert.Equal(t, "draft", CaseStudyStatus.Initial())
}
