package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationAppendAndClear(t *testing.T) {
	c, err := NewConversation()
	require.NoError(t, err)
	assert.Len(t, c.ID, 36)

	c.Append(Turn{Role: RoleUser, Content: "When is the midterm?"})
	c.Append(Turn{Role: RoleAssistant, Content: "Week 8.", Sources: "Chunk 1: Midterm exam in week 8..."})

	turns := c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.False(t, turns[0].At.IsZero())
	assert.Equal(t, "Week 8.", turns[1].Content)

	turns[0].Content = "mutated"
	assert.Equal(t, "When is the midterm?", c.Turns()[0].Content)

	c.Clear()
	assert.Empty(t, c.Turns())
}

func TestConversationConcurrentAppend(t *testing.T) {
	c, err := NewConversation()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(Turn{Role: RoleUser, Content: "q"})
		}()
	}
	wg.Wait()
	assert.Len(t, c.Turns(), 20)
}

func TestExportHTML(t *testing.T) {
	c, err := NewConversation()
	require.NoError(t, err)
	c.Append(Turn{Role: RoleUser, Content: "How is the grade calculated?"})
	c.Append(Turn{Role: RoleAssistant, Content: "- Exams 40%\n- Projects 60%", Sources: "Chunk 1: Grading policy..."})
	c.Append(Turn{Role: RoleUser, Content: "<script>alert(1)</script>"})

	out, err := c.ExportHTML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<h1>Syllabus Q&amp;A</h1>"))
	assert.Contains(t, out, "<strong>Student:</strong> How is the grade calculated?")
	assert.Contains(t, out, "<li>Projects 60%</li>")
	assert.Contains(t, out, "<blockquote>")
	assert.Contains(t, out, "Sources: Chunk 1: Grading policy...")
	assert.NotContains(t, out, "<script>")
}

func TestStore(t *testing.T) {
	s := NewStore()
	c, err := s.Create()
	require.NoError(t, err)

	got, ok := s.Get(c.ID)
	require.True(t, ok)
	assert.Same(t, c, got)

	s.Delete(c.ID)
	_, ok = s.Get(c.ID)
	assert.False(t, ok)
}
