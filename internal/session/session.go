package session

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"syllabus-rag/internal/helper"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation. Sources is only set on answers.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Sources string    `json:"sources,omitempty"`
	At      time.Time `json:"at"`
}

// Conversation is the in-memory, append-only chat history of one student.
type Conversation struct {
	ID string

	mu    sync.Mutex
	turns []Turn
}

func NewConversation() (*Conversation, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &Conversation{ID: id}, nil
}

func (c *Conversation) Append(turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turn)
}

// Turns returns a copy of the history in order.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// Markdown renders the transcript with sources quoted under each answer.
func (c *Conversation) Markdown() string {
	var b strings.Builder
	b.WriteString("# Syllabus Q&A\n\n")
	for _, t := range c.Turns() {
		switch t.Role {
		case RoleUser:
			fmt.Fprintf(&b, "**Student:** %s\n\n", t.Content)
		default:
			fmt.Fprintf(&b, "**Assistant:** %s\n\n", t.Content)
			if t.Sources != "" {
				fmt.Fprintf(&b, "> Sources: %s\n\n", t.Sources)
			}
		}
	}
	return b.String()
}

// ExportHTML converts the Markdown transcript to HTML.
func (c *Conversation) ExportHTML() (string, error) {
	return markdownToHTML(c.Markdown())
}

func markdownToHTML(text string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Store keeps conversations by ID.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

func NewStore() *Store {
	return &Store{conversations: make(map[string]*Conversation)}
}

func (s *Store) Create() (*Conversation, error) {
	c, err := NewConversation()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
	return c, nil
}

func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
}
