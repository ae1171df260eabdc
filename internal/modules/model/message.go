package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type BlockType string

const (
	BlockText             BlockType = "text"
	BlockImage            BlockType = "image"
	BlockDocument         BlockType = "document"
	BlockToolUse          BlockType = "tool_use"
	BlockToolResult       BlockType = "tool_result"
	BlockThinking         BlockType = "thinking"
	BlockRedactedThinking BlockType = "redacted_thinking"
)

// MediaSource carries inline base64 media for image and document blocks.
type MediaSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is one element of a message body. Which fields are set
// depends on Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image, document
	Source *MediaSource `json:"source,omitempty"`
	Name   string       `json:"name,omitempty"`
	Size   *int64       `json:"size,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	IsError   *bool          `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// redacted_thinking
	Data string `json:"data,omitempty"`
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type alias ContentBlock
	var a alias
	if err := sonic.Unmarshal(data, &a); err != nil {
		return err
	}
	switch a.Type {
	case BlockText, BlockImage, BlockDocument, BlockToolUse, BlockToolResult, BlockThinking, BlockRedactedThinking:
	default:
		return fmt.Errorf("unknown content block type %q", a.Type)
	}
	*b = ContentBlock(a)
	return nil
}

// MarshalJSON writes the fields each block type requires even when they are
// empty, so an empty tool input is sent as {} rather than dropped.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockText:
		return sonic.Marshal(struct {
			Type BlockType `json:"type"`
			Text string    `json:"text"`
		}{b.Type, b.Text})
	case BlockImage:
		return sonic.Marshal(struct {
			Type   BlockType    `json:"type"`
			Source *MediaSource `json:"source"`
		}{b.Type, b.Source})
	case BlockDocument:
		return sonic.Marshal(struct {
			Type   BlockType    `json:"type"`
			Source *MediaSource `json:"source"`
			Name   string       `json:"name,omitempty"`
			Size   *int64       `json:"size,omitempty"`
		}{b.Type, b.Source, b.Name, b.Size})
	case BlockToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return sonic.Marshal(struct {
			Type  BlockType      `json:"type"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		}{b.Type, b.ID, b.Name, input})
	case BlockToolResult:
		content := b.Content
		if content == nil {
			content = []ContentBlock{}
		}
		return sonic.Marshal(struct {
			Type      BlockType      `json:"type"`
			ToolUseID string         `json:"tool_use_id"`
			Content   []ContentBlock `json:"content"`
			IsError   *bool          `json:"is_error,omitempty"`
		}{b.Type, b.ToolUseID, content, b.IsError})
	case BlockThinking:
		return sonic.Marshal(struct {
			Type      BlockType `json:"type"`
			Thinking  string    `json:"thinking"`
			Signature string    `json:"signature"`
		}{b.Type, b.Thinking, b.Signature})
	case BlockRedactedThinking:
		return sonic.Marshal(struct {
			Type BlockType `json:"type"`
			Data string    `json:"data"`
		}{b.Type, b.Data})
	}
	type alias ContentBlock
	return sonic.Marshal(alias(b))
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func NewImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{Type: BlockImage, Source: &MediaSource{Type: "base64", MediaType: mediaType, Data: data}}
}

func NewDocumentBlock(mediaType, data, name string, size *int64) ContentBlock {
	return ContentBlock{
		Type:   BlockDocument,
		Source: &MediaSource{Type: "base64", MediaType: mediaType, Data: data},
		Name:   name,
		Size:   size,
	}
}

func NewToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

func NewToolResultBlock(toolUseID string, content []ContentBlock, isError bool) ContentBlock {
	if content == nil {
		content = []ContentBlock{}
	}
	b := ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
	if isError {
		b.IsError = &isError
	}
	return b
}

func NewThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: thinking, Signature: signature}
}

func NewRedactedThinkingBlock(data string) ContentBlock {
	return ContentBlock{Type: BlockRedactedThinking, Data: data}
}

type Message struct {
	ID        uuid.UUID                          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Content   datatypes.JSONType[[]ContentBlock] `gorm:"type:jsonb;not null" swaggertype:"array,object" json:"content"`
	Role      Role                               `gorm:"type:text;not null" json:"role"`
	TaskID    uuid.UUID                          `gorm:"type:uuid;not null;index:idx_task_created,priority:1" json:"task_id"`
	SummaryID *uuid.UUID                         `gorm:"type:uuid;index" json:"summary_id,omitempty"`
	UserID    *uuid.UUID                         `gorm:"type:uuid" json:"user_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;index:idx_task_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null" json:"updated_at"`

	// Message <-> Task
	Task *Task `gorm:"foreignKey:TaskID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (Message) TableName() string { return "messages" }

func NewMessage(taskID uuid.UUID, role Role, blocks []ContentBlock) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:        uuid.New(),
		Content:   datatypes.NewJSONType(blocks),
		Role:      role,
		TaskID:    taskID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *Message) Blocks() []ContentBlock {
	return m.Content.Data()
}

// SetContent replaces the body and bumps UpdatedAt.
func (m *Message) SetContent(blocks []ContentBlock) {
	m.Content = datatypes.NewJSONType(blocks)
	m.UpdatedAt = time.Now().UTC()
}

// ExtractText joins all top-level text blocks with newlines.
func (m *Message) ExtractText() string {
	var parts []string
	for _, b := range m.Blocks() {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (m *Message) HasToolUse() bool {
	for _, b := range m.Blocks() {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

func (m *Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Blocks() {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

func (m *Message) HasErrorResults() bool {
	for _, b := range m.Blocks() {
		if b.Type == BlockToolResult && b.IsError != nil && *b.IsError {
			return true
		}
	}
	return false
}
