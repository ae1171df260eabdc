package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/taskrelay/server/internal/modules/model"
)

// ProcessedMessage is a message as the chat view shows it. TakeOver marks
// actions the operator performed while holding control.
type ProcessedMessage struct {
	model.Message
	TakeOver bool `json:"take_over,omitempty"`
}

// MessageGroup is a run of consecutive messages with the same role and
// takeover flag.
type MessageGroup struct {
	Role     model.Role         `json:"role"`
	Messages []ProcessedMessage `json:"messages"`
	TakeOver bool               `json:"take_over,omitempty"`
}

// ListRawMessages pages through the stored history exactly as written.
func (s *taskService) ListRawMessages(ctx context.Context, id uuid.UUID, page, limit int) ([]*model.Message, int64, error) {
	if _, err := s.lc.tasks.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	total, err := s.lc.msgs.CountByTask(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := s.lc.msgs.ListByTask(ctx, id, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// ListProcessedMessages returns one page of history shaped for a chat view.
func (s *taskService) ListProcessedMessages(ctx context.Context, id uuid.UUID, page, limit int) ([]MessageGroup, error) {
	msgs, _, err := s.ListRawMessages(ctx, id, page, limit)
	if err != nil {
		return nil, err
	}
	return groupMessages(processMessages(msgs)), nil
}

// processMessages rewrites user messages that carry only tool traffic:
// tool results alone are shown as the assistant's, and operator tool calls
// become assistant messages flagged as a takeover. Stored messages are not
// modified.
func processMessages(msgs []*model.Message) []ProcessedMessage {
	out := make([]ProcessedMessage, 0, len(msgs))
	for _, m := range msgs {
		pm := ProcessedMessage{Message: *m}
		if m.Role != model.RoleUser {
			out = append(out, pm)
			continue
		}

		blocks := m.Content.Data()
		if len(blocks) == 0 {
			out = append(out, pm)
			continue
		}

		onlyResults, onlyTools := true, true
		var uses []model.ContentBlock
		for _, b := range blocks {
			switch b.Type {
			case model.BlockToolResult:
			case model.BlockToolUse:
				onlyResults = false
				uses = append(uses, b)
			default:
				onlyResults, onlyTools = false, false
			}
		}

		switch {
		case onlyResults:
			pm.Role = model.RoleAssistant
		case onlyTools && len(uses) > 0:
			pm.Content = datatypes.NewJSONType(uses)
			pm.Role = model.RoleAssistant
			pm.TakeOver = true
		}
		out = append(out, pm)
	}
	return out
}

func groupMessages(msgs []ProcessedMessage) []MessageGroup {
	groups := make([]MessageGroup, 0)
	for _, m := range msgs {
		if n := len(groups); n > 0 && groups[n-1].Role == m.Role && groups[n-1].TakeOver == m.TakeOver {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, MessageGroup{Role: m.Role, Messages: []ProcessedMessage{m}, TakeOver: m.TakeOver})
	}
	return groups
}
