package editor

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/taskrelay/server/internal/modules/model"
)

// RemoveToolUseInputsStrategy blanks the input of old tool_use blocks so long
// histories stay within the model context.
type RemoveToolUseInputsStrategy struct {
	KeepRecentN int
}

func (s *RemoveToolUseInputsStrategy) Name() string {
	return "remove_tool_use_inputs"
}

// Apply keeps the most recent KeepRecentN tool_use blocks intact and replaces
// the input of older ones with an empty object. Modified messages are copies;
// the caller's messages are left untouched.
func (s *RemoveToolUseInputsStrategy) Apply(messages []*model.Message) ([]*model.Message, error) {
	if s.KeepRecentN < 0 {
		return nil, fmt.Errorf("keep_recent_n_tool_uses must be >= 0, got %d", s.KeepRecentN)
	}

	type position struct {
		msg   int
		block int
	}
	var positions []position
	for mi, msg := range messages {
		for bi, b := range msg.Blocks() {
			if b.Type == model.BlockToolUse {
				positions = append(positions, position{msg: mi, block: bi})
			}
		}
	}

	if len(positions) <= s.KeepRecentN {
		return messages, nil
	}

	strip := make(map[int][]int)
	for _, pos := range positions[:len(positions)-s.KeepRecentN] {
		strip[pos.msg] = append(strip[pos.msg], pos.block)
	}

	out := make([]*model.Message, len(messages))
	copy(out, messages)
	for mi, idxs := range strip {
		blocks := append([]model.ContentBlock(nil), messages[mi].Blocks()...)
		for _, bi := range idxs {
			blocks[bi].Input = map[string]any{}
		}
		m := *messages[mi]
		m.Content = datatypes.NewJSONType(blocks)
		out[mi] = &m
	}
	return out, nil
}

func createRemoveToolUseInputsStrategy(params map[string]any) (EditStrategy, error) {
	keep := 3
	if v, ok := params["keep_recent_n_tool_uses"]; ok {
		switch n := v.(type) {
		case float64:
			keep = int(n)
		case int:
			keep = n
		default:
			return nil, fmt.Errorf("keep_recent_n_tool_uses must be an integer, got %T", v)
		}
	}
	return &RemoveToolUseInputsStrategy{KeepRecentN: keep}, nil
}
