// Package editor rewrites a task's message history before it is sent to a model.
package editor

import (
	"fmt"

	"github.com/taskrelay/server/internal/modules/model"
)

type EditStrategy interface {
	Name() string
	Apply(messages []*model.Message) ([]*model.Message, error)
}

type StrategyConfig struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

var factories = map[string]func(map[string]any) (EditStrategy, error){
	"remove_tool_use_inputs": createRemoveToolUseInputsStrategy,
}

func CreateStrategy(cfg StrategyConfig) (EditStrategy, error) {
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown edit strategy: %s", cfg.Type)
	}
	return f(cfg.Params)
}

// ApplyAll runs the strategies in order.
func ApplyAll(messages []*model.Message, strategies ...EditStrategy) ([]*model.Message, error) {
	var err error
	for _, s := range strategies {
		messages, err = s.Apply(messages)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return messages, nil
}
