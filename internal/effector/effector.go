// Package effector drives the desktop daemon that carries out computer tool calls.
package effector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/infra/httpclient"
	"github.com/taskrelay/server/internal/modules/model"
)

const toolPrefix = "computer_"

var ErrUnsupportedTool = errors.New("unsupported tool")

// Effector executes one tool_use block and returns the matching tool_result.
type Effector interface {
	Execute(ctx context.Context, taskID string, toolUse model.ContentBlock) (model.ContentBlock, error)
}

type httpEffector struct {
	c *httpclient.Client
}

func NewHTTP(baseURL string, timeout time.Duration, log *zap.Logger) Effector {
	return &httpEffector{c: httpclient.New("effector", baseURL, timeout, log)}
}

// Action maps a tool name to the daemon action it drives.
func Action(toolName string) (string, bool) {
	action, ok := strings.CutPrefix(toolName, toolPrefix)
	return action, ok && action != ""
}

func (e *httpEffector) Execute(ctx context.Context, taskID string, toolUse model.ContentBlock) (model.ContentBlock, error) {
	action, ok := Action(toolUse.Name)
	if !ok {
		return model.ContentBlock{}, fmt.Errorf("%w: %s", ErrUnsupportedTool, toolUse.Name)
	}

	req := make(map[string]any, len(toolUse.Input)+1)
	for k, v := range toolUse.Input {
		req[k] = v
	}
	req["action"] = action
	body, err := sonic.Marshal(req)
	if err != nil {
		return model.ContentBlock{}, fmt.Errorf("marshal %s: %w", action, err)
	}

	raw, err := e.c.PostRaw(ctx, "/computer-use", map[string]string{"X-Task-Id": taskID}, body)
	if err != nil {
		return model.ContentBlock{}, fmt.Errorf("%s: %w", action, err)
	}
	return ResultBlock(toolUse.ID, action, raw), nil
}

// ResultBlock turns a daemon reply ({success, error, result}) into a tool_result.
func ResultBlock(toolUseID, action string, raw []byte) model.ContentBlock {
	reply := gjson.ParseBytes(raw)
	if !reply.Get("success").Bool() {
		msg := reply.Get("error").String()
		if msg == "" {
			msg = action + " failed"
		}
		return model.NewToolResultBlock(toolUseID, []model.ContentBlock{model.NewTextBlock(msg)}, true)
	}

	content := []model.ContentBlock{model.NewTextBlock(action + " completed")}
	if shot := reply.Get("result.screenshot").String(); shot != "" {
		content = append(content, model.NewImageBlock("image/png", shot))
	} else if img := reply.Get("image").String(); img != "" {
		content = append(content, model.NewImageBlock("image/png", img))
	}
	return model.NewToolResultBlock(toolUseID, content, false)
}
