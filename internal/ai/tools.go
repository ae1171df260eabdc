package ai

// Tool names the executor understands.
const (
	ToolScreenshot    = "computer_screenshot"
	ToolClickMouse    = "computer_click_mouse"
	ToolTypeText      = "computer_type_text"
	ToolPressKeys     = "computer_press_keys"
	ToolScroll        = "computer_scroll"
	ToolSetTaskStatus = "set_task_status"
)

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

func object(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var coordinates = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"x": map[string]any{"type": "integer"},
		"y": map[string]any{"type": "integer"},
	},
	"required": []string{"x", "y"},
}

// AgentTools is the tool set offered to models when tool use is enabled.
func AgentTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolScreenshot,
			Description: "Capture a screenshot of the desktop.",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        ToolClickMouse,
			Description: "Move the mouse to the given coordinates and click.",
			InputSchema: object(map[string]any{
				"coordinates": coordinates,
				"button":      map[string]any{"type": "string", "enum": []string{"left", "right", "middle"}},
				"clickCount":  map[string]any{"type": "integer"},
			}, "button"),
		},
		{
			Name:        ToolTypeText,
			Description: "Type a string of text on the keyboard.",
			InputSchema: object(map[string]any{
				"text": map[string]any{"type": "string"},
			}, "text"),
		},
		{
			Name:        ToolPressKeys,
			Description: "Press and release a key combination.",
			InputSchema: object(map[string]any{
				"keys": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, "keys"),
		},
		{
			Name:        ToolScroll,
			Description: "Scroll at the given coordinates.",
			InputSchema: object(map[string]any{
				"coordinates": coordinates,
				"direction":   map[string]any{"type": "string", "enum": []string{"up", "down", "left", "right"}},
				"scrollCount": map[string]any{"type": "integer"},
			}, "direction"),
		},
		{
			Name:        ToolSetTaskStatus,
			Description: "Report that the task is completed, needs help from the user, or has failed.",
			InputSchema: object(map[string]any{
				"status":      map[string]any{"type": "string", "enum": []string{"completed", "needs_help", "failed"}},
				"description": map[string]any{"type": "string"},
			}, "status"),
		},
	}
}
