package simulate

import (
	"context"
	"strings"
	"time"

	"github.com/robostep/flowdebug/types"
)

var (
	_ types.NodeExecutor = &Executor{}
)

// NewExecutor returns a node executor that fabricates plausible outcomes
// from the node type alone. It lets a flow be stepped through without a
// live automation engine: the debugger sees real outcomes, bindings and
// timings, just not real side effects.
func NewExecutor() *Executor {
	return &Executor{}
}

type Executor struct {
	// Delay is an optional artificial per-node latency.
	Delay time.Duration
}

func (e *Executor) Execute(ctx context.Context, node *types.NodeDefinition, globals types.Data) (*types.ExecutionResult, error) {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	category, action := splitType(node.Type)
	output := e.simulate(category, action, node.Config)

	return &types.ExecutionResult{
		Outcome:  types.OutcomeSuccess,
		Output:   output,
		Bindings: bindings(node, output),
	}, nil
}

// simulate mirrors what each node category would report on success.
func (e *Executor) simulate(category, action string, config types.Data) types.Data {
	switch category {
	case "trigger":
		return types.Data{"triggered": true, "timestamp": time.Now().UnixMilli()}

	case "logging":
		message, _ := config.GetString("message")
		level, exists := config.GetString("level")
		if !exists || level == "" {
			level = "INFO"
		}
		return types.Data{"logged": true, "message": message, "level": level}

	case "control":
		switch action {
		case "if_else":
			condition, _ := config.GetString("condition")
			result := false
			switch strings.ToLower(condition) {
			case "true", "1", "yes":
				result = true
			}
			return types.Data{"condition": condition, "result": result}
		case "for_each":
			return types.Data{"iteration": 0, "total": 0}
		case "delay":
			delayMs, exists := config.GetInt("delay_ms")
			if !exists {
				delayMs = 1000
			}
			return types.Data{"delayed_ms": delayMs}
		}

	case "variables":
		if action == "set" {
			name, _ := config.GetString("name")
			value, _ := config.Get("value")
			return types.Data{"name": name, "value": value}
		}

	case "browser", "web":
		url, _ := config.GetString("url")
		return types.Data{"url": url, "loaded": true}

	case "excel":
		filePath, _ := config.GetString("file_path")
		return types.Data{"file": filePath, "rows_read": 0}

	case "http":
		url, _ := config.GetString("url")
		return types.Data{"url": url, "status": 200, "body": types.Data{}}

	case "notification":
		return types.Data{"sent": true}
	}

	return types.Data{"executed": true}
}

// bindings exposes the simulated output under the node's declared binding
// name when the config carries one, otherwise under the node id.
func bindings(node *types.NodeDefinition, output types.Data) types.Data {
	name, exists := node.Config.GetString("bind_as")
	if !exists || name == "" {
		name = node.ID
	}
	return types.Data{name: output}
}

func splitType(nodeType string) (category, action string) {
	parts := strings.SplitN(nodeType, ".", 2)
	category = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	return category, action
}
