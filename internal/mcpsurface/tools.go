package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

func registerTools(s *server.MCPServer, tools *toolsurface.Surface, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List every agent in a workspace, with id, name, role, and status."),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace to list agents from")),
		),
		listAgentsHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("get_agent_status",
			mcp.WithDescription("Get the current lifecycle status of an agent by id."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
		),
		getAgentStatusHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("get_agent_summary",
			mcp.WithDescription("Get a compact summary of an agent: role, status, assigned task, and recent messages."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
		),
		getAgentSummaryHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("read_agent_conversation",
			mcp.WithDescription("Read an agent's conversation transcript, optionally bounded by turn range."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithNumber("from_turn", mcp.Description("First turn to include (optional)")),
			mcp.WithNumber("to_turn", mcp.Description("Last turn to include (optional)")),
		),
		readAgentConversationHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("create_agent",
			mcp.WithDescription("Create a new agent (ROUTA, CRAFTER, or GATE) in a workspace."),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			mcp.WithString("role", mcp.Required(), mcp.Description("ROUTA, CRAFTER, or GATE")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Agent name")),
			mcp.WithString("parent_id", mcp.Description("Parent agent id (optional)")),
			mcp.WithString("model_tier", mcp.Description("SMART or FAST (optional, defaults to SMART)")),
		),
		createAgentHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("delegate_task",
			mcp.WithDescription("Delegate a pending, unblocked task to an agent."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Assignee agent id")),
			mcp.WithString("delegated_by", mcp.Required(), mcp.Description("Agent id performing the delegation")),
		),
		delegateTaskHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("send_message_to_agent",
			mcp.WithDescription("Append a message to another agent's conversation."),
			mcp.WithString("from_id", mcp.Required(), mcp.Description("Sender agent id")),
			mcp.WithString("to_id", mcp.Required(), mcp.Description("Recipient agent id")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message content")),
		),
		sendMessageHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("subscribe_to_events",
			mcp.WithDescription("Subscribe the calling agent to a set of event type patterns."),
			mcp.WithString("caller_id", mcp.Required(), mcp.Description("Calling agent id")),
			mcp.WithString("caller_name", mcp.Required(), mcp.Description("Calling agent name")),
			mcp.WithArray("patterns", mcp.Required(), mcp.Description("Event type patterns, e.g. task:*, agent:completed, *")),
			mcp.WithBoolean("exclude_self", mcp.Description("Exclude events the caller itself caused")),
			mcp.WithBoolean("one_shot", mcp.Description("Auto-unsubscribe after the first delivered match")),
		),
		subscribeHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("wait_for_agent",
			mcp.WithDescription("One-shot subscribe to a target agent's completion, self-excluding."),
			mcp.WithString("caller_id", mcp.Required(), mcp.Description("Calling agent id")),
			mcp.WithString("target_id", mcp.Required(), mcp.Description("Agent id to wait on")),
		),
		waitForAgentHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("unsubscribe_from_events",
			mcp.WithDescription("Cancel a previously created subscription."),
			mcp.WithString("subscription_id", mcp.Required(), mcp.Description("Subscription id")),
		),
		unsubscribeHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("report_to_parent",
			mcp.WithDescription("Report task completion (or failure) back to the delegating parent agent."),
			mcp.WithString("parent_id", mcp.Required(), mcp.Description("Parent agent id")),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Reporting agent id")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("summary", mcp.Required(), mcp.Description("1-3 sentence completion summary")),
			mcp.WithBoolean("success", mcp.Required(), mcp.Description("Whether the task was completed successfully")),
		),
		reportToParentHandler(tools),
	)

	s.AddTool(
		mcp.NewTool("wake_or_create_task_agent",
			mcp.WithDescription("Reuse the task's active assignee if one exists and matches the role, otherwise create and delegate a fresh agent."),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("role", mcp.Required(), mcp.Description("CRAFTER or GATE")),
			mcp.WithString("delegated_by", mcp.Required(), mcp.Description("Agent id performing the delegation")),
		),
		wakeOrCreateTaskAgentHandler(tools),
	)

	log.Info("registered mcp tools", zap.Int("count", 12))
}

func toolResultJSON(res toolsurface.ToolResult) (*mcp.CallToolResult, error) {
	if !res.Success {
		return mcp.NewToolResultError(res.Error), nil
	}
	body, err := json.MarshalIndent(res.Data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func listAgentsHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.ListAgents(ctx, workspaceID))
	}
}

func getAgentStatusHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.GetAgentStatus(ctx, agentID))
	}
}

func getAgentSummaryHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.GetAgentSummary(ctx, agentID))
	}
}

func readAgentConversationHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args := req.GetArguments()
		from := intArg(args, "from_turn")
		to := intArg(args, "to_turn")
		return toolResultJSON(tools.ReadAgentConversation(ctx, agentID, from, to))
	}
}

// intArg reads an optional numeric argument from a raw MCP argument map.
// JSON numbers decode as float64, matching the teacher's GetArguments idiom
// for fields not covered by a typed Require*/Get* accessor.
func intArg(args map[string]interface{}, key string) *int {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	f, ok := raw.(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	raw, ok := args[key]
	if !ok {
		return def
	}
	b, ok := raw.(bool)
	if !ok {
		return def
	}
	return b
}

func stringSliceArg(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	var out []string
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return out, nil
}

func createAgentHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		role, err := req.RequireString("role")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tier := req.GetString("model_tier", string(model.TierSmart))

		var parentID *string
		if p := req.GetString("parent_id", ""); p != "" {
			parentID = &p
		}

		return toolResultJSON(tools.CreateAgent(ctx, toolsurface.CreateAgentInput{
			WorkspaceID: workspaceID,
			Role:        model.Role(role),
			Name:        name,
			ParentID:    parentID,
			ModelTier:   model.ModelTier(tier),
		}))
	}
}

func delegateTaskHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		delegatedBy, err := req.RequireString("delegated_by")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.DelegateTask(ctx, toolsurface.DelegateTaskInput{
			TaskID: taskID, AgentID: agentID, DelegatedBy: delegatedBy,
		}))
	}
}

func sendMessageHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fromID, err := req.RequireString("from_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		toID, err := req.RequireString("to_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.SendMessageToAgent(ctx, fromID, toID, content))
	}
}

func subscribeHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callerID, err := req.RequireString("caller_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		callerName, err := req.RequireString("caller_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args := req.GetArguments()
		rawPatterns, err := stringSliceArg(args, "patterns")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		excludeSelf := boolArg(args, "exclude_self", true)
		oneShot := boolArg(args, "one_shot", false)
		return toolResultJSON(tools.SubscribeToEvents(callerID, callerName, rawPatterns, excludeSelf, oneShot))
	}
}

func waitForAgentHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callerID, err := req.RequireString("caller_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		targetID, err := req.RequireString("target_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.WaitForAgent(callerID, targetID))
	}
}

func unsubscribeHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subID, err := req.RequireString("subscription_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.UnsubscribeFromEvents(subID))
	}
}

func reportToParentHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		parentID, err := req.RequireString("parent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskID, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		summary, err := req.RequireString("summary")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		success := boolArg(req.GetArguments(), "success", false)
		return toolResultJSON(tools.ReportToParent(ctx, toolsurface.ReportToParentInput{
			ParentID: parentID,
			Report: model.CompletionReport{
				AgentID: agentID,
				TaskID:  taskID,
				Summary: summary,
				Success: success,
			},
		}))
	}
}

func wakeOrCreateTaskAgentHandler(tools *toolsurface.Surface) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskID, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		role, err := req.RequireString("role")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		delegatedBy, err := req.RequireString("delegated_by")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResultJSON(tools.WakeOrCreateTaskAgent(ctx, toolsurface.WakeOrCreateTaskAgentInput{
			WorkspaceID: workspaceID,
			TaskID:      taskID,
			Role:        model.Role(role),
			DelegatedBy: delegatedBy,
		}))
	}
}
