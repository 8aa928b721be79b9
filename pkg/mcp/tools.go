package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pario-ai/cachegate/pkg/cache"
	"github.com/pario-ai/cachegate/pkg/models"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"cachegate_cache_stats":     handleCacheStats,
	"cachegate_recent_activity": handleRecentActivity,
	"cachegate_key_status":      handleKeyStatus,
	"cachegate_models":          handleModels,
}

var emptyObject = map[string]any{"type": "object", "properties": map[string]any{}}

var allTools = []ToolDefinition{
	{
		Name:        "cachegate_cache_stats",
		Description: "Show response cache statistics (entries, hits, misses, hit rate).",
		InputSchema: emptyObject,
	},
	{
		Name:        "cachegate_recent_activity",
		Description: "Show the most recent cache hits, misses and uncached requests.",
		InputSchema: emptyObject,
	},
	{
		Name:        "cachegate_key_status",
		Description: "Show which upstream services have a provider key configured.",
		InputSchema: emptyObject,
	},
	{
		Name:        "cachegate_models",
		Description: "List catalog models, optionally for one service.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"service": map[string]any{
					"type":        "string",
					"enum":        models.Services,
					"description": "Only list models for this service (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}

	hitRate := float64(0)
	if stats.Requests > 0 {
		hitRate = float64(stats.Hits) / float64(stats.Requests) * 100
	}
	return textResult(fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Requests: %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Size, stats.Requests, stats.Hits, stats.Misses, hitRate))
}

func handleRecentActivity(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	entries, err := s.cache.RecentActivity(ctx)
	if err != nil {
		return errorResult("Error fetching activity: " + err.Error())
	}
	if len(entries) == 0 {
		return textResult("No recent activity.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-9s %-14s %s\n", "Time", "Type", "Service", "Prompt")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-20s %-9s %-14s %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, e.Service, cache.Snippet(e.Prompt))
	}
	return textResult(b.String())
}

func handleKeyStatus(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.keys == nil {
		return textResult("Provider keys are not configured.")
	}
	coverage, err := s.keys.Coverage(ctx)
	if err != nil {
		return errorResult("Error fetching key status: " + err.Error())
	}

	var b strings.Builder
	for _, svc := range models.Services {
		state := "missing"
		if coverage[svc] {
			state = "configured"
		}
		fmt.Fprintf(&b, "%-14s %s\n", svc, state)
	}
	if !coverage[models.ServiceGoogleGemini] {
		b.WriteString("\nWithout a google-gemini key, ollama responses are not cached.\n")
	}
	return textResult(b.String())
}

type modelsArgs struct {
	Service string `json:"service"`
}

func handleModels(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.models == nil {
		return textResult("Model catalog is not configured.")
	}
	var args modelsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	var (
		list []models.ModelRecord
		err  error
	)
	if args.Service != "" {
		if !models.Service(args.Service).Valid() {
			return errorResult("unknown service: " + args.Service)
		}
		list, err = s.models.ForService(ctx, models.Service(args.Service))
	} else {
		list, err = s.models.List(ctx)
	}
	if err != nil {
		return errorResult("Error fetching models: " + err.Error())
	}
	if len(list) == 0 {
		return textResult("No models found.")
	}

	var b strings.Builder
	for _, m := range list {
		fmt.Fprintf(&b, "%-14s %s\n", m.Service, m.Name)
	}
	return textResult(b.String())
}
