package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
)

// usageMessage is one assistant record with token usage, parsed out of a
// Claude Code session JSONL line.
type usageMessage struct {
	Model             string
	InputTokens       int64
	OutputTokens      int64
	CacheReadTokens   int64
	CacheCreateTokens int64
}

// jsonlRecord mirrors the subset of a session JSONL line herd_harvest_tokens
// cares about: type=="assistant" records carrying message.usage and
// message.model, everything else (and every malformed line) is skipped.
type jsonlRecord struct {
	Type    string `json:"type"`
	Message struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// findProjectSessionDir locates the Claude Code session directory for a
// project path: the hash is the project path with path separators replaced
// by "-", rooted under ~/.claude/projects.
func findProjectSessionDir(projectPath string) (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	hash := strings.ReplaceAll(projectPath, string(os.PathSeparator), "-")
	dir := filepath.Join(home, ".claude", "projects", hash)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

// parseJSONLSessions scans every *.jsonl file in dir for assistant messages
// carrying usage data, skipping malformed lines and unreadable files
// silently.
func parseJSONLSessions(dir string) []usageMessage {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil
	}

	var out []usageMessage
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec jsonlRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				continue
			}
			if rec.Type != "assistant" || rec.Message.Model == "" {
				continue
			}
			out = append(out, usageMessage{
				Model:             rec.Message.Model,
				InputTokens:       rec.Message.Usage.InputTokens,
				OutputTokens:      rec.Message.Usage.OutputTokens,
				CacheReadTokens:   rec.Message.Usage.CacheReadInputTokens,
				CacheCreateTokens: rec.Message.Usage.CacheCreationInputTokens,
			})
		}
		f.Close()
	}
	return out
}

// modelTotals is the per-model running tally aggregateByModel accumulates.
type modelTotals struct {
	InputTokens       int64
	OutputTokens      int64
	CacheReadTokens   int64
	CacheCreateTokens int64
}

func aggregateByModel(messages []usageMessage) map[string]modelTotals {
	agg := make(map[string]modelTotals)
	for _, m := range messages {
		t := agg[m.Model]
		t.InputTokens += m.InputTokens
		t.OutputTokens += m.OutputTokens
		t.CacheReadTokens += m.CacheReadTokens
		t.CacheCreateTokens += m.CacheCreateTokens
		agg[m.Model] = t
	}
	return agg
}

// calculateCost prices a model's usage against its stored per-million-token
// rates, defaulting to zero cost when the model is unknown.
func calculateCost(rt *runtime.Runtime, modelCode string, t modelTotals) decimal.Decimal {
	model, err := rt.OpStore.GetModel(modelCode)
	if err != nil || model == nil {
		return decimal.Zero
	}
	perM := func(tokens int64, rate float64) decimal.Decimal {
		return decimal.NewFromInt(tokens).Div(decimal.NewFromInt(1_000_000)).Mul(decimal.NewFromFloat(rate))
	}
	cost := decimal.Zero
	cost = cost.Add(perM(t.InputTokens, model.InputPerM))
	cost = cost.Add(perM(t.OutputTokens, model.OutputPerM))
	cost = cost.Add(perM(t.CacheReadTokens, model.CacheReadPerM))
	cost = cost.Add(perM(t.CacheCreateTokens, model.CacheCreatePerM))
	return cost
}

// HerdHarvestTokens implements herd_harvest_tokens: parses Claude
// Code session JSONL files for an agent's project, aggregates token usage
// per model, prices it, and appends one token event per model.
func HerdHarvestTokens(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		instanceCode := strArg(args, "agent_instance_code")
		projectPath := strArg(args, "project_path")
		if instanceCode == "" || projectPath == "" {
			return errResult("herd_harvest_tokens: agent_instance_code and project_path are required"), nil
		}

		sessionDir, ok := findProjectSessionDir(projectPath)
		if !ok {
			return map[string]any{
				"success":         false,
				"error":           "could not locate session directory for " + projectPath,
				"records_written": 0,
			}, nil
		}

		messages := parseJSONLSessions(sessionDir)
		if len(messages) == 0 {
			return okResult(map[string]any{
				"message":         "no token usage data found in session files",
				"records_written": 0,
				"total_cost_usd":  "0",
			}), nil
		}

		usage := aggregateByModel(messages)
		now := time.Now().UTC()

		totalCost := decimal.Zero
		models := make([]string, 0, len(usage))
		recordsWritten := 0
		for model, totals := range usage {
			cost := calculateCost(rt, model, totals)
			totalCost = totalCost.Add(cost)
			models = append(models, model)

			if rt.Adapters.Store != nil {
				rt.Adapters.Store.Append(ctx, opstore.Event{
					Type: opstore.EventToken, EntityID: instanceCode, CreatedAt: now,
					Data: map[string]any{
						"model_code":          model,
						"input_tokens":        totals.InputTokens,
						"output_tokens":       totals.OutputTokens,
						"cache_read_tokens":   totals.CacheReadTokens,
						"cache_create_tokens": totals.CacheCreateTokens,
						"cost_usd":            cost.StringFixed(6),
					},
				})
				recordsWritten++
			}
		}

		return okResult(map[string]any{
			"records_written":    recordsWritten,
			"total_cost_usd":     totalCost.StringFixed(6),
			"models_processed":   models,
			"session_directory":  sessionDir,
		}), nil
	}
}
