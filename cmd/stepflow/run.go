package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/workflow"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// ▶️ run 命令
// =============================================================================

// ErrWorkflowFailed 工作流执行完成但至少一个步骤失败
var ErrWorkflowFailed = errors.New("workflow failed")

// runOptions run 命令参数
type runOptions struct {
	file      string
	contextID string
	output    string
	// reveal 在文本输出中还原 PII 令牌
	reveal bool
}

func runWorkflow(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	contextID := fs.String("context", "", "Override the budget context ID")
	output := fs.String("output", "text", "Output format: text or json")
	reveal := fs.Bool("reveal", false, "Restore tokenized PII in text output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected exactly one workflow file, got %d", fs.NArg())
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	// 结果写 stdout，日志统一写 stderr
	logCfg := cfg.Log
	logCfg.OutputPaths = []string{"stderr"}
	logger := initLogger(logCfg)
	defer func() { _ = logger.Sync() }()

	return executeFile(ctx, cfg, runOptions{
		file:      fs.Arg(0),
		contextID: *contextID,
		output:    *output,
		reveal:    *reveal,
	}, out, logger)
}

// executeFile 装配引擎，执行 YAML 工作流文件并输出结果
func executeFile(ctx context.Context, cfg *config.Config, opts runOptions, out io.Writer, logger *zap.Logger) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("run: unknown output format %q", opts.output)
	}
	if opts.reveal && opts.output != "text" {
		return fmt.Errorf("run: --reveal requires text output")
	}

	req, err := loadWorkflowFile(opts.file)
	if err != nil {
		return err
	}
	if opts.contextID != "" {
		req.ContextID = opts.contextID
	}

	if opts.reveal {
		c := *cfg
		c.Privacy.KeepOriginals = true
		cfg = &c
	}
	e, err := buildEngine(ctx, cfg, engineDeps{}, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if cerr := e.close(); cerr != nil {
			logger.Error("engine shutdown error", zap.Error(cerr))
		}
	}()

	result, err := e.executor.ExecuteWorkflow(ctx, req)
	if err != nil {
		return err
	}

	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if opts.reveal && e.vault != nil {
		var buf bytes.Buffer
		writeText(&buf, result)
		if _, err := io.WriteString(out, e.vault.Detokenize(buf.String())); err != nil {
			return err
		}
	} else {
		writeText(out, result)
	}

	if !result.Success {
		return fmt.Errorf("%w: %d of %d steps failed", ErrWorkflowFailed, len(result.FailedSteps()), len(result.Steps))
	}
	return nil
}

// loadWorkflowFile 读取 YAML 工作流定义，未知字段视为错误
func loadWorkflowFile(path string) (*workflow.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workflow file: %w", err)
	}
	defer f.Close()

	var req workflow.Request
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("workflow file %s is empty", path)
		}
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}
	return &req, workflow.ValidateRequest(&req)
}

func writeText(out io.Writer, result *workflow.Result) {
	status := "SUCCESS"
	if !result.Success {
		status = "FAILED"
	}
	fmt.Fprintf(out, "run %s: %s\n", result.RunID, status)

	for i, o := range result.Steps {
		mark := "ok"
		if !o.Result.Success {
			mark = "failed"
		}
		line := fmt.Sprintf("  %d. %-16s %-6s attempts=%d tokens=%d latency=%dms",
			i+1, o.Step.Tool, mark, o.Attempts, o.Result.TokensUsed, o.Result.LatencyMs)
		if o.Result.Tool != "" && o.Result.Tool != o.Step.Tool {
			line += " via " + o.Result.Tool
		}
		if o.Result.Error != "" {
			line += " error=" + o.Result.Error
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
		if o.Result.Success && o.Result.Data != nil {
			if data, err := json.Marshal(o.Result.Data); err == nil {
				fmt.Fprintf(out, "     data: %s\n", data)
			}
		}
	}

	fmt.Fprintln(out, "insights:")
	for _, in := range result.Insights {
		fmt.Fprintf(out, "  [%s/%s] %s: %s\n", in.Type, in.Impact, in.Title, in.Value)
	}
	fmt.Fprintln(out, result.Narrative)
}
