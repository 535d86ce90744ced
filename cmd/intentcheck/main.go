// Command intentcheck classifies one lead message and prints the detected
// intent as JSON. Useful for tuning patterns against real replies.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"

	"github.com/wolfman30/realty-ai-agent/cmd/mainconfig"
	"github.com/wolfman30/realty-ai-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	var (
		flagState string
		flagLast  string
		flagLLM   bool
	)
	flag.StringVar(&flagState, "state", "", "Current conversation state (e.g. qualifying)")
	flag.StringVar(&flagLast, "last", "", "Last message the agent sent")
	flag.BoolVar(&flagLLM, "llm", false, "Verify low-confidence results with the configured LLM")
	flag.Parse()

	message, err := readMessage(flag.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.New("error")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts, closeLLM, err := detectorOptions(ctx, cfg, flagLLM, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = closeLLM() }()

	detector := intent.NewDetector(logger, opts...)
	result := detector.Detect(ctx, message, &intent.Context{
		LastAIMessage: flagLast,
		CurrentState:  flagState,
	}, flagLLM)

	if err := writeResult(os.Stdout, result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readMessage joins the positional args, or reads stdin when there are none.
func readMessage(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	var b strings.Builder
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	msg := strings.TrimSpace(b.String())
	if msg == "" {
		return "", errors.New("usage: intentcheck [-state s] [-last msg] [-llm] <message>")
	}
	return msg, nil
}

func detectorOptions(ctx context.Context, cfg *appconfig.Config, useLLM bool, logger *logging.Logger) ([]intent.Option, func() error, error) {
	noop := func() error { return nil }
	if !useLLM {
		return nil, noop, nil
	}
	var bedrock *bedrockruntime.Client
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("load AWS config: %w", err)
		}
		bedrock = mainconfig.BedrockClient(awsCfg)
	}
	client, closer, err := bootstrap.BuildLLMClient(ctx, cfg, bedrock, logger)
	if err != nil {
		return nil, noop, err
	}
	if client == nil {
		return nil, closer, errors.New("-llm needs BEDROCK_MODEL_ID or GEMINI_API_KEY")
	}
	return []intent.Option{intent.WithLLM(client, bootstrap.IntentModel(cfg))}, closer, nil
}

func writeResult(w io.Writer, result intent.DetectedIntent) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
