// FrevaGPT backend: serves the streaming chatbot API for the Freva
// evaluation system and manages invocations of the code interpreter.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/config"
	"frevagpt/pkg/interpreter"
	"frevagpt/pkg/llm"
	"frevagpt/pkg/llm/openaillm"
	"frevagpt/pkg/monitor"
	"frevagpt/pkg/server"
	"frevagpt/pkg/storage"
	"frevagpt/pkg/tools"

	// Register the remaining LLM providers; openaillm registers through its
	// named import above.
	_ "frevagpt/pkg/llm/geminillm"
	_ "frevagpt/pkg/llm/ollamallm"
)

var (
	flagVerbose         int
	flagCodeInterpreter string
)

func main() {
	root := &cobra.Command{
		Use:           "frevagpt-backend",
		Short:         "Backend for the FrevaGPT chatbot",
		Long:          "Starts the backend server for the REST-like API used by the frontend. Serves the chatbot and manages calls of the code interpreter.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().CountVarP(&flagVerbose, "verbose", "v", "print debug info too; can be used multiple times")
	root.Flags().StringVar(&flagCodeInterpreter, "code-interpreter", "", "run the code interpreter with the given code (internal use only)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	// Interpreter-only mode: one execution, then exit. The server spawns
	// this same binary with the flag so the Python interpreter never runs in
	// the server process.
	if cmd.Flags().Changed("code-interpreter") {
		os.Exit(interpreter.Run(flagCodeInterpreter))
	}

	monitor.SetupEnvironment(monitor.VerbosityToLevel(flagVerbose))
	monitor.PrintBanner()

	env := config.LoadEnv()
	if env.AuthKey == "" {
		slog.Error("AUTH_KEY is not set in the environment; refusing to start")
		return fmt.Errorf("AUTH_KEY is not set")
	}
	slog.Info("Authentication string set successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reloadCh := config.WatchConfig(ctx, "config.json", ".env")

	for {
		err := runServer(ctx, env, reloadCh)
		if err != nil {
			slog.Error("Server failed to start", "error", err)
			slog.Info("Waiting 5 seconds before retrying...")
			select {
			case <-ctx.Done():
				return nil
			case <-reloadCh:
				slog.Info("Configuration change detected while waiting, retrying immediately")
			case <-time.After(5 * time.Second):
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("Bye!")
			return nil
		default:
			slog.Info("==== Configuration reloaded ====")
		}
	}
}

// runServer executes one lifecycle of the backend: build everything from the
// current configuration, serve, and return when a shutdown or reload is
// requested.
func runServer(ctx context.Context, env config.Env, reloadCh <-chan struct{}) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	clients, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to init LLM clients: %w", err)
	}

	store, mongoStore, err := buildStorage(ctx, env)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	registry := chatbot.NewRegistry(store)

	var mcpMgr *tools.MCPManager
	if len(cfg.MCP) > 0 {
		var servers []tools.MCPServerConfig
		if err := jsoniter.Unmarshal(cfg.MCP, &servers); err != nil {
			slog.Error("Failed to parse MCP config, continuing without MCP tools", "error", err)
		} else {
			mcpMgr = tools.NewMCPManager(ctx, servers)
			defer mcpMgr.Close()
		}
	}

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewCodeInterpreter(registry, store))
	router := tools.NewRouter(toolRegistry, mcpMgr)

	runRuntimeChecks(ctx, toolRegistry)

	srv := server.New(registry, clients, router, store, mongoStore, env.AuthKey)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(env.Host, env.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Received shutdown signal, stopping server")
	case <-reloadCh:
		slog.Info("Configuration changes detected, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// buildStorage selects the persistence backend: the MongoDB document store
// when a URI is configured, the per-thread disk store otherwise.
func buildStorage(ctx context.Context, env config.Env) (storage.Store, *storage.MongoStore, error) {
	if env.MongoURI == "" {
		slog.Info("No MONGODB_URI set, using the disk thread store", "dir", env.ThreadsDir)
		store, err := storage.NewDiskStore(env.ThreadsDir)
		return store, nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mongoStore, err := storage.NewMongoStore(connectCtx, env.MongoURI, env.MongoDatabase, env.MongoCollection)
	if err != nil {
		return nil, nil, err
	}

	if env.OpenAIAPIKey != "" {
		summarizerClient := openaillm.NewClient(env.OpenAIAPIKey, "gpt-4.1-mini", env.OpenAIBaseURL)
		mongoStore.SetSummarizer(chatbot.NewTopicSummarizer(summarizerClient))
	}

	slog.Info("Using the MongoDB thread store", "database", env.MongoDatabase, "collection", env.MongoCollection)
	return mongoStore, mongoStore, nil
}
