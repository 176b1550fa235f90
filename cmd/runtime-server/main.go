// Package main wires the runtime's subsystems together and serves both the
// IDE transport edge (WebSocket) and the admin REST surface on one
// listener, per spec.md §6's composition root.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/internal/dispatcher"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/internal/executor"
	"github.com/agentrt/runtime/internal/llmclient"
	"github.com/agentrt/runtime/internal/logging"
	"github.com/agentrt/runtime/internal/metrics"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/internal/server"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/internal/tool"
	"github.com/agentrt/runtime/internal/toolwire"
	"github.com/agentrt/runtime/internal/transportedge"
	"github.com/agentrt/runtime/pkg/types"
)

var (
	addr      = flag.String("addr", "", "Listen address, overrides $ADDR (default :8080)")
	directory = flag.String("directory", "", "Working directory the tool dispatcher operates under")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("agentrt-runtime %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get working directory: %v\n", err)
			os.Exit(1)
		}
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(appConfig.LogLevel),
		Output: os.Stderr,
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})
	log := logging.Logger
	log.Info().Str("version", Version).Str("workDir", workDir).Msg("starting agentrt-runtime")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session Store: durable home for sessions, messages, approvals, plans.
	sessions := store.NewStore(store.Config{
		BasePath:                  sessionStoreBasePath(appConfig.DBURL, workDir),
		SessionAuditTTL:           720 * time.Hour,
		UseEventDrivenPersistence: appConfig.UseEventDrivenPersistence,
		DebounceWindow:            2 * time.Second,
		DebounceMaxBatch:          50,
	})
	if err := sessions.Recover(ctx, time.Now()); err != nil {
		log.Fatal().Err(err).Msg("failed to recover session store")
	}

	// Raw path-addressed storage for tool state (todos, etc.).
	rawStorage := store.New(filepath.Join(workDir, ".agentrt", "storage"))

	// LLM Client: provider registry + retry/circuit-breaking wrapper.
	providers := llmclient.InitializeProviders(ctx, appConfig, log)
	client := llmclient.New(providers, llmclient.RetryPolicy{
		Attempts:        3,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2,
	}, nil, log)

	agents := agent.NewRegistry()
	agentDefs := agents.AsMap()

	bus := eventbus.New(log)

	policy, err := loadApprovalPolicy(workDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load approval policy")
	}
	approvals := approval.NewManager(policy, sessions, bus, log, approval.WithExpiry(appConfig.ApprovalDefaultTimeout))

	remote := dispatcher.NewRemoteRegistry(log)
	dispatch := dispatcher.New(approvals, bus, remote, agentDefs, log)

	toolReg := tool.DefaultRegistry(workDir, rawStorage)
	toolReg.RegisterTaskTool(agents)

	if err := toolwire.RegisterBuiltinTools(dispatch, toolReg, agentDefs); err != nil {
		log.Fatal().Err(err).Msg("failed to wire built-in tools into dispatcher")
	}

	mcpClient := connectMCPServers(ctx, dispatch, agentDefs, log)
	if mcpClient != nil {
		defer mcpClient.Close()
	}

	engine := orchestrator.New(sessions, client, dispatch, approvals, agents, bus, workDir, appConfig.LLMModel, appConfig.OrchestratorMaxIterations, log)
	svc := orchestrator.NewService(sessions, rawStorage, engine)

	// The Task tool delegates to the same Service/Engine it is itself
	// invoked through, so subagent turns get the full tool/approval
	// pipeline rather than a parallel code path.
	toolReg.SetTaskExecutor(executor.NewSubagentExecutor(svc, agents))

	collector := metrics.NewCollector(prometheus.NewRegistry(), metrics.DefaultAuditLogSize)
	collector.Attach(bus)

	go sweepExpiredApprovals(ctx, approvals, log)

	serverCfg := server.DefaultConfig()
	if a := listenAddr(); a != "" {
		serverCfg.Addr = a
	}
	serverCfg.InternalAPIKey = appConfig.InternalAPIKey

	srv := server.New(serverCfg, sessions, svc, agents, approvals, collector, log)

	edgeCfg := transportedge.DefaultConfig()
	edgeCfg.HeartbeatInterval = appConfig.WSHeartbeatInterval
	edge := transportedge.New(edgeCfg, svc, agents, approvals, remote, bus, log)
	srv.Router().Handle("/ws", edge)

	go func() {
		log.Info().Str("addr", serverCfg.Addr).Msg("listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sessions.Close(); err != nil {
		log.Error().Err(err).Msg("session store close error")
	}
	log.Info().Msg("stopped")
}

func listenAddr() string {
	if *addr != "" {
		return *addr
	}
	return os.Getenv("ADDR")
}

// sessionStoreBasePath derives the Session Store's on-disk directory from
// DB_URL. Only the embedded "sqlite://" scheme is implemented (a network
// engine DSN is accepted by config but store.Store has no SQL backend, see
// DESIGN.md); any other scheme falls back to a directory under workDir.
func sessionStoreBasePath(dbURL, workDir string) string {
	const scheme = "sqlite://"
	if len(dbURL) > len(scheme) && dbURL[:len(scheme)] == scheme {
		path := dbURL[len(scheme):]
		if filepath.IsAbs(path) {
			return filepath.Dir(path)
		}
		return filepath.Join(workDir, filepath.Dir(path))
	}
	return filepath.Join(workDir, ".agentrt", "sessions")
}

// loadApprovalPolicy reads APPROVAL_POLICY_PATH (workDir/approval-policy.yaml
// by default) via the hot-reloading PolicyStore; a missing file is not an
// error, per LoadPolicyStore's documented behavior.
func loadApprovalPolicy(workDir string, log zerolog.Logger) (*approval.PolicyStore, error) {
	path := os.Getenv("APPROVAL_POLICY_PATH")
	if path == "" {
		path = filepath.Join(workDir, "approval-policy.yaml")
	}
	return approval.LoadPolicyStore(path, log)
}

// mcpServerConfigFile is the on-disk shape of MCP_SERVERS_CONFIG: a JSON
// array, each entry mapping directly onto dispatcher.MCPServerConfig.
type mcpServerConfigFile []dispatcher.MCPServerConfig

// connectMCPServers optionally wires local MCP servers into the tool
// dispatcher. Servers are described by a JSON array at MCP_SERVERS_CONFIG
// (a path); the feature is entirely opt-in since the corpus offers no
// standard env-var convention for MCP server lists. Returns nil if the env
// var is unset; a configured-but-unreachable server is logged and skipped
// rather than failing startup.
func connectMCPServers(ctx context.Context, dispatch *dispatcher.Dispatcher, agentDefs map[string]types.AgentDefinition, log zerolog.Logger) *dispatcher.MCPClient {
	path := os.Getenv("MCP_SERVERS_CONFIG")
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("mcp servers config unreadable, skipping")
		return nil
	}
	var servers mcpServerConfigFile
	if err := json.Unmarshal(raw, &servers); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("mcp servers config invalid json, skipping")
		return nil
	}

	mcpClient := dispatcher.NewMCPClient(log)
	for _, sc := range servers {
		if err := mcpClient.Connect(ctx, sc); err != nil {
			log.Warn().Err(err).Str("server", sc.Name).Msg("mcp server unreachable, skipping")
			continue
		}
	}
	if err := mcpClient.RegisterTools(dispatch, agentDefs); err != nil {
		log.Warn().Err(err).Msg("failed to register mcp tools")
	}
	return mcpClient
}

// sweepExpiredApprovals runs the HITL sweep (spec.md §4.3) that expires
// pending approvals past their TTL, once per minute until ctx is done.
func sweepExpiredApprovals(ctx context.Context, approvals *approval.Manager, log zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := approvals.SweepExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("approval sweep failed")
				continue
			}
			if len(expired) > 0 {
				log.Info().Int("count", len(expired)).Msg("expired pending approvals")
			}
		}
	}
}
