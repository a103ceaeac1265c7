package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/compresr/extension-sdk/internal/config"
	"github.com/compresr/extension-sdk/internal/monitoring"
	"github.com/compresr/extension-sdk/pkg/environment"
	"github.com/compresr/extension-sdk/pkg/extension"
	"github.com/compresr/extension-sdk/pkg/helpers"
	"github.com/compresr/extension-sdk/pkg/ipc"
	"github.com/compresr/extension-sdk/pkg/pipeline"
	"github.com/compresr/extension-sdk/pkg/storage"
)

// hostID owns the IPC channels the host itself answers.
const hostID = "host"

// sendTimeout bounds one outbound request made by host:send.
const sendTimeout = 60 * time.Second

// resolveServeConfig finds the config to use.
// Priority: explicit path > ./extsdk.yaml > ~/.config/extsdk/config.yaml > embedded "memory".
func resolveServeConfig(userConfig string) (data []byte, source string, err error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig) // #nosec G304 -- user-specified config path
		if err == nil {
			return data, userConfig, nil
		}
		// Fall back to embedded by name, e.g. --config sqlite
		if embedded, embErr := getEmbeddedConfig(userConfig); embErr == nil {
			return embedded, "embedded:" + userConfig, nil
		}
		return nil, "", fmt.Errorf("config %q not found as file or embedded name: %w", userConfig, err)
	}

	candidates := []string{"extsdk.yaml"}
	if home, herr := os.UserHomeDir(); herr == nil {
		candidates = append(candidates, home+"/.config/extsdk/config.yaml")
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil { // #nosec G304 -- fixed config locations
			return data, path, nil
		}
	}

	data, err = getEmbeddedConfig("memory")
	if err != nil {
		return nil, "", err
	}
	return data, "embedded:memory", nil
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local extension host with an IPC WebSocket bridge",
		Long: `Start an extension host: open storage, load environments, read
extension manifests and expose IPC channels over a WebSocket bridge.
Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, source, err := resolveServeConfig(configPath)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFromBytes(data)
			if err != nil {
				return fmt.Errorf("%s: %w", source, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, _ = color.New(color.FgCyan).Fprintf(cmd.ErrOrStderr(), "extsdk %s using %s\n", Version, source)
			return runHost(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file or embedded config name")
	return cmd
}

// host is a running extension host.
type host struct {
	manager *extension.Manager
	driver  *pipeline.Driver
	metrics *monitoring.MetricsCollector
	logger  *monitoring.Logger
	secrets map[string]map[string]string // environment -> name -> value
}

// newHost builds every registry from cfg. The caller owns the storage backend.
func newHost(ctx context.Context, cfg *config.Config, backend storage.Backend, logger *monitoring.Logger) (*host, error) {
	metrics := monitoring.NewMetricsCollector()

	envs := environment.NewSource()
	secrets := make(map[string]map[string]string, len(cfg.Environment.Files))
	for name, path := range cfg.Environment.Files {
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("environment %q: %w", name, err)
		}
		names := make([]string, 0, len(values))
		for k := range values {
			names = append(names, k)
		}
		envs.SetKeys(name, names)
		secrets[name] = values
	}
	if cfg.Environment.Active != "" {
		if err := envs.Switch(cfg.Environment.Active); err != nil {
			return nil, err
		}
	}

	hostRegs := extension.Host{
		Pipeline:    pipeline.NewRegistry(),
		Helpers:     helpers.NewRegistry(helpers.WithMetrics(metrics)),
		Environment: envs,
		Storage:     backend,
		UI:          extension.NewUIRegistry(),
		Process:     extension.NewProcessRegistry(ipc.NewRegistry()),
		Loggers:     logger,
		Metrics:     metrics,
		Disabled:    cfg.Extensions.Disabled,
		Reserved:    []string{hostID},
	}
	manager, err := extension.NewManager(hostRegs)
	if err != nil {
		return nil, err
	}

	h := &host{manager: manager, metrics: metrics, logger: logger, secrets: secrets}

	sender := newHTTPSender(sendTimeout, h.lookupSecret)
	h.driver, err = pipeline.NewDriver(hostRegs.Pipeline, sender.Send, cfg.Pipeline.Policy(),
		pipeline.WithLogger(logger.ForComponent("pipeline")),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Extensions.Dir != "" {
		if _, statErr := os.Stat(cfg.Extensions.Dir); statErr == nil {
			manifests, err := manager.LoadManifests(ctx, cfg.Extensions.Dir)
			if err != nil {
				return nil, err
			}
			for _, m := range manifests {
				logger.Info().Str("extension_id", m.Name).Str("version", m.Version).Str("path", m.Path).Msg("manifest_found")
			}
		} else {
			logger.Debug().Str("dir", cfg.Extensions.Dir).Msg("extensions_dir_missing")
		}
	}

	if err := h.registerChannels(hostRegs.Process); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *host) lookupSecret(name string) (string, bool) {
	env := h.manager.Host().Environment.Active()
	v, ok := h.secrets[env][name]
	return v, ok
}

// =============================================================================
// HOST IPC CHANNELS
// =============================================================================

type searchArgs struct {
	Query string `json:"query"`
}

type switchArgs struct {
	Environment string `json:"environment"`
}

type runReply struct {
	RunID        string                  `json:"run_id"`
	Cancelled    bool                    `json:"cancelled"`
	CancelReason string                  `json:"cancel_reason,omitempty"`
	Response     *pipeline.ResponseState `json:"response,omitempty"`
	Failures     []string                `json:"failures,omitempty"`
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 || string(payload) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("invalid payload: %w", err)
	}
	return v, nil
}

// registerChannels exposes host:* channels. Environment channels only ever
// return key names.
func (h *host) registerChannels(process *extension.ProcessRegistry) error {
	regs := h.manager.Host()
	channels := map[string]ipc.Handler{
		"extensions": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return h.manager.List(), nil
		},
		"helpers": func(ctx context.Context, payload json.RawMessage) (any, error) {
			args, err := decode[searchArgs](payload)
			if err != nil {
				return nil, err
			}
			return regs.Helpers.Search(args.Query), nil
		},
		"slash-commands": func(ctx context.Context, payload json.RawMessage) (any, error) {
			args, err := decode[searchArgs](payload)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]string, 0)
			for _, e := range regs.UI.SearchSlashCommands(args.Query) {
				out = append(out, map[string]string{
					"extension_id": e.ExtensionID,
					"id":           e.Value.ID,
					"title":        e.Value.Title,
				})
			}
			return out, nil
		},
		"environment.keys": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return map[string]any{
				"environment": regs.Environment.Active(),
				"keys":        regs.Environment.GetKeys(),
			}, nil
		},
		"environment.switch": func(ctx context.Context, payload json.RawMessage) (any, error) {
			args, err := decode[switchArgs](payload)
			if err != nil {
				return nil, err
			}
			if err := regs.Environment.Switch(args.Environment); err != nil {
				return nil, err
			}
			return regs.Environment.GetKeys(), nil
		},
		"send": func(ctx context.Context, payload json.RawMessage) (any, error) {
			req, err := decode[pipeline.RequestState](payload)
			if err != nil {
				return nil, err
			}
			res, err := h.driver.Run(ctx, &req)
			if err != nil {
				return nil, err
			}
			reply := runReply{
				RunID:        res.RunID,
				Cancelled:    res.Cancelled,
				CancelReason: res.CancelReason,
				Response:     res.Response,
			}
			for _, f := range res.Failures {
				reply.Failures = append(reply.Failures, f.Error())
			}
			return reply, nil
		},
		"stats": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return h.metrics.Stats(), nil
		},
	}

	ipcRegistry := process.IPC()
	for name, handler := range channels {
		if err := ipcRegistry.Handle(hostID, name, handler); err != nil {
			return fmt.Errorf("register %s: %w", ipc.ChannelName(hostID, name), err)
		}
	}
	return nil
}

// =============================================================================
// RUN
// =============================================================================

func runHost(ctx context.Context, cfg *config.Config) error {
	logger := hostLogger(cfg.Monitoring)

	backend, err := storage.Open(cfg.Storage.Options())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("storage_close_failed")
		}
	}()

	h, err := newHost(ctx, cfg, backend, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("failure_policy", string(h.driver.Policy())).
		Str("storage", cfg.Storage.Type).
		Str("environment", cfg.Environment.Active).
		Msg("host_started")

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.Bridge.Addr != "" {
		bridge := ipc.NewBridge(h.manager.Host().Process.IPC(),
			ipc.WithBridgeLogger(logger.ForComponent("bridge")),
			ipc.WithOriginPatterns(cfg.Bridge.OriginPatterns...),
		)
		srv = &http.Server{
			Addr:              cfg.Bridge.Addr,
			Handler:           newBridgeMux(bridge, logger.ForComponent("http")),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Bridge.Addr).Msg("bridge_listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown_requested")
	case err := <-errCh:
		logger.Error().Err(err).Msg("bridge_failed")
		_ = h.manager.Shutdown()
		return err
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("bridge_shutdown_failed")
		}
	}

	shutdownErr := h.manager.Shutdown()
	logger.Info().Interface("stats", h.metrics.Stats()).Msg("host_stopped")
	return shutdownErr
}
