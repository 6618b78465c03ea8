// Package servecmder provides the serve command for running the API and MCP
// servers over one shared engine.
package servecmder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/api"
	"github.com/reveriehq/reverie/api/mcp"
	"github.com/reveriehq/reverie/cmd/reverie/wiring"
	"github.com/reveriehq/reverie/pkg/config"
)

type ServeCommander struct {
	listen          string
	storageProvider string
	sqlitePath      string
	postgresDSN     string
	vectorProvider  string
	vectorTarget    string
	embProvider     string
	embTarget       string
	embModel        string
	embDims         uint
	llmProvider     string
	llmTarget       string
	llmModel        string
	mcpListen       string
	noMCP           bool
}

const serveLongDesc string = `Run the reverie memory server.

Serves the HTTP API on the configured listen address and, unless disabled,
the MCP server on a second address. Both surfaces share one engine, so
background task guards apply across them.`

const serveShortDesc string = "Run the reverie memory server"

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagLLMProvider,
	config.FlagLLMTarget,
	config.FlagLLMModel,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(rt.Viper, cmd, fs, serveFlags)
			return cmder.run(rt)
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingProv, &cmder.embProvider)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingTgt, &cmder.embTarget)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingModel, &cmder.embModel)
	config.AddUintFlag(cmd, fs, config.FlagEmbeddingDims, &cmder.embDims)
	config.AddStringFlag(cmd, fs, config.FlagLLMProvider, &cmder.llmProvider)
	config.AddStringFlag(cmd, fs, config.FlagLLMTarget, &cmder.llmTarget)
	config.AddStringFlag(cmd, fs, config.FlagLLMModel, &cmder.llmModel)

	cmd.Flags().StringVar(&cmder.mcpListen, "mcp-listen", ":8091", "Address for the MCP server to listen on")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Disable the MCP server")

	return cmd
}

func (c *ServeCommander) run(rt *wiring.Runtime) error {
	logger := rt.Logger
	defer logger.Sync()

	eng, err := wiring.BuildEngine(context.Background(), rt.Viper, rt.ConfigDir, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: rt.Viper.GetString("api.listen"),
	}, eng, logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Engine: eng,
		Noop:   c.noMCP,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	if !c.noMCP {
		logger.Info("starting MCP server",
			zap.String("listen", c.mcpListen),
		)
		go func() {
			if err := http.ListenAndServe(c.mcpListen, mcpServer.Handler()); err != nil {
				errChan <- fmt.Errorf("MCP server error: %w", err)
			}
		}()
	}

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}
