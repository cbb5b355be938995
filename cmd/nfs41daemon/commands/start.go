package commands

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kudingc/nfs41client/internal/cancel"
	"github.com/kudingc/nfs41client/internal/client"
	"github.com/kudingc/nfs41client/internal/closedriver"
	"github.com/kudingc/nfs41client/internal/config"
	"github.com/kudingc/nfs41client/internal/debugapi"
	"github.com/kudingc/nfs41client/internal/idmap"
	"github.com/kudingc/nfs41client/internal/logger"
	"github.com/kudingc/nfs41client/internal/metrics"
	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/opendriver"
	"github.com/kudingc/nfs41client/internal/recovery"
	"github.com/kudingc/nfs41client/internal/rpc"
	"github.com/kudingc/nfs41client/internal/telemetry"
	"github.com/kudingc/nfs41client/internal/upcall"
)

var upcallSocket string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the daemon: accept upcalls and drive OPEN/CLOSE against the server",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&upcallSocket, "upcall-socket", "/var/run/nfs41daemon/upcall.sock",
		"unix domain socket the kernel module's upcall/downcall relay connects to")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if cfg.Telemetry.Profiling.Enabled {
		shutdownProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
			Enabled:        true,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Endpoint:       cfg.Telemetry.Profiling.Endpoint,
			ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		})
		if err != nil {
			return fmt.Errorf("init profiling: %w", err)
		}
		defer func() {
			if err := shutdownProfiling(); err != nil {
				logger.Warn("profiling shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	var recoveryStore *recovery.Store
	if cfg.Recovery.Enabled {
		recoveryStore, err = recovery.Open(cfg.Recovery.Dir)
		if err != nil {
			return fmt.Errorf("open recovery store: %w", err)
		}
		defer func() {
			if err := recoveryStore.Close(); err != nil {
				logger.Warn("recovery store close failed", "error", err)
			}
		}()
	}

	resolver := idmap.NewCachedResolver(nil, cfg.Idmap.CacheTTL)
	mapper := idmap.Mapper{Resolver: resolver}

	registry := openstate.NewRegistry()
	diagnostics := openstate.NewDiagnostics(256, 256)
	openList := client.NewOpenList()

	// The ONC RPC COMPOUND transport is an external collaborator this
	// daemon only defines the contract for; NopExecutor keeps the rest
	// of the wiring below live before a real transport is plugged in.
	executor := rpc.NopExecutor{}

	openDriver := &opendriver.Driver{
		Executor: executor,
		Registry: registry,
		Idmap:    mapper,
		Register: openList.Add,
	}
	closeDriver := &closedriver.Driver{
		Executor:   executor,
		Unregister: openList.Remove,
	}
	canceller := &cancel.Canceller{
		Executor:   executor,
		Unregister: openList.Remove,
	}

	dispatcher := &upcall.Dispatcher{
		OpenDriver:  openDriver,
		CloseDriver: closeDriver,
		Canceller:   canceller,
		Registry:    registry,
		Diagnostics: diagnostics,
	}

	ctx, cancelCtx := context.WithCancel(cmd.Context())
	defer cancelCtx()

	var httpServer *http.Server
	if cfg.Metrics.Enabled {
		httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: debugapi.Router(openList),
		}
		go func() {
			logger.Info("debug API listening", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("debug API server failed", "error", err)
			}
		}()
	}

	if recoveryStore != nil {
		if err := replayRecovery(ctx, recoveryStore, openDriver.Registry); err != nil {
			logger.Warn("recovery replay failed", "error", err)
		}
	}

	listener, err := listenUpcallSocket(upcallSocket)
	if err != nil {
		return fmt.Errorf("listen upcall socket: %w", err)
	}
	defer listener.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	connCh := make(chan net.Conn)
	go acceptLoop(listener, connCh)

	logger.Info("nfs41daemon started", "upcall_socket", upcallSocket)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			if httpServer != nil {
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("debug API shutdown failed", "error", err)
				}
			}
			return nil
		case conn := <-connCh:
			go serveConn(ctx, dispatcher, conn)
		}
	}
}

func listenUpcallSocket(path string) (net.Listener, error) {
	_ = os.Remove(path)
	return net.Listen("unix", path)
}

func acceptLoop(listener net.Listener, connCh chan<- net.Conn) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn("upcall socket accept failed", "error", err)
			return
		}
		connCh <- conn
	}
}

// serveConn drains one upcall connection: each frame is a Header
// followed by an opcode-specific body, and for OpClose an extra 8-byte
// handle the kernel echoes back from the HANDLE the OPEN downcall
// returned. The daemon answers every frame on the same connection
// before reading the next one, mirroring how the kernel module holds a
// single upcall in flight per pending IRP.
func serveConn(ctx context.Context, d *upcall.Dispatcher, conn net.Conn) {
	defer conn.Close()
	for {
		h, err := upcall.ReadHeader(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("upcall header read failed", "error", err)
			}
			return
		}

		var reply []byte
		switch h.Opcode {
		case upcall.OpOpen:
			reply, err = d.HandleOpen(ctx, h, conn)
		case upcall.OpClose:
			var handleBytes [8]byte
			if _, hErr := io.ReadFull(conn, handleBytes[:]); hErr != nil {
				logger.Warn("upcall close handle read failed", "error", hErr)
				return
			}
			handle := openstate.Handle(binary.LittleEndian.Uint64(handleBytes[:]))
			reply, err = d.HandleClose(ctx, h, conn, handle)
		default:
			logger.Warn("unknown upcall opcode", "opcode", uint32(h.Opcode))
			return
		}
		if err != nil {
			logger.Warn("upcall dispatch failed", "opcode", uint32(h.Opcode), "error", err)
			return
		}
		if _, err := conn.Write(reply); err != nil {
			logger.Warn("upcall reply write failed", "error", err)
			return
		}
	}
}

// replayRecovery lists the snapshots a prior daemon instance persisted
// and logs how many there are; it reissues no CLAIM_PREVIOUS opens. Lookup of
// the snapshot's path/owner against the live server is left to a real
// transport; until one is wired this only surfaces how many opens
// would need reclaiming.
func replayRecovery(ctx context.Context, store *recovery.Store, registry *openstate.Registry) error {
	_ = registry
	snapshots, err := store.ListForClient(ctx, 0)
	if err != nil {
		return err
	}
	if len(snapshots) > 0 {
		logger.Info("recovery snapshots pending reclaim", "count", len(snapshots))
	}
	return nil
}
