package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/cuemby/yuanrong-scheduler/pkg/driver"
	"github.com/cuemby/yuanrong-scheduler/pkg/ha"
	"github.com/cuemby/yuanrong-scheduler/pkg/localproxy"
	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/poller"
	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/rpc"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
	"github.com/cuemby/yuanrong-scheduler/pkg/underlayer"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "schedulerd",
	Short: "Two-tier domain/local function scheduler",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(domainCmd)
	rootCmd.AddCommand(localCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}

// domainCmd runs one domain scheduler replica: the resource view,
// schedule queues, underlayer client, poller, and (optionally) raft HA.
var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Run a domain scheduler replica",
	RunE: func(cmd *cobra.Command, args []string) error {
		domainID, _ := cmd.Flags().GetString("domain-id")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		isHeader, _ := cmd.Flags().GetBool("header")
		localsFlag, _ := cmd.Flags().GetStringSlice("local")
		haEnabled, _ := cmd.Flags().GetBool("ha-enabled")
		haNodeID, _ := cmd.Flags().GetString("ha-node-id")
		haBindAddr, _ := cmd.Flags().GetString("ha-bind-addr")
		haBootstrap, _ := cmd.Flags().GetBool("ha-bootstrap")
		haPeersFlag, _ := cmd.Flags().GetStringSlice("ha-peer")

		locals, err := parseLocalEndpoints(localsFlag)
		if err != nil {
			return err
		}
		peers, err := parseHAPeers(haPeersFlag)
		if err != nil {
			return err
		}

		cfg := driver.Config{
			DomainID:   domainID,
			DataDir:    dataDir,
			IsHeader:   isHeader,
			Underlayer: underlayer.DefaultConfig(),
			Poller:     poller.DefaultConfig(),
			Locals:     locals,
			HA: driver.HAConfig{
				Enabled:   haEnabled,
				NodeID:    haNodeID,
				BindAddr:  haBindAddr,
				Bootstrap: haBootstrap,
				Peers:     peers,
			},
		}

		d, err := driver.New(cfg)
		if err != nil {
			return fmt.Errorf("build driver: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		go waitForSignal(cancel)
		defer d.Stop()

		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func parseLocalEndpoints(raw []string) ([]driver.LocalEndpoint, error) {
	out := make([]driver.LocalEndpoint, 0, len(raw))
	for _, entry := range raw {
		unitID, addr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --local %q, want unitID=host:port", entry)
		}
		out = append(out, driver.LocalEndpoint{UnitID: unitID, Addr: addr})
	}
	return out, nil
}

func parseHAPeers(raw []string) ([]ha.Peer, error) {
	out := make([]ha.Peer, 0, len(raw))
	for _, entry := range raw {
		id, addr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --ha-peer %q, want nodeID=host:port", entry)
		}
		out = append(out, ha.Peer{ID: id, Addr: addr})
	}
	return out, nil
}

func init() {
	domainCmd.Flags().String("domain-id", "domain-1", "this domain replica's id")
	domainCmd.Flags().String("data-dir", "", "directory for group storage and raft state; empty disables persistence")
	domainCmd.Flags().Bool("header", false, "run as the header domain, eligible to scale out new locals")
	domainCmd.Flags().StringSlice("local", nil, "local proxy to register at startup, repeatable: unitID=host:port")
	domainCmd.Flags().Bool("ha-enabled", false, "enable raft-backed leader election across domain replicas")
	domainCmd.Flags().String("ha-node-id", "", "this replica's raft node id")
	domainCmd.Flags().String("ha-bind-addr", "", "raft transport bind address")
	domainCmd.Flags().Bool("ha-bootstrap", false, "bootstrap a new raft cluster from this node")
	domainCmd.Flags().StringSlice("ha-peer", nil, "raft peer to seed the cluster config with, repeatable: nodeID=host:port")
}

// localCmd runs one local proxy: a process-local resource view served
// to the domain tier over grpc, optionally seeded with a fixed set of
// agent resource units at startup.
var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run a local proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		localID, _ := cmd.Flags().GetString("local-id")
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		agentsFlag, _ := cmd.Flags().GetStringSlice("agent")

		view := resourceview.New(localID, resourceview.Param{IsLocal: true})
		for _, entry := range agentsFlag {
			unit, err := parseAgentUnit(entry)
			if err != nil {
				return err
			}
			if err := view.AddResourceUnit(unit); err != nil {
				return fmt.Errorf("register agent %s: %w", unit.ID, err)
			}
		}

		srv := localproxy.New(localID, view)

		lis, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", listenAddr, err)
		}
		grpcServer := grpc.NewServer()
		grpcServer.RegisterService(&rpc.ServiceDesc, srv)

		ctx, cancel := context.WithCancel(context.Background())
		go waitForSignal(cancel)
		go func() {
			<-ctx.Done()
			grpcServer.GracefulStop()
		}()

		log.Logger.Info().Str("local_id", localID).Str("addr", listenAddr).Msg("local proxy listening")
		return grpcServer.Serve(lis)
	},
}

func parseAgentUnit(entry string) (*types.ResourceUnit, error) {
	// id=cpu:memory, e.g. "agent-1=8:16384"
	id, spec, ok := strings.Cut(entry, "=")
	if !ok {
		return nil, fmt.Errorf("invalid --agent %q, want id=cpu:memory", entry)
	}
	cpuStr, memStr, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("invalid --agent %q, want id=cpu:memory", entry)
	}
	var cpu, mem float64
	if _, err := fmt.Sscanf(cpuStr, "%f", &cpu); err != nil {
		return nil, fmt.Errorf("invalid cpu in --agent %q: %w", entry, err)
	}
	if _, err := fmt.Sscanf(memStr, "%f", &mem); err != nil {
		return nil, fmt.Errorf("invalid memory in --agent %q: %w", entry, err)
	}
	capacity := types.Resources{
		"cpu":    {Name: "cpu", Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: cpu}},
		"memory": {Name: "memory", Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: mem}},
	}
	return &types.ResourceUnit{
		ID:          id,
		Capacity:    capacity,
		Allocatable: capacity,
		Instances:   make(map[string]*types.InstanceInfo),
		Status:      types.UnitStatusNormal,
	}, nil
}

func init() {
	localCmd.Flags().String("local-id", "local-1", "this local's id, registered with domains under this key")
	localCmd.Flags().String("listen-addr", ":7443", "address to serve the underlayer grpc service on")
	localCmd.Flags().StringSlice("agent", nil, "agent resource unit to seed at startup, repeatable: id=cpu:memory")
}
