// Command neond runs a Neo N3-compatible full node: the run subcommand
// wires the ledger, mempool, consensus, and P2P components together (see
// system.go); genesis and opcodes are offline inspection helpers.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neonium/neond/pkg/config"
	"github.com/neonium/neond/pkg/ledger"
	"github.com/neonium/neond/pkg/p2p"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/vm"
)

var _ p2p.BlockchainProvider = (*System)(nil)

func main() {
	rootCmd := &cobra.Command{Use: "neond", Short: "Neo N3-compatible full node"}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to node YAML config")
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(genesisCmd())
	rootCmd.AddCommand(opcodesCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the node and sync with the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sys, err := NewSystem(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := sys.Start(ctx); err != nil {
				sys.Stop()
				return err
			}
			<-ctx.Done()
			sys.Stop()
			return nil
		},
	}
}

func genesisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genesis",
		Short: "print the genesis block derived from the configured protocol settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			settings, err := cfg.ProtocolSettings()
			if err != nil {
				return err
			}
			log := cfg.Logger()
			log.SetOutput(os.Stderr)
			led, err := ledger.NewLedger(settings, store.NewMemStore(), log)
			if err != nil {
				return err
			}
			nextConsensus, err := settings.GenesisNextConsensus()
			if err != nil {
				return err
			}
			fmt.Printf("network magic:  %d\n", settings.NetworkMagic)
			fmt.Printf("genesis hash:   %s\n", led.CurrentHash().StringBE())
			fmt.Printf("next consensus: %s\n", nextConsensus.StringBE())
			fmt.Printf("state root:     %s\n", led.StateRoot().StringBE())
			return nil
		},
	}
}

// opcodesCmd dumps the VM's jump table with per-opcode gas costs and
// checks it for duplicate names.
func opcodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "opcodes",
		Short: "dump the VM opcode table with gas costs",
		RunE: func(cmd *cobra.Command, args []string) error {
			seen := make(map[string]vm.Opcode)
			for i := 0; i < 256; i++ {
				op := vm.Opcode(i)
				name := op.String()
				if name == "UNKNOWN" {
					continue
				}
				if prev, dup := seen[name]; dup {
					return fmt.Errorf("opcode name %s assigned to both 0x%02X and 0x%02X", name, byte(prev), byte(op))
				}
				seen[name] = op
				fmt.Printf("0x%02X  %-16s %d\n", byte(op), name, vm.GasCost(op))
			}
			fmt.Printf("%d opcodes defined\n", len(seen))
			return nil
		},
	}
}
