package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lahka/core"
	"lahka/gossip"
	pkgconfig "lahka/pkg/config"
)

var engine *core.ChainEngine

func main() {
	rootCmd := &cobra.Command{Use: "lahkanode"}
	rootCmd.AddCommand(nodeCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(validatorCmd())
	rootCmd.AddCommand(keygenCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEngine constructs a ChainEngine from config. It tries the
// LAHKA_ENV-selected config file first and falls back to the spec's named
// process constants when no config file is present, so a bare `node start`
// works out of the box.
func loadEngine() *core.ChainEngine {
	cfg, err := pkgconfig.LoadFromEnv()
	if err != nil {
		logrus.WithError(err).Info("lahkanode: no config file found, using defaults")
		def := pkgconfig.Default()
		cfg = &def
	}
	if cfg.Chain.MaxTxsPerBlock == 0 {
		def := pkgconfig.Default()
		cfg = &def
	}
	ec := core.EngineConfig{
		MinimumStake:   cfg.Chain.MinimumStake,
		BlockTime:      time.Duration(cfg.Chain.BlockTimeMS) * time.Millisecond,
		BlockReward:    cfg.Chain.BlockReward,
		GasPrice:       cfg.Chain.GasPrice,
		MaxTxsPerBlock: cfg.Chain.MaxTxsPerBlock,
	}
	seed := cfg.Chain.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return core.NewChainEngine(ec, core.NewRandSource(seed))
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "node"}
	start := &cobra.Command{
		Use:   "start",
		Short: "start a lahka node: chain engine plus gossip surface",
		Run: func(cmd *cobra.Command, args []string) {
			engine = loadEngine()
			node := gossip.NewNode(func() interface{} { return engine.NetworkSummary() })

			node.On("tx", func(raw []byte) {
				logrus.WithField("bytes", len(raw)).Debug("gossip: received tx message")
			})
			node.On("block", func(raw []byte) {
				logrus.WithField("bytes", len(raw)).Debug("gossip: received block message")
			})

			addr, _ := cmd.Flags().GetString("addr")
			mux := http.NewServeMux()
			mux.Handle("/", node.Router())
			mux.Handle("/metrics", promhttp.Handler())

			logrus.WithField("addr", addr).Info("lahkanode: listening")
			if err := http.ListenAndServe(addr, mux); err != nil {
				logrus.WithError(err).Fatal("lahkanode: server exited")
			}
		},
	}
	start.Flags().String("addr", ":8080", "HTTP listen address for /ws, /status and /metrics")
	cmd.AddCommand(start)
	return cmd
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx"}
	transfer := &cobra.Command{
		Use:   "transfer",
		Short: "validate and queue a TRANSFER transaction in a fresh in-process engine (demo helper)",
		Run: func(cmd *cobra.Command, args []string) {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			amt, _ := cmd.Flags().GetInt64("amount")

			e := loadEngine()
			tx := &core.Transaction{
				From: from, To: to, Amount: amt, Kind: core.TxTransfer,
				Data: map[string]interface{}{}, GasLimit: 1, GasPrice: 1, Timestamp: time.Now().Unix(),
			}
			tx.ComputeHash()
			if err := e.AddTransaction(tx); err != nil {
				fmt.Fprintf(os.Stderr, "reject: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("queued tx %s\n", tx.Hash)
		},
	}
	transfer.Flags().String("from", "", "sender address")
	transfer.Flags().String("to", "", "recipient address")
	transfer.Flags().Int64("amount", 0, "amount")
	cmd.AddCommand(transfer)
	return cmd
}

func validatorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "validator"}

	register := &cobra.Command{
		Use:   "register",
		Short: "register as a validator by queuing a STAKE transaction",
		Run: func(cmd *cobra.Command, args []string) {
			addr, _ := cmd.Flags().GetString("address")
			stake, _ := cmd.Flags().GetInt64("stake")

			e := loadEngine()
			hash, err := e.RegisterValidator(addr, stake)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reject: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("queued STAKE tx %s; validator becomes active once mined\n", hash)
		},
	}
	register.Flags().String("address", "", "validator address")
	register.Flags().Int64("stake", core.MinimumStake, "stake amount")

	contribute := &cobra.Command{
		Use:   "contribute",
		Short: "list contribution activity kinds and their credit rates",
		Run: func(cmd *cobra.Command, args []string) {
			for kind, rate := range core.ContributionCatalogue {
				fmt.Printf("%-24s %.1f credits\n", kind, rate)
			}
		},
	}

	cmd.AddCommand(register, contribute)
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a secp256k1 keypair and its lakha address",
		Run: func(cmd *cobra.Command, args []string) {
			kp, err := core.GenerateKeypair()
			if err != nil {
				fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("address: %s\n", kp.Address)
			fmt.Printf("private_key: %x\n", kp.PrivateKey.Serialize())
		},
	}
}
