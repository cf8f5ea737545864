package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dagledger/core"
	"dagledger/internal/api"
	"dagledger/pkg/config"
	"dagledger/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{Use: "dagledger"}
	root.AddCommand(walletCmd())
	root.AddCommand(nodeCmd())
	root.AddCommand(txCmd())
	root.AddCommand(ledgerCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logrus.Entry {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(utils.EnvOrDefault("LEDGER_LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(lvl)
	}
	return logger.WithField("component", "cli")
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet"}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "generate a Dilithium2 wallet keypair",
		Run: func(cmd *cobra.Command, args []string) {
			secret, public, err := core.GenerateWallet()
			if err != nil {
				fmt.Fprintf(os.Stderr, "generate wallet: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("secret_key: %s\n", secret)
			fmt.Printf("public_key: %s\n", public)
		},
	}
	cmd.AddCommand(generate)
	return cmd
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "node"}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "run the ledger engine and its boundary API",
		Run:   runServe,
	}
	cmd.AddCommand(serve)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) {
	logger := newLogger()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	genesisSecret, genesisPublic, err := loadOrMintGenesisWallet(cfg.Genesis.SecretKeyFile, cfg.Genesis.PublicKeyFile)
	if err != nil {
		logger.Fatalf("genesis wallet: %v", err)
	}

	engineCfg := core.EngineConfig{
		ConfirmationThreshold: cfg.DAG.ConfirmationThreshold,
		TipCap:                cfg.DAG.TipCap,
		CheckpointPath:        cfg.DAG.CheckpointPath,
		GhostInterval:         cfg.DAG.GhostInterval,
	}
	engine, err := core.NewEngine(engineCfg, genesisSecret, genesisPublic)
	if err != nil {
		logger.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	addr := cfg.API.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: api.NewRouter(engine, logger)}

	go func() {
		logger.Infof("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// loadOrMintGenesisWallet takes the genesis keypair from GENESIS_PRIVATE_KEY
// and GENESIS_PUBLIC_KEY when both are set; otherwise it reads it from the
// configured files, minting and persisting a fresh one on first run.
func loadOrMintGenesisWallet(secretPath, publicPath string) (secret, public string, err error) {
	envSecret := utils.EnvOrDefault("GENESIS_PRIVATE_KEY", "")
	envPublic := utils.EnvOrDefault("GENESIS_PUBLIC_KEY", "")
	if envSecret != "" && envPublic != "" {
		return envSecret, envPublic, nil
	}

	secretBytes, secretErr := os.ReadFile(secretPath)
	publicBytes, publicErr := os.ReadFile(publicPath)
	if secretErr == nil && publicErr == nil {
		return string(secretBytes), string(publicBytes), nil
	}

	secret, public, err = core.GenerateWallet()
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(secretPath, []byte(secret), 0600); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(publicPath, []byte(public), 0644); err != nil {
		return "", "", err
	}
	return secret, public, nil
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx"}
	submit := &cobra.Command{
		Use:   "submit",
		Short: "sign and submit a transfer transaction to a running node",
		Run: func(cmd *cobra.Command, args []string) {
			addr, _ := cmd.Flags().GetString("node")
			secret, _ := cmd.Flags().GetString("secret")
			sender, _ := cmd.Flags().GetString("sender")
			recipient, _ := cmd.Flags().GetString("recipient")
			amount, _ := cmd.Flags().GetUint64("amount")
			nonce, _ := cmd.Flags().GetUint64("nonce")

			txc := &core.Transaction{TransactionCreate: core.TransactionCreate{
				Sender:    sender,
				Recipient: recipient,
				Amount:    amount,
				Kind:      core.KindTransfer,
				Nonce:     nonce,
				Created:   time.Now(),
			}}
			if err := submitTransfer(addr, txc, secret); err != nil {
				fmt.Fprintf(os.Stderr, "submit transaction: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("transaction submitted")
		},
	}
	submit.Flags().String("node", "http://localhost:8080", "node API address")
	submit.Flags().String("secret", "", "sender's base64 secret key")
	submit.Flags().String("sender", "", "sender's base64 public key")
	submit.Flags().String("recipient", "", "recipient's base64 public key")
	submit.Flags().Uint64("amount", 0, "amount in minor units")
	submit.Flags().Uint64("nonce", 1, "claimed next nonce for sender")
	cmd.AddCommand(submit)
	return cmd
}

func submitTransfer(nodeAddr string, tx *core.Transaction, secret string) error {
	if err := core.SignTransaction(tx, secret); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"sender":    tx.Sender,
		"recipient": tx.Recipient,
		"amount":    tx.Amount,
		"kind":      tx.Kind.String(),
		"nonce":     tx.Nonce,
		"signature": tx.Signature,
		"created":   tx.Created,
	})
	if err != nil {
		return err
	}
	resp, err := http.Post(nodeAddr+"/transactions/", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("node responded with status %s", resp.Status)
	}
	return nil
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger"}

	balances := &cobra.Command{
		Use:   "balances",
		Short: "fetch account balances from a running node",
		Run: func(cmd *cobra.Command, args []string) {
			addr, _ := cmd.Flags().GetString("node")
			printJSON(addr + "/wallets/balances/")
		},
	}
	balances.Flags().String("node", "http://localhost:8080", "node API address")

	contracts := &cobra.Command{
		Use:   "contracts",
		Short: "fetch deployed contracts from a running node",
		Run: func(cmd *cobra.Command, args []string) {
			addr, _ := cmd.Flags().GetString("node")
			printJSON(addr + "/smart_contracts/")
		},
	}
	contracts.Flags().String("node", "http://localhost:8080", "node API address")

	cmd.AddCommand(balances, contracts)
	return cmd
}

func printJSON(url string) {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	fmt.Println(buf.String())
}
