package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/landmarktitle/tessa/internal/config"
	"github.com/landmarktitle/tessa/internal/db"
	"github.com/landmarktitle/tessa/internal/kb"
	"github.com/landmarktitle/tessa/internal/llm"
	"github.com/landmarktitle/tessa/internal/search"
	"github.com/landmarktitle/tessa/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the tessa API server",
	Long:  `Starts the tessa knowledge management server with the REST API, websocket activity feed, and semantic search.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if serverPort != 0 {
			cfg.Port = serverPort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		dbPath := filepath.Join(cfg.DataDir, "tessa.db")
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
		if err != nil {
			logrus.WithError(err).Warn("LLM provider unavailable; document extraction and SOP generation are disabled")
			provider = nil
		}

		index, err := buildSearchIndex(cfg, database)
		if err != nil {
			return err
		}

		srv := server.New(cfg, database, provider, index)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			logrus.Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		logrus.WithFields(logrus.Fields{
			"version":  Version,
			"port":     cfg.Port,
			"database": dbPath,
		}).Info("starting tessa server")

		return srv.Start()
	},
}

// buildSearchIndex sets up the semantic index when an embedding API key
// is available; without one, search is disabled rather than fatal.
func buildSearchIndex(cfg *config.Config, database *db.DB) (*search.Index, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logrus.Warn("OPENAI_API_KEY not set; semantic search is disabled")
		return nil, nil
	}

	embedder := search.NewOpenAIEmbedder(apiKey, cfg.EmbeddingModel)
	index, err := search.NewIndex(embedder, kb.NewStore(database), filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}

	if index.Count() == 0 {
		n, err := index.Rebuild(context.Background())
		if err != nil {
			return nil, fmt.Errorf("rebuilding search index: %w", err)
		}
		if n > 0 {
			logrus.WithField("entries", n).Info("rebuilt search index")
		}
	}
	return index, nil
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
