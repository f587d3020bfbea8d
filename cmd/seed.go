package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/config"
	"github.com/landmarktitle/tessa/internal/db"
	"github.com/landmarktitle/tessa/internal/kb"
	"github.com/landmarktitle/tessa/internal/users"
	"github.com/landmarktitle/tessa/internal/workspace"
)

var (
	seedAdminEmail    string
	seedAdminName     string
	seedAdminPassword string
)

// defaultWorkspaces are created on first run.
var defaultWorkspaces = []struct {
	name string
	slug string
}{
	{"Underwriting Knowledge", "underwriting"},
	{"Operations Manual", "operations"},
}

// defaultTopics seed the underwriting taxonomy.
var defaultTopics = []string{
	"Bankruptcy", "Probate", "Trusts", "Liens", "Foreclosure",
	"Power of Attorney", "Entity Documents", "Other",
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default workspaces, topics, and an initial admin user",
	Long: `Seeds the database with the two standard workspaces, the underwriting
topic taxonomy, and optionally an initial admin account. Safe to run
more than once; existing rows are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		database, err := db.Open(filepath.Join(cfg.DataDir, "tessa.db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		ctx := context.Background()
		wsStore := workspace.NewStore(database)
		kbStore := kb.NewStore(database)

		var underwritingID string
		for _, w := range defaultWorkspaces {
			ws, err := wsStore.EnsureWorkspace(ctx, w.name, w.slug)
			if err != nil {
				return fmt.Errorf("ensuring workspace %q: %w", w.name, err)
			}
			if w.slug == "underwriting" {
				underwritingID = ws.ID
			}
			logrus.WithFields(logrus.Fields{"workspace": ws.Name, "id": ws.ID}).Info("workspace ready")
		}

		for _, name := range defaultTopics {
			if _, created, err := kbStore.GetOrCreateTopic(ctx, underwritingID, name); err != nil {
				return fmt.Errorf("ensuring topic %q: %w", name, err)
			} else if created {
				logrus.WithField("topic", name).Info("topic created")
			}
		}

		if seedAdminEmail != "" {
			if len(seedAdminPassword) < auth.MinPasswordLength {
				return fmt.Errorf("admin password must be at least %d characters", auth.MinPasswordLength)
			}
			userStore := users.NewStore(database, cfg.BcryptCost)
			user, err := userStore.Create(ctx, users.CreateParams{
				Email:    seedAdminEmail,
				Name:     seedAdminName,
				Password: seedAdminPassword,
				Role:     "admin",
			})
			switch {
			case errors.Is(err, users.ErrEmailExists):
				logrus.WithField("email", seedAdminEmail).Info("admin user already exists")
			case err != nil:
				return fmt.Errorf("creating admin user: %w", err)
			default:
				logrus.WithFields(logrus.Fields{"email": user.Email, "id": user.ID}).Info("admin user created")
			}
		}

		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "", "email for the initial admin user")
	seedCmd.Flags().StringVar(&seedAdminName, "admin-name", "Administrator", "name for the initial admin user")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "", "password for the initial admin user")
	rootCmd.AddCommand(seedCmd)
}
