package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/emrgen/docvault/internal/config"
	"github.com/emrgen/docvault/internal/jobs"
	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/server"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(Migrate())
	dbCmd.AddCommand(Repair())
	dbCmd.AddCommand(Sweep())
}

func Migrate() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database",
		Run: func(cmd *cobra.Command, args []string) {
			db := config.GetDb(config.LoadConfig())
			err := model.Migrate(db)
			if err != nil {
				panic(err)
			}
			color.Green("database migrated")
		},
	}

	return command
}

// Repair restores the latest flag on documents that lost it.
func Repair() *cobra.Command {
	command := &cobra.Command{
		Use:   "repair",
		Short: "Flag the newest version of documents without a latest version",
		Run: func(cmd *cobra.Command, args []string) {
			app, err := server.Build(context.Background(), config.LoadConfig())
			if err != nil {
				logrus.Error(err)
				return
			}
			defer app.Close()

			repaired, err := app.Docs.Chain().Repair(cmd.Context())
			if err != nil {
				logrus.Error(err)
				return
			}
			color.Green("repaired %d documents", repaired)
		},
	}

	return command
}

// Sweep retries deleting artifacts left behind by document deletes.
func Sweep() *cobra.Command {
	command := &cobra.Command{
		Use:   "sweep",
		Short: "Delete artifacts left behind by failed document deletes",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			app, err := server.Build(context.Background(), cfg)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer app.Close()

			removed, err := jobs.NewArtifactJanitor(cfg.Jobs.JanitorSchedule, app.Store, app.Blobs).Sweep(cmd.Context())
			if err != nil {
				logrus.Error(err)
				return
			}
			color.Green("removed %d artifacts", removed)
		},
	}

	return command
}
