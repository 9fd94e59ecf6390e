package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trashbin/app"
	"trashbin/config"
	"trashbin/store"
	"trashbin/utils"
)

// opener builds the application for one command and returns a release
// func for its resources.
type opener func(ctx context.Context, envFile string, verbose bool) (*app.App, func(), error)

var cliFlags struct {
	envFile string
	verbose bool
	timeout time.Duration
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "trashctl",
		Short: "Inspect and operate the trash purge queue",
		Long: `trashctl talks to the same MongoDB database as the server and operates
the purge queue: run or queue the trash scan, list queued and dead-lettered
tasks, cancel a pending purge, or drain due tasks in-process.

Configuration is read from the environment, optionally from an env file.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cliFlags.envFile, "env-file", "", "load environment variables from this file")
	root.PersistentFlags().BoolVarP(&cliFlags.verbose, "verbose", "v", false, "log pipeline activity")
	root.PersistentFlags().DurationVar(&cliFlags.timeout, "timeout", 5*time.Minute, "overall command timeout")

	root.AddCommand(
		newScanCmd(open),
		newTasksCmd(open),
		newFailuresCmd(open),
		newCancelCmd(open),
		newDrainCmd(open),
	)
	return root
}

// withApp opens the application, runs fn and releases it.
func withApp(cmd *cobra.Command, open opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cliFlags.timeout)
	defer cancel()

	a, release, err := open(ctx, cliFlags.envFile, cliFlags.verbose)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, a)
}

func mongoOpener(ctx context.Context, envFile string, verbose bool) (*app.App, func(), error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	if !verbose {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	release := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		_ = logger.Sync()
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	blobs, err := app.OpenBlobStore(ctx, cfg, logger)
	if err != nil {
		release()
		return nil, nil, err
	}

	db := client.Database(cfg.DatabaseName)
	a := app.New(cfg, app.Deps{
		Collection: func(name string) store.Collection { return store.Mongo(db.Collection(name)) },
		Blobs:      blobs,
		Logger:     logger,
	})
	return a, release, nil
}
