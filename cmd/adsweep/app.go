package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/approval"
	"f0oster/adsweep/config"
	"f0oster/adsweep/database"
	"f0oster/adsweep/disable"
	"f0oster/adsweep/orchestrator"
	"f0oster/adsweep/storage"
	"f0oster/adsweep/workflow"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// app holds the process-wide configuration and clients shared by subcommands.
type app struct {
	cfg    *config.Configuration
	logger *zap.Logger
	aws    aws.Config
	store  *storage.S3Store
	db     *database.Database
}

func newApp(ctx context.Context, configName string) (*app, error) {
	cfg, err := config.LoadEnvConfig(configName)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if err := cfg.ResolvePassword(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
		return nil, err
	}

	store := storage.NewS3StoreFromConfig(awsCfg, storage.S3Options{
		Bucket:       cfg.ArtifactsBucket,
		Region:       cfg.S3Region,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3Endpoint != "",
		Logger:       logger,
	})

	a := &app{cfg: cfg, logger: logger, aws: awsCfg, store: store}
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL, logger.Named("database"))
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
	}
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) directory() *activedirectory.ActiveDirectoryInstance {
	return activedirectory.NewActiveDirectoryInstance(a.cfg.DirectorySettings(),
		activedirectory.WithLogger(a.logger.Named("directory")))
}

func (a *app) executor() *disable.Executor {
	opts := []disable.Option{disable.WithLogger(a.logger.Named("disable"))}
	if a.db != nil {
		opts = append(opts, disable.WithAudit(a.db))
	}
	return disable.NewExecutor(func() disable.Directory { return a.directory() }, a.cfg.DisableActor, opts...)
}

func (a *app) service() *workflow.Service {
	opts := []workflow.Option{
		workflow.WithDisabler(a.executor()),
		workflow.WithLogger(a.logger.Named("workflow")),
	}
	if a.db != nil {
		opts = append(opts, workflow.WithPruner(a.db))
	}
	return workflow.NewService(a.cfg.Policy(), func() workflow.Directory { return a.directory() }, a.store, opts...)
}

func (a *app) orchestrator() *orchestrator.Client {
	return orchestrator.NewFromConfig(a.aws, a.cfg.SFNArn, a.cfg.SFNEndpoint, a.logger.Named("orchestrator"))
}

func (a *app) slackClient() *slack.Client {
	return slack.New(a.cfg.SlackAPIToken)
}

func (a *app) notifier() (*approval.Notifier, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return approval.NewNotifier(a.slackClient(), a.cfg.SlackChannelID, a.store,
		approval.WithLocation(loc),
		approval.WithNotifierLogger(a.logger.Named("notifier")),
	), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
