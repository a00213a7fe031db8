package commands

import (
	"context"
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/config"
	"github.com/schemaflow/schemaflow/pkg/dbtools"
	"github.com/schemaflow/schemaflow/pkg/objectstore"
	"github.com/schemaflow/schemaflow/pkg/policy"
	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/report"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
	"github.com/schemaflow/schemaflow/pkg/transfer"
	"github.com/schemaflow/schemaflow/pkg/transports/ssh"
)

// app holds the wired collaborators shared by the CLI commands. Built
// once per invocation from the config file.
type app struct {
	cfg     *config.Config
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	dialer     *ssh.Dialer
	files      *transfer.SSHFiles
	bucket     *objectstore.Client
	store      *report.SQLiteStore
	policy     *policy.Engine
	classifier *refresh.Classifier
}

// buildApp loads the configuration and wires every collaborator except
// the per-request transfer strategy, which depends on the method the
// request asks for.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.DefaultConfig()
	}
	tel.ServiceVersion = buildVersion

	logger, err := telemetry.NewLogger(tel.Logging)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	metrics, err := telemetry.NewMetrics(tel.Metrics)
	if err != nil {
		return nil, fmt.Errorf("setup metrics: %w", err)
	}

	tracer, err := telemetry.NewTracer(ctx, tel.ServiceName, tel.ServiceVersion, tel.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	classifier := refresh.NewClassifier()
	if cfg.Classifier.Extended() {
		classifier.AddExportBenign(cfg.Classifier.ExportBenign...)
		classifier.AddDropBenign(cfg.Classifier.DropBenign...)
	} else {
		logger.Warn("benign-outcome match tables are the English-locale defaults; localized tool output will classify as fatal")
	}

	dialer := ssh.NewDialer(ssh.Config{
		User:                  cfg.SSH.User,
		AuthMethod:            ssh.AuthMethodKey,
		PrivateKeyPath:        cfg.SSH.PrivateKeyPath,
		KnownHostsPath:        cfg.SSH.KnownHostsPath,
		StrictHostKeyChecking: cfg.SSH.StrictHostKeyChecking,
		ConnectionTimeout:     cfg.SSH.ConnectTimeout.Std(),
	})

	var bucket *objectstore.Client
	if cfg.ObjectStore != nil {
		bucket, err = objectstore.NewClient(*cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("setup object store: %w", err)
		}
	}

	store, err := report.NewSQLiteStore(report.Config{Path: cfg.ReportPath})
	if err != nil {
		return nil, fmt.Errorf("setup run history: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}

	engine, err := policy.NewEngine(logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("setup policy engine: %w", err)
	}
	if len(cfg.PolicyPaths) > 0 {
		if err := engine.LoadPolicies(ctx, cfg.PolicyPaths); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("load policies: %w", err)
		}
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		dialer:     dialer,
		files:      transfer.NewSSHFiles(dialer),
		bucket:     bucket,
		store:      store,
		policy:     engine,
		classifier: classifier,
	}, nil
}

// close releases the app's resources. Tracer shutdown flushes pending
// spans, so it runs before anything else.
func (a *app) close(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Warn("tracer shutdown failed")
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// transferFor builds the fallback-wrapped transfer strategy for the
// request's method.
func (a *app) transferFor(method refresh.TransferMethod) (refresh.Transfer, error) {
	factory := &transfer.Factory{
		Files:    a.files,
		SpoolDir: a.cfg.Transfer.SpoolDir,
		Retry: transfer.RetryPolicy{
			MaxAttempts: a.cfg.Transfer.MaxAttempts,
			BaseDelay:   a.cfg.Transfer.RetryBaseDelay.Std(),
			MaxDelay:    a.cfg.Transfer.RetryMaxDelay.Std(),
		},
		Logger:  a.logger,
		Metrics: a.metrics,
	}
	if a.bucket != nil {
		factory.Bucket = a.bucket
		factory.BucketName = a.cfg.ObjectStore.Bucket
	}
	return factory.ForMethod(method)
}

// orchestratorFor assembles the orchestrator for one request.
func (a *app) orchestratorFor(req *refresh.RefreshRequest) (*refresh.Orchestrator, error) {
	strategy, err := a.transferFor(req.Method)
	if err != nil {
		return nil, err
	}

	runner := dbtools.NewSSHRunner(a.dialer)
	creds := dbtools.NewEnvCredentialResolver()
	pump := dbtools.NewDataPump(runner, creds, a.cfg.Tools, a.logger)
	sqlRunner := dbtools.NewSQLRunner(runner, creds, a.cfg.Tools, a.logger)
	probe := ssh.NewProbe(a.dialer)

	return refresh.NewOrchestrator(refresh.Deps{
		Classifier: a.classifier,
		Preflight:  refresh.NewPreflightValidator(probe, a.policy, a.cfg.MinFreeBytes, a.logger),
		Exporter:   pump,
		Importer:   pump,
		Dropper:    sqlRunner,
		Killer:     sqlRunner,
		Verifier:   sqlRunner,
		Transfer:   strategy,
		Report:     a.store,
		Logger:     a.logger,
		Metrics:    a.metrics,
		Tracer:     a.tracer,
	}), nil
}
