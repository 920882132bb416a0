/*
 * Copyright (c) 2018 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/metrics/prometheus"
	"github.com/vmware/go-kcl-leases/leases/impl"
	"github.com/vmware/go-kcl-leases/leases/postgres"
	"github.com/vmware/go-kcl-leases/leases/redisleases"
	"github.com/vmware/go-kcl-leases/logger"
	"github.com/vmware/go-kcl-leases/logger/zap"
	"github.com/vmware/go-kcl-leases/logger/zerolog"
)

const (
	backendDynamoDB = "dynamodb"
	backendPostgres = "postgres"
	backendRedis    = "redis"
)

type options struct {
	backend     string
	app         string
	table       string
	region      string
	endpoint    string
	dbURL       string
	redisAddr   string
	redisPrefix string
	output      string
	logFormat   string
	logLevel    string
	metricsAddr string
}

var opts options

func main() {
	var rootCmd = &cobra.Command{
		Use:   "leasectl",
		Short: "Inspect and maintain a shard lease table",
		Long: `Leasectl reads and repairs the lease table shared by the workers of a stream
application. It talks to the same DynamoDB, PostgreSQL or Redis store the workers use.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.backend, "backend", backendDynamoDB, "Lease store: dynamodb, postgres or redis")
	flags.StringVar(&opts.app, "app", "leasectl", "Application name, the default table name")
	flags.StringVar(&opts.table, "table", "", "Lease table name (defaults to the application name)")
	flags.StringVar(&opts.region, "region", "us-west-2", "AWS region")
	flags.StringVar(&opts.endpoint, "endpoint", "", "DynamoDB and Kinesis endpoint override")
	flags.StringVar(&opts.dbURL, "db-url", "postgres://localhost:5432/leases?sslmode=disable", "PostgreSQL connection URL")
	flags.StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "Redis address")
	flags.StringVar(&opts.redisPrefix, "redis-prefix", config.DefaultRedisKeyPrefix, "Redis key prefix")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "Output format: table or yaml")
	flags.StringVar(&opts.logFormat, "log-format", "logrus", "Logger: logrus, zap or zerolog")
	flags.StringVar(&opts.logLevel, "log-level", logger.Warn, "Log level")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :8080")

	rootCmd.AddCommand(
		newCreateTableCmd(),
		newListCmd(),
		newShowCmd(),
		newLineageCmd(),
		newDeleteCmd(),
		newSyncCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() (logger.Logger, error) {
	cfg := logger.Configuration{
		EnableConsole: true,
		ConsoleLevel:  opts.logLevel,
	}
	switch opts.logFormat {
	case "logrus":
		return logger.NewLogrusLoggerWithConfig(cfg), nil
	case "zap":
		return zap.NewZapLoggerWithConfig(cfg), nil
	case "zerolog":
		return zerolog.NewZerologLoggerWithConfig(cfg), nil
	}
	return nil, fmt.Errorf("unknown log format %q", opts.logFormat)
}

// newConfig builds the client configuration for stream. Commands that never touch the stream pass the table name.
func newConfig(stream string) (*config.LeaseClientConfiguration, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	cfg := config.NewLeaseClientConfig(opts.app, stream, opts.region, "").
		WithDynamoDBEndpoint(opts.endpoint).
		WithKinesisEndpoint(opts.endpoint).
		WithRedisKeyPrefix(opts.redisPrefix).
		WithLogger(log)
	if opts.table != "" {
		cfg.WithTableName(opts.table)
	}

	if opts.metricsAddr != "" {
		mService := prometheus.NewMonitoringService(opts.metricsAddr, opts.region, log)
		if err := mService.Init(metricNamespace(opts.app), stream, cfg.WorkerID); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		cfg.WithMonitoringService(mService)
	}
	return cfg, nil
}

// metricNamespace turns an application name into a valid Prometheus namespace.
func metricNamespace(app string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, app)
}

// newManager connects to the configured backend. The returned closer releases its connections.
func newManager(cfg *config.LeaseClientConfiguration) (impl.ILeaseManager, func(), error) {
	var (
		mgr    impl.ILeaseManager
		closer = func() {}
	)

	switch opts.backend {
	case backendDynamoDB:
		dynamo := impl.NewDynamoLeaseManager(cfg)
		if err := dynamo.Init(); err != nil {
			return nil, nil, err
		}
		mgr = dynamo
	case backendPostgres:
		pg, err := postgres.Open(cfg, opts.dbURL)
		if err != nil {
			return nil, nil, err
		}
		mgr = pg
		closer = func() { _ = pg.Close() }
	case backendRedis:
		client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		mgr = redisleases.NewRedisLeaseManager(cfg, client)
		closer = func() { _ = client.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", opts.backend)
	}

	if opts.metricsAddr != "" {
		if err := cfg.MonitoringService.Start(); err != nil {
			closer()
			return nil, nil, err
		}
		inner := closer
		closer = func() {
			cfg.MonitoringService.Shutdown()
			inner()
		}
	}
	return impl.NewMonitoredLeaseManager(mgr, cfg.MonitoringService, cfg.WorkerID), closer, nil
}

// withManager runs fn against the lease table.
func withManager(ctx context.Context, stream string, fn func(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) error) error {
	cfg, err := newConfig(stream)
	if err != nil {
		return err
	}
	mgr, closer, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer closer()
	return fn(ctx, cfg, mgr)
}

func tableName() string {
	if opts.table != "" {
		return opts.table
	}
	return opts.app
}
