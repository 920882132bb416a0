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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/topology"
	"github.com/vmware/go-kcl-leases/leases/impl"
)

func newCreateTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-table",
		Short: "Create the lease table unless it exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), tableName(), func(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) error {
				created, err := ensureTable(ctx, cfg, mgr)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Created lease table %s\n", cfg.TableName)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Lease table %s already exists\n", cfg.TableName)
				}
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every lease in the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), tableName(), func(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) error {
				leases, err := mgr.ListLeases(ctx)
				if err != nil {
					return err
				}
				return writeViews(cmd.OutOrStdout(), opts.output, toViews(leases))
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <lease-key>",
		Short: "Show one lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), tableName(), func(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) error {
				lease, err := mgr.GetLease(ctx, args[0])
				if err != nil {
					return err
				}
				if lease == nil {
					return fmt.Errorf("no lease %s in table %s", args[0], cfg.TableName)
				}
				return writeViews(cmd.OutOrStdout(), opts.output, []LeaseView{toView(lease)})
			})
		},
	}
}

// LineageReport summarises a lineage check.
type LineageReport struct {
	Leases   int    `yaml:"leases"`
	Open     int    `yaml:"open"`
	Lineage  string `yaml:"lineage"`
	Coverage string `yaml:"coverage"`
}

func newLineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage",
		Short: "Check parent and child links and hash key coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), tableName(), func(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) error {
				leases, err := mgr.ListLeases(ctx)
				if err != nil {
					return err
				}

				report := checkLineage(leases)
				if err := writeYAML(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.Lineage != statusOK {
					return fmt.Errorf("lineage of table %s is inconsistent", cfg.TableName)
				}
				return nil
			})
		},
	}
}

const (
	statusOK      = "ok"
	statusSkipped = "skipped, not every lease has a hash key range"
)

func checkLineage(leases []*impl.KinesisClientLease) LineageReport {
	report := LineageReport{Leases: len(leases), Lineage: statusOK, Coverage: statusOK}
	if err := impl.ValidateLineage(leases); err != nil {
		report.Lineage = err.Error()
	}

	var open []*impl.KinesisClientLease
	for _, l := range leases {
		if l.GetHashKeyRange() == nil {
			report.Coverage = statusSkipped
		}
		if !l.IsClosed() {
			open = append(open, l)
		}
	}
	report.Open = len(open)

	if report.Coverage == statusOK {
		if err := impl.CheckHashKeySpaceCoverage(open); err != nil {
			report.Coverage = err.Error()
		}
	}
	return report
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <lease-key>",
		Short: "Delete one lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), tableName(), func(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) error {
				lease, err := mgr.GetLease(ctx, args[0])
				if err != nil {
					return err
				}
				if lease == nil {
					return fmt.Errorf("no lease %s in table %s", args[0], cfg.TableName)
				}
				if err := mgr.DeleteLease(ctx, lease); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted lease %s\n", args[0])
				return nil
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	var (
		stream   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the lease table in line with the shards of a stream",
		Long: `Sync creates leases for new shards, records children on their parents and, unless
disabled, removes leases of shards that were processed to their end. With --interval it
keeps syncing until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withManager(ctx, stream, func(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) error {
				if _, err := ensureTable(ctx, cfg, mgr); err != nil {
					return err
				}

				detector := topology.NewKinesisShardDetector(cfg)
				if err := detector.Init(); err != nil {
					return err
				}
				syncer := impl.NewShardSyncer(cfg, detector, mgr)

				for {
					result, err := syncer.Sync(ctx)
					if err != nil {
						return err
					}
					if err := writeYAML(cmd.OutOrStdout(), result); err != nil {
						return err
					}
					if interval <= 0 {
						return nil
					}

					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&stream, "stream", "", "Kinesis stream name")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Sync repeatedly at this interval")
	_ = cmd.MarkFlagRequired("stream")
	return cmd
}

// ensureTable creates the lease table if needed and waits until it can be used.
func ensureTable(ctx context.Context, cfg *config.LeaseClientConfiguration, mgr impl.ILeaseManager) (bool, error) {
	created, err := mgr.CreateLeaseTableIfNotExists(ctx)
	if err != nil {
		return false, err
	}
	exists, err := mgr.WaitUntilLeaseTableExists(ctx, int64(cfg.LeaseTablePollSeconds), int64(cfg.LeaseTableTimeoutSeconds))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("lease table %s did not become ready", cfg.TableName)
	}
	return created, nil
}
