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
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/vmware/go-kcl-leases/leases/impl"
)

const (
	outputTable = "table"
	outputYAML  = "yaml"
)

// LeaseView is the printable form of a lease.
type LeaseView struct {
	Key               string        `yaml:"leaseKey"`
	Owner             string        `yaml:"leaseOwner,omitempty"`
	Counter           int64         `yaml:"leaseCounter"`
	Checkpoint        string        `yaml:"checkpoint,omitempty"`
	PendingCheckpoint string        `yaml:"pendingCheckpoint,omitempty"`
	OwnerSwitches     int64         `yaml:"ownerSwitchesSinceCheckpoint"`
	Parents           []string      `yaml:"parentShardIds,omitempty"`
	Children          []string      `yaml:"childShardIds,omitempty"`
	HashKeyRange      *HashKeyRange `yaml:"hashKeyRange,omitempty"`
	Closed            bool          `yaml:"closed"`
}

type HashKeyRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func toView(lease *impl.KinesisClientLease) LeaseView {
	view := LeaseView{
		Key:           lease.GetLeaseKey(),
		Owner:         lease.GetLeaseOwner(),
		Counter:       lease.GetLeaseCounter(),
		OwnerSwitches: lease.GetOwnerSwitchesSinceCheckpoint(),
		Parents:       nilIfEmpty(lease.GetParentShardIds()),
		Children:      nilIfEmpty(lease.GetChildShardIds()),
		Closed:        lease.IsClosed(),
	}
	if cp := lease.GetCheckpoint(); cp != nil {
		view.Checkpoint = cp.String()
	}
	if pending := lease.GetPendingCheckpoint(); pending != nil {
		view.PendingCheckpoint = pending.String()
	}
	if hkr := lease.GetHashKeyRange(); hkr != nil {
		view.HashKeyRange = &HashKeyRange{Start: hkr.SerializedStartingHashKey(), End: hkr.SerializedEndingHashKey()}
	}
	return view
}

func toViews(leases []*impl.KinesisClientLease) []LeaseView {
	views := make([]LeaseView, 0, len(leases))
	for _, l := range leases {
		views = append(views, toView(l))
	}
	return views
}

func writeViews(w io.Writer, format string, views []LeaseView) error {
	switch format {
	case outputYAML:
		return writeYAML(w, views)
	case outputTable:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tOWNER\tCOUNTER\tCHECKPOINT\tPENDING\tSWITCHES\tPARENTS\tCHILDREN\tCLOSED")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\t%t\n",
				v.Key, orDash(v.Owner), v.Counter, orDash(v.Checkpoint), orDash(v.PendingCheckpoint),
				v.OwnerSwitches, orDash(strings.Join(v.Parents, ",")), orDash(strings.Join(v.Children, ",")), v.Closed)
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func nilIfEmpty(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
