package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/pagesweep/internal/cli/output"
	"github.com/marmos91/pagesweep/internal/cli/timeutil"
	"github.com/marmos91/pagesweep/pkg/apiclient"
	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/sysctl"
	"github.com/marmos91/pagesweep/pkg/writeback"
)

// printResult prints raw as JSON or YAML, or table in table format.
func printResult(p *output.Printer, raw any, table output.TableRenderer) error {
	if p.Format() == output.FormatTable {
		return output.PrintTable(p.Writer(), table)
	}
	return p.Print(raw)
}

// printKeyValues is printResult for single-object results.
func printKeyValues(p *output.Printer, raw any, pairs [][2]string) error {
	if p.Format() == output.FormatTable {
		return output.KeyValues(p.Writer(), pairs)
	}
	return p.Print(raw)
}

func itoa(n int) string { return strconv.Itoa(n) }

func sweepTable(res *sweep.Result) *output.Table {
	t := output.NewTable("Phase", "Filesystem", "Duration")
	for _, ph := range res.Phases {
		fs := ph.Filesystem
		if fs == "" {
			fs = "-"
		}
		t.AddRow(string(ph.Phase), fs, timeutil.Elapsed(ph.Duration))
	}
	return t
}

func sweepSummary(res *sweep.Result) [][2]string {
	return [][2]string{
		{"Sweep", res.ID.String()},
		{"Policy", res.Policy.String()},
		{"Filesystems", strings.Join(res.Filesystems, ", ")},
		{"Visited", itoa(res.Visited)},
		{"Pages dropped", itoa(res.PagesDropped)},
		{"Object errors", itoa(res.ObjectErrors)},
		{"Slab freed", itoa(res.SlabFreed)},
		{"Duration", timeutil.Elapsed(res.Duration)},
	}
}

func dropSummary(out *sysctl.Outcome) [][2]string {
	pairs := [][2]string{
		{"Value", itoa(out.Value)},
		{"Page cache", strconv.FormatBool(out.Flags.PageCache)},
		{"Slab", strconv.FormatBool(out.Flags.Slab)},
		{"Quiet", strconv.FormatBool(out.Flags.Quiet)},
	}
	if out.PageCache != nil {
		pairs = append(pairs, [2]string{"Pages dropped", itoa(out.PageCache.PagesDropped)})
	}
	if out.Flags.Slab {
		pairs = append(pairs, [2]string{"Slab freed", itoa(out.SlabFreed)})
	}
	return append(pairs, [2]string{"Logged", strconv.FormatBool(out.Logged)})
}

func passSummary(pass *writeback.Pass) [][2]string {
	return [][2]string{
		{"Filesystems", itoa(pass.Filesystems)},
		{"Inodes", itoa(pass.Inodes)},
		{"Pages", itoa(pass.Pages)},
		{"Failures", itoa(pass.Failures)},
		{"Duration", timeutil.Elapsed(pass.Duration)},
	}
}

func filesystemsTable(list []apiclient.Filesystem) *output.Table {
	t := output.NewTable("Name", "ID", "Page size", "Inodes", "Pages", "Dirty", "Writeback", "Invalid")
	for _, fs := range list {
		t.AddRow(fs.Name, strconv.FormatUint(fs.ID, 10), itoa(fs.PageSize),
			itoa(fs.Stats.Inodes), itoa(fs.Stats.Pages), itoa(fs.Stats.Dirty),
			itoa(fs.Stats.Writeback), itoa(fs.Stats.Invalid))
	}
	return t
}

func inodesTable(fs *apiclient.Filesystem) *output.Table {
	t := output.NewTable("Inode", "State", "Refs", "Links", "Pages", "Dirty", "Writeback", "Pinned")
	for _, ino := range fs.Inodes {
		t.AddRow(strconv.FormatUint(ino.ID, 10), ino.State, strconv.Itoa(int(ino.Refs)),
			strconv.FormatUint(uint64(ino.Links), 10), itoa(ino.Cache.Pages), itoa(ino.Cache.Dirty),
			itoa(ino.Cache.Writeback), itoa(ino.Cache.Pinned))
	}
	return t
}

func statusSummary(st *apiclient.Status) [][2]string {
	pairs := [][2]string{
		{"Started", timeutil.Local(st.StartedAt)},
		{"Uptime", timeutil.Uptime(time.Since(st.StartedAt))},
		{"Filesystems", itoa(st.Filesystems)},
		{"drop_caches", itoa(st.DropCaches)},
		{"Quiet", strconv.FormatBool(st.Quiet)},
		{"drop_pagecache", strconv.FormatUint(st.VMStat.DropPagecache, 10)},
		{"drop_slab", strconv.FormatUint(st.VMStat.DropSlab, 10)},
		{"Writeback passes", itoa(st.Writeback.Passes)},
		{"Writeback pages", itoa(st.Writeback.Pages)},
		{"Writeback failures", itoa(st.Writeback.Failures)},
		{"Hooks", hookSlots(st.Hooks)},
		{"Pending state", st.Pending.String()},
	}
	if st.Writeback.LastError != "" {
		pairs = append(pairs, [2]string{"Last writeback error", st.Writeback.LastError})
	}
	if st.LastSweep != nil {
		pairs = append(pairs, [2]string{"Last sweep",
			fmt.Sprintf("%s, %d pages, %s", st.LastSweep.Policy, st.LastSweep.PagesDropped, timeutil.Local(st.LastSweep.StartedAt))})
	}
	return pairs
}

func hookSlots(s coherence.Slots) string {
	var on []string
	for _, slot := range []struct {
		name string
		set  bool
	}{{"lock", s.Lock}, {"sync", s.Sync}, {"invalidate", s.Invalidate}, {"unlock", s.Unlock}} {
		if slot.set {
			on = append(on, slot.name)
		}
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, ",")
}

func pendingTable(snap coherence.Snapshot) *output.Table {
	t := output.NewTable("Path", "File ID")
	for _, e := range snap.Entries {
		t.AddRow(e.Path, strconv.FormatUint(e.FileID, 10))
	}
	return t
}
