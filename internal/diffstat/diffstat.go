// Package diffstat parses git's "diff --numstat" output into the
// dashboard's DiffFile summaries (§5), truncating to the 200 most
// significant entries the way the original implementation does (see
// system/git.rs in the supplemented-feature notes).
package diffstat

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// Parse reads numstat-formatted lines: "<ins>\t<del>\t<path>", where a
// binary file reports "-\t-\t<path>" and is skipped entirely -- git gives
// no usable change volume for it, so there is nothing to rank it by.
func Parse(numstat string) []session.DiffFile {
	var files []session.DiffFile
	for _, line := range strings.Split(numstat, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		ins, insOK := parseCount(fields[0])
		del, delOK := parseCount(fields[1])
		if !insOK && !delOK {
			// Both "-": binary file, skip.
			continue
		}
		files = append(files, session.DiffFile{Path: fields[2], Insertions: ins, Deletions: del})
	}
	return Truncate(files)
}

// ParseUntracked appends entries for paths git reports as untracked
// (e.g. from "git ls-files --others --exclude-standard"), each with
// Untracked set and no insertion/deletion counts (git numstat does not
// cover untracked files).
func ParseUntracked(files []session.DiffFile, untrackedPaths []string) []session.DiffFile {
	for _, p := range untrackedPaths {
		files = append(files, session.DiffFile{Path: p, Untracked: true})
	}
	return files
}

func parseCount(field string) (int, bool) {
	if field == "-" {
		return 0, false
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Truncate sorts by total change size descending and caps the result at
// session.MaxDiffFiles, the most "significant" files by change volume.
func Truncate(files []session.DiffFile) []session.DiffFile {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Insertions+files[i].Deletions > files[j].Insertions+files[j].Deletions
	})
	if len(files) > session.MaxDiffFiles {
		files = files[:session.MaxDiffFiles]
	}
	return files
}
