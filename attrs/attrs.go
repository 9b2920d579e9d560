// Package attrs populates a port's Attributes by querying its Makefile with
// a single batched `make -V` invocation per origin, then fetches the whole
// requested set concurrently with an errgroup-bounded worker pool.
//
// One process per port instead of one per variable keeps the discovery
// phase bounded by the ports tree's Makefile parse time, not process
// spawn overhead.
package attrs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"portforge/port"
)

// queryVars is the fixed order of variables queried in one make -V call.
// Index N here must match the line N parsing in parseOutput.
var queryVars = []string{
	"PKGNAME",
	"PKGFILE",
	"DISTFILES",
	"DISTDIR",
	"DISTINFO_FILE",
	"NOPACKAGE",
	"JOBS_NUMBER",
	"CATEGORIES",
	"PREFIX",
	"WRKDIR",
	"MAKEFILE_LIST",
	"FETCH_DEPENDS",
	"EXTRACT_DEPENDS",
	"PATCH_DEPENDS",
	"BUILD_DEPENDS",
	"LIB_DEPENDS",
	"RUN_DEPENDS",
}

// Fetcher queries recipe attributes via make -V against a ports tree rooted
// at DportsPath, optionally for a specific flavor.
type Fetcher struct {
	MakeBin    string
	DPortsPath string
}

// NewFetcher builds a Fetcher that invokes makeBin against ports rooted at
// dportsPath.
func NewFetcher(makeBin, dportsPath string) *Fetcher {
	return &Fetcher{MakeBin: makeBin, DPortsPath: dportsPath}
}

// Fetch runs one batched make -V query for origin (e.g. "editors/vim" or
// "editors/vim@python39") and returns its populated Attributes.
func (f *Fetcher) Fetch(ctx context.Context, origin string) (port.Attributes, error) {
	category, name, flavor := splitOrigin(origin)
	portDir := filepath.Join(f.DPortsPath, category, name)

	args := []string{"-C", portDir}
	if flavor != "" {
		args = append(args, "FLAVOR="+flavor)
	}
	for _, v := range queryVars {
		args = append(args, "-V", v)
	}

	cmd := exec.CommandContext(ctx, f.MakeBin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return port.Attributes{}, fmt.Errorf("attrs: query %s: %w", origin, err)
	}

	a, err := parseOutput(out.String())
	if err != nil {
		return port.Attributes{}, fmt.Errorf("attrs: parse %s: %w", origin, err)
	}
	a.Name = name
	a.Category = strings.Fields(a.Category[0])
	a.Flavor = flavor
	return a, nil
}

// FetchAll queries every origin in origins concurrently, bounded to
// concurrency simultaneous make invocations, and returns a map keyed by
// origin. A single origin's failure does not abort the others; it is
// returned in failed instead.
func (f *Fetcher) FetchAll(ctx context.Context, origins []string, concurrency int) (map[string]port.Attributes, map[string]error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make(map[string]port.Attributes, len(origins))
	failed := make(map[string]error)

	type pair struct {
		origin string
		attrs  port.Attributes
		err    error
	}
	out := make(chan pair, len(origins))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, origin := range origins {
		origin := origin
		g.Go(func() error {
			a, err := f.Fetch(gctx, origin)
			out <- pair{origin: origin, attrs: a, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(out)

	for p := range out {
		if p.err != nil {
			failed[p.origin] = p.err
			continue
		}
		results[p.origin] = p.attrs
	}
	return results, failed
}

// splitOrigin splits "category/name@flavor" into its three parts.
func splitOrigin(origin string) (category, name, flavor string) {
	base := origin
	if i := strings.IndexByte(base, '@'); i >= 0 {
		flavor = base[i+1:]
		base = base[:i]
	}
	i := strings.IndexByte(base, '/')
	if i < 0 {
		return "", base, flavor
	}
	return base[:i], base[i+1:], flavor
}

// parseOutput parses the line-per-variable output of the batched make -V
// call into Attributes, in the order declared by queryVars.
func parseOutput(output string) (port.Attributes, error) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) < len(queryVars) {
		return port.Attributes{}, fmt.Errorf("expected %d lines, got %d", len(queryVars), len(lines))
	}

	var a port.Attributes
	a.PkgName = strings.TrimSpace(lines[0])

	pkgFileRaw := strings.TrimSpace(lines[1])
	if pkgFileRaw != "" {
		a.PkgFile = filepath.Base(pkgFileRaw)
	}
	a.NoPackage = a.PkgFile == ""

	a.Distfiles = fields(lines[2])
	a.Distdir = strings.TrimSpace(lines[3])
	a.Distinfo = strings.TrimSpace(lines[4])
	a.NoPackage = a.NoPackage || parseBool(lines[5])

	if n, err := strconv.Atoi(strings.TrimSpace(lines[6])); err == nil {
		a.JobsNumber = n
	}

	// Category is stashed as a single-element slice here and split into
	// words by the caller, which knows whether CATEGORIES carried more
	// than the port's own leading category.
	a.Category = []string{lines[7]}

	a.Prefix = strings.TrimSpace(lines[8])
	a.WrkDir = strings.TrimSpace(lines[9])
	a.Makefiles = fields(lines[10])

	a.FetchDepends = depends("FETCH_DEPENDS", lines[11])
	a.ExtractDepends = depends("EXTRACT_DEPENDS", lines[12])
	a.PatchDepends = depends("PATCH_DEPENDS", lines[13])
	a.BuildDepends = depends("BUILD_DEPENDS", lines[14])
	a.LibDepends = depends("LIB_DEPENDS", lines[15])
	a.RunDepends = depends("RUN_DEPENDS", lines[16])

	return a, nil
}

func fields(s string) []string {
	return strings.Fields(strings.TrimSpace(s))
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "1", "true":
		return true
	default:
		return false
	}
}

// depends splits a *_DEPENDS line into DependTuples, stripping the
// target:origin[:target] make(1) dependency syntax down to the bare,
// PORTSDIR-relative origin.
func depends(field, line string) []port.DependTuple {
	toks := fields(line)
	out := make([]port.DependTuple, 0, len(toks))
	for _, tok := range toks {
		origin := tok
		if i := strings.IndexByte(origin, ':'); i >= 0 {
			origin = origin[i+1:]
		}
		if i := strings.IndexByte(origin, ':'); i >= 0 {
			origin = origin[:i]
		}
		origin = strings.TrimPrefix(origin, "${PORTSDIR}/")
		out = append(out, port.DependTuple{Field: field, Origin: origin})
	}
	return out
}
