// Package pkgdb tracks the host's installed packages: a mapping from
// port origin to the set of installed package names, loaded from the
// host packager's query interface at startup and kept in sync as
// installs and deinstalls complete. The database is read-mostly — the
// packager itself owns the real record; this is the run's cached view.
package pkgdb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"portforge/port"
)

// PackageDB is the host package database as the orchestrator consumes
// it. PkgNG is the real implementation; Fake backs tests.
type PackageDB interface {
	// Load (re)loads the origin -> package-name mapping from the host
	// packager.
	Load() error

	// Add records that pkgName was installed for origin.
	Add(origin, pkgName string)

	// Remove drops every installed package of origin sharing pkgName's
	// port name (any version).
	Remove(origin, pkgName string)

	// Status reports origin's install state relative to pkgName, the
	// recipe's current package name.
	Status(origin, pkgName string) port.InstallStatus

	// Options queries a package's option set as name -> enabled.
	// remote selects the repository catalogue instead of the installed
	// package.
	Options(pkgName string, remote bool) (map[string]bool, error)
}

// PkgNG queries the pkg(8) package manager.
type PkgNG struct {
	bin string
	db  map[string]map[string]bool // origin -> set of pkgnames
}

// NewPkgNG creates a PkgNG shelling out to bin (normally "pkg"). The
// database is empty until Load.
func NewPkgNG(bin string) *PkgNG {
	return &PkgNG{bin: bin, db: make(map[string]map[string]bool)}
}

// Load lists every installed package with its origin, one
// "name-version:origin" pair per line.
func (p *PkgNG) Load() error {
	out, err := exec.Command(p.bin, "query", "%n-%v:%o").Output()
	if err != nil {
		return fmt.Errorf("pkgdb: listing installed packages: %w", err)
	}
	p.db = parseListing(bytes.NewReader(out))
	return nil
}

// parseListing reads "pkgname:origin" lines into the origin-keyed map.
// Malformed lines are skipped rather than failing the whole load.
func parseListing(r io.Reader) map[string]map[string]bool {
	db := make(map[string]map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		i := strings.LastIndexByte(line, ':')
		if i <= 0 || i == len(line)-1 {
			continue
		}
		pkgName, origin := line[:i], line[i+1:]
		if db[origin] == nil {
			db[origin] = make(map[string]bool)
		}
		db[origin][pkgName] = true
	}
	return db
}

// Add records an install.
func (p *PkgNG) Add(origin, pkgName string) {
	if p.db[origin] == nil {
		p.db[origin] = make(map[string]bool)
	}
	p.db[origin][pkgName] = true
}

// Remove drops every recorded package of origin whose port name (the
// package name with its version stripped) matches pkgName's.
func (p *PkgNG) Remove(origin, pkgName string) {
	want := portName(pkgName)
	for name := range p.db[origin] {
		if portName(name) == want {
			delete(p.db[origin], name)
		}
	}
}

// Status compares every installed package of origin sharing pkgName's
// port name against pkgName, reporting the most advanced match: Absent
// when nothing is installed, otherwise Older/Current/Newer by version
// comparison.
func (p *PkgNG) Status(origin, pkgName string) port.InstallStatus {
	status := port.Absent
	want := portName(pkgName)
	for installed := range p.db[origin] {
		if portName(installed) != want {
			continue
		}
		if s := versionStatus(installed, pkgName); s > status {
			status = s
		}
	}
	return status
}

// Options runs the packager's per-package option query, "%Ok %Ov"
// yielding one "NAME on|off" line per option. remote consults the
// repository catalogue (rquery) instead of the installed package.
func (p *PkgNG) Options(pkgName string, remote bool) (map[string]bool, error) {
	sub := "query"
	if remote {
		sub = "rquery"
	}
	out, err := exec.Command(p.bin, sub, "%Ok %Ov", pkgName).Output()
	if err != nil {
		return nil, fmt.Errorf("pkgdb: querying options of %s: %w", pkgName, err)
	}
	return parseOptions(bytes.NewReader(out)), nil
}

func parseOptions(r io.Reader) map[string]bool {
	opts := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		opts[fields[0]] = fields[1] == "on"
	}
	return opts
}

// portName strips the version component off a package name.
func portName(pkgName string) string {
	if i := strings.LastIndexByte(pkgName, '-'); i > 0 {
		return pkgName[:i]
	}
	return pkgName
}

// versionStatus maps a version comparison of an installed package
// against the recipe's current package name onto InstallStatus.
func versionStatus(installed, current string) port.InstallStatus {
	switch Compare(installed, current) {
	case -1:
		return port.Older
	case 1:
		return port.Newer
	default:
		return port.Current
	}
}
