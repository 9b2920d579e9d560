package pkgdb

import (
	"fmt"

	"portforge/port"
)

// Fake is an in-memory PackageDB for tests: the same bookkeeping as
// PkgNG without shelling out to the packager.
type Fake struct {
	Installed     map[string]map[string]bool // origin -> set of pkgnames
	LocalOptions  map[string]map[string]bool // pkgname -> option set
	RemoteOptions map[string]map[string]bool
	LoadErr       error
	Loads         int
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Installed:     make(map[string]map[string]bool),
		LocalOptions:  make(map[string]map[string]bool),
		RemoteOptions: make(map[string]map[string]bool),
	}
}

func (f *Fake) Load() error {
	f.Loads++
	return f.LoadErr
}

func (f *Fake) Add(origin, pkgName string) {
	if f.Installed[origin] == nil {
		f.Installed[origin] = make(map[string]bool)
	}
	f.Installed[origin][pkgName] = true
}

func (f *Fake) Remove(origin, pkgName string) {
	want := portName(pkgName)
	for name := range f.Installed[origin] {
		if portName(name) == want {
			delete(f.Installed[origin], name)
		}
	}
}

func (f *Fake) Status(origin, pkgName string) port.InstallStatus {
	status := port.Absent
	want := portName(pkgName)
	for installed := range f.Installed[origin] {
		if portName(installed) != want {
			continue
		}
		if s := versionStatus(installed, pkgName); s > status {
			status = s
		}
	}
	return status
}

func (f *Fake) Options(pkgName string, remote bool) (map[string]bool, error) {
	src := f.LocalOptions
	if remote {
		src = f.RemoteOptions
	}
	opts, ok := src[pkgName]
	if !ok {
		return nil, fmt.Errorf("pkgdb: no such package %s", pkgName)
	}
	return opts, nil
}
