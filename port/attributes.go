package port

// OptionSpec is one recipe-declared build option: a name, its description,
// and its default setting. Parsed from the space/quote-delimited options
// string; the ordering is preserved since the configurator presents them
// in recipe order.
type OptionSpec struct {
	Name        string
	Description string
	Default     bool
}

// DependTuple is one entry of a dependency vector: the recipe-side field
// the dependency came from (used only for diagnostics — the dependency
// kind itself is carried by which of Attributes' Depends slices it's in)
// and the dependency's origin, already stripped of any PORTSDIR prefix.
type DependTuple struct {
	Field  string
	Origin string
}

// Attributes holds everything retrieved from the recipe via `make -V`.
type Attributes struct {
	Name        string
	PkgName     string
	PkgFile     string
	Options     []OptionSpec
	OptionsFile string
	Distfiles   []string
	Distdir     string
	Distinfo    string
	NoPackage   bool
	JobsNumber  int
	Category    []string
	Prefix      string
	WrkDir      string
	Makefiles   []string

	// Flavor disambiguates multi-flavor ports (e.g. "editors/vim@python39").
	Flavor string

	FetchDepends   []DependTuple
	ExtractDepends []DependTuple
	PatchDepends   []DependTuple
	BuildDepends   []DependTuple
	LibDepends     []DependTuple
	RunDepends     []DependTuple
}

// DependsFor returns the dependency vector for one of the six kinds.
func (a *Attributes) DependsFor(kind DependKind) []DependTuple {
	switch kind {
	case DependBuild:
		return a.BuildDepends
	case DependExtract:
		return a.ExtractDepends
	case DependFetch:
		return a.FetchDepends
	case DependLib:
		return a.LibDepends
	case DependRun:
		return a.RunDepends
	case DependPatch:
		return a.PatchDepends
	default:
		return nil
	}
}

// DependKind enumerates the six dependency vectors a port's recipe
// declares. Package is never a parsed dependency vector, only a derived
// kind used by the stage-to-kind projection.
type DependKind int

const (
	DependBuild DependKind = iota
	DependExtract
	DependFetch
	DependLib
	DependRun
	DependPatch
	DependPackage
	numDependKinds
)

var dependKindNames = [numDependKinds]string{
	DependBuild:   "build",
	DependExtract: "extract",
	DependFetch:   "fetch",
	DependLib:     "lib",
	DependRun:     "run",
	DependPatch:   "patch",
	DependPackage: "package",
}

func (k DependKind) String() string {
	if k < 0 || int(k) >= len(dependKindNames) {
		return "depend(?)"
	}
	return dependKindNames[k]
}

// AllDependKinds lists every dependency kind, for iterating dependency
// tables.
func AllDependKinds() []DependKind {
	out := make([]DependKind, numDependKinds)
	for i := range out {
		out[i] = DependKind(i)
	}
	return out
}

// stageDepends projects a stage onto the dependency kinds it requires
// satisfied before it may run: Fetch needs Fetch; Build needs
// Extract+Patch+Lib+Build+Package; Install/Package/PkgInstall/RepoInstall
// need Lib+Run+Package.
var stageDepends = map[Stage][]DependKind{
	StageFetch:       {DependFetch},
	StageBuild:       {DependExtract, DependPatch, DependLib, DependBuild, DependPackage},
	StageInstall:     {DependLib, DependRun, DependPackage},
	StagePackage:     {DependLib, DependRun, DependPackage},
	StagePkgInstall:  {DependLib, DependRun, DependPackage},
	StageRepoInstall: {DependLib, DependRun, DependPackage},
}

// StageDepends returns the dependency kinds stage s requires resolved.
// Config, Depend, Checksum, RepoConfig and RepoFetch require none.
func StageDepends(s Stage) []DependKind {
	return stageDepends[s]
}
