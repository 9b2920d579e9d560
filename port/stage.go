// Package port implements the per-port mutable state machine: attributes
// parsed from the recipe, install status, which stages have completed, and
// one Stack substate per pipeline (common, build, package, repo) the port
// participates in.
package port

import "fmt"

// Stage identifies one step in a port's lifecycle.
type Stage int

const (
	StageConfig Stage = iota
	StageDepend
	StageChecksum
	StageFetch
	StageBuild
	StageInstall
	StagePackage
	StagePkgInstall
	StageRepoConfig
	StageRepoFetch
	StageRepoInstall
	numStages
)

var stageNames = [numStages]string{
	StageConfig:      "config",
	StageDepend:      "depend",
	StageChecksum:    "checksum",
	StageFetch:       "fetch",
	StageBuild:       "build",
	StageInstall:     "install",
	StagePackage:     "package",
	StagePkgInstall:  "pkginstall",
	StageRepoConfig:  "repo-config",
	StageRepoFetch:   "repo-fetch",
	StageRepoInstall: "repo-install",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// StackName names one of the four pipelines a port can progress through.
type StackName int

const (
	StackCommon StackName = iota
	StackBuild
	StackPackage
	StackRepo
	numStacks
)

var stackNames = [numStacks]string{
	StackCommon:  "common",
	StackBuild:   "build",
	StackPackage: "package",
	StackRepo:    "repo",
}

func (s StackName) String() string {
	if s < 0 || int(s) >= len(stackNames) {
		return fmt.Sprintf("Stack(%d)", int(s))
	}
	return stackNames[s]
}

// prevStage maps a stage to the stage that must be in stages_completed
// before it may run. Config has no predecessor (absent from the map).
var prevStage = map[Stage]Stage{
	StageDepend:      StageConfig,
	StageChecksum:    StageDepend,
	StageFetch:       StageChecksum,
	StageBuild:       StageFetch,
	StageInstall:     StageBuild,
	StagePackage:     StageInstall,
	StagePkgInstall:  StageDepend,
	StageRepoConfig:  StageDepend,
	StageRepoFetch:   StageRepoConfig,
	StageRepoInstall: StageRepoFetch,
}

// Prev returns the stage that must be completed before s, and whether one
// exists (false for Config, the root of every stack).
func (s Stage) Prev() (Stage, bool) {
	p, ok := prevStage[s]
	return p, ok
}

var stageStack = map[Stage]StackName{
	StageConfig:      StackCommon,
	StageDepend:      StackCommon,
	StageChecksum:    StackBuild,
	StageFetch:       StackBuild,
	StageBuild:       StackBuild,
	StageInstall:     StackBuild,
	StagePackage:     StackBuild,
	StagePkgInstall:  StackPackage,
	StageRepoConfig:  StackRepo,
	StageRepoFetch:   StackRepo,
	StageRepoInstall: StackRepo,
}

// Stack returns the pipeline s belongs to.
func (s Stage) Stack() StackName { return stageStack[s] }

// AllStages lists every stage, in pipeline order, for iteration (attribute
// schema dumps, status reporting).
func AllStages() []Stage {
	out := make([]Stage, numStages)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}
