package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"gopkg.in/ini.v1"
)

// DatabaseConfig holds the build database's own settings, split out from
// Config's flat fields since it's also the section Service reads/writes
// independently of the rest of a profile.
type DatabaseConfig struct {
	Path       string
	AutoVacuum bool
}

// MigrationConfig controls legacy CRC-index migration (migration package).
type MigrationConfig struct {
	AutoMigrate  bool
	BackupLegacy bool
}

// Config holds all portforge configuration.
type Config struct {
	// Paths
	ConfigPath     string
	DPortsPath     string
	RepositoryPath string
	BuildBase      string
	DistFilesPath  string
	OptionsPath    string
	PackagesPath   string
	LogsPath       string
	SystemPath     string
	CCachePath     string

	// Build settings
	MaxWorkers   int
	MaxJobs      int
	SlowStart    int
	NumaMask     string
	UseSSCCBase  bool
	UseUsrSrc    bool
	UseCCache    bool
	UseTmpfs     bool
	UseVKernel   bool
	UsePKGDepend bool

	// Sizes
	TmpfsWorkSize      string
	TmpfsLocalbaseSize string
	TmpfsUsrLocalSize  string

	// Behavior
	Debug      bool
	Force      bool
	YesAll     bool
	DevMode    bool
	CheckPlist bool
	DisableUI  bool

	// Execution
	MakeBin     string // make(1) binary invoked for every Stage protocol recipe step
	PackagerBin string // host packager binary (pkg(8)) for the package/repo stacks
	Backend     string // environment backend name ("bsd" or "mock")

	Database  DatabaseConfig
	Migration MigrationConfig

	// Profile
	Profile string
}

var globalConfig *Config

// SetConfig installs cfg as the process-wide configuration, read back by
// GetConfig. Used by cmd's root command to hand the loaded config down to
// subcommands without threading it through every call.
func SetConfig(cfg *Config) { globalConfig = cfg }

// GetConfig returns the config previously installed by SetConfig, or nil.
func GetConfig() *Config { return globalConfig }

// defaultWorkers caps NumCPU to a sane worker count when nothing in the
// config file overrides it.
func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 16 {
		n = 16
	}
	if n < 1 {
		n = 1
	}
	return n
}

func defaultConfigDir() string {
	if _, err := os.Stat("/etc/dsynth"); err == nil {
		return "/etc/dsynth"
	}
	if _, err := os.Stat("/usr/local/etc/dsynth"); err == nil {
		return "/usr/local/etc/dsynth"
	}
	return "/etc/dsynth"
}

// LoadConfig loads configuration from dsynth.ini under configDir (or the
// platform default if configDir is empty), applying profile as an
// explicit override of the file's own profile_selected key.
func LoadConfig(configDir string, profile string) (*Config, error) {
	cfg := &Config{
		MaxWorkers:         defaultWorkers(),
		MaxJobs:            1,
		SlowStart:          0,
		Profile:            profile,
		SystemPath:         "/",
		UseUsrSrc:          false,
		UseCCache:          false,
		UseTmpfs:           true,
		TmpfsWorkSize:      "64g",
		TmpfsLocalbaseSize: "16g",
		TmpfsUsrLocalSize:  "16g",
	}

	if configDir == "" {
		configDir = defaultConfigDir()
	}
	cfg.ConfigPath = configDir

	configFile := filepath.Join(configDir, "dsynth.ini")
	if _, err := os.Stat(configFile); err == nil {
		f, err := ini.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.applyIni(f)
	}

	cfg.applyDerivedDefaults()

	return cfg, nil
}

// applyIni folds a loaded ini.File into cfg: the case-insensitively
// located "Global Configuration" section first (its profile_selected key
// picks the active profile when profile wasn't already given explicitly),
// then that profile's own section layered on top so profile values win
// over global ones.
func (cfg *Config) applyIni(f *ini.File) {
	global := findSectionCI(f, "Global Configuration", "Global")
	profile := cfg.Profile

	if global != nil {
		if profile == "" {
			if v := global.Key("profile_selected").String(); v != "" {
				profile = v
			}
		}
		applySection(cfg, global)
	}

	if profile != "" {
		if sec, err := f.GetSection(profile); err == nil {
			applySection(cfg, sec)
		}
	}

	cfg.Profile = profile
}

func findSectionCI(f *ini.File, names ...string) *ini.Section {
	for _, want := range names {
		for _, sec := range f.Sections() {
			if strings.EqualFold(sec.Name(), want) {
				return sec
			}
		}
	}
	return nil
}

func applySection(cfg *Config, sec *ini.Section) {
	for _, key := range sec.Keys() {
		cfg.setConfigValue(key.Name(), key.String())
	}
}

func (cfg *Config) applyDerivedDefaults() {
	if cfg.BuildBase == "" {
		cfg.BuildBase = "/build/synth"
	}
	if cfg.DPortsPath == "" {
		cfg.DPortsPath = "/usr/dports"
		if _, err := os.Stat(cfg.DPortsPath); err != nil {
			if _, err := os.Stat("/usr/ports"); err == nil {
				cfg.DPortsPath = "/usr/ports"
			}
		}
	}
	if cfg.RepositoryPath == "" {
		cfg.RepositoryPath = cfg.BuildBase + "/packages"
	}
	if cfg.DistFilesPath == "" {
		cfg.DistFilesPath = cfg.BuildBase + "/distfiles"
	}
	if cfg.OptionsPath == "" {
		cfg.OptionsPath = cfg.BuildBase + "/options"
	}
	if cfg.PackagesPath == "" {
		cfg.PackagesPath = cfg.RepositoryPath
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = cfg.BuildBase + "/logs"
	}
	if cfg.CCachePath == "" {
		cfg.CCachePath = cfg.BuildBase + "/ccache"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = cfg.BuildBase + "/builds.db"
	}
	if cfg.MakeBin == "" {
		cfg.MakeBin = "make"
	}
	if cfg.PackagerBin == "" {
		cfg.PackagerBin = "pkg"
	}
	if cfg.Backend == "" {
		cfg.Backend = "bsd"
	}
}

func (cfg *Config) setConfigValue(key, value string) {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, " ", "")

	switch key {
	case "numberofbuilders", "builders", "workers":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			cfg.MaxWorkers = n
		}
	case "maxjobsperbuilder", "maxjobs", "jobs":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			cfg.MaxJobs = n
		}
	case "directorypackages", "packages":
		cfg.PackagesPath = value
	case "directoryrepository", "repository":
		cfg.RepositoryPath = value
	case "directorybuildbase", "buildbase":
		cfg.BuildBase = value
	case "directoryportsdir", "portsdir", "dportsdir":
		cfg.DPortsPath = value
	case "directorydistfiles", "distfiles":
		cfg.DistFilesPath = value
	case "directoryoptions", "options":
		cfg.OptionsPath = value
	case "directorylogs", "logs":
		cfg.LogsPath = value
	case "directorysystem", "systempath":
		cfg.SystemPath = value
	case "directoryccache", "ccachedir", "ccache":
		cfg.CCachePath = value
		cfg.UseCCache = true
	case "useccache":
		cfg.UseCCache = parseBool(value)
	case "useusrsrc":
		cfg.UseUsrSrc = parseBool(value)
	case "usetmpfs", "tmpfsworkdir", "tmpfslocalbase":
		cfg.UseTmpfs = parseBool(value)
	case "usevkernel":
		cfg.UseVKernel = parseBool(value)
	case "usepkgdepend":
		cfg.UsePKGDepend = parseBool(value)
	case "tmpfsworksize":
		cfg.TmpfsWorkSize = value
	case "tmpfslocalbasesize":
		cfg.TmpfsLocalbaseSize = value
	case "tmpfsusrlocalsize":
		cfg.TmpfsUsrLocalSize = value
	case "numamask":
		cfg.NumaMask = value
	case "displaywithncurses":
		cfg.DisableUI = !parseBool(value)
	case "databasepath":
		cfg.Database.Path = value
	case "databaseautovacuum":
		cfg.Database.AutoVacuum = parseBool(value)
	case "automigrate":
		cfg.Migration.AutoMigrate = parseBool(value)
	case "backuplegacy":
		cfg.Migration.BackupLegacy = parseBool(value)
	case "makebin", "make":
		cfg.MakeBin = value
	case "packagerbin", "pkgbin", "pkg":
		cfg.PackagerBin = value
	case "backend", "environment":
		cfg.Backend = value
	}
}

func parseBool(value string) bool {
	value = strings.ToLower(value)
	return value == "yes" || value == "true" || value == "1" || value == "on"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// SaveConfig writes cfg out as a "Global Configuration" ini section at
// path, creating parent directories as needed, and records path as cfg's
// own ConfigPath.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f := ini.Empty()
	sec, err := f.NewSection("Global Configuration")
	if err != nil {
		return fmt.Errorf("failed to create config section: %w", err)
	}

	set := func(key, value string) { sec.Key(key).SetValue(value) }
	set("Directory_buildbase", cfg.BuildBase)
	set("Directory_portsdir", cfg.DPortsPath)
	set("Directory_repository", cfg.RepositoryPath)
	set("Directory_packages", cfg.PackagesPath)
	set("Directory_distfiles", cfg.DistFilesPath)
	set("Directory_options", cfg.OptionsPath)
	set("Directory_logs", cfg.LogsPath)
	set("Directory_ccache", cfg.CCachePath)
	set("Directory_system", cfg.SystemPath)
	set("Number_of_builders", strconv.Itoa(cfg.MaxWorkers))
	set("Max_jobs_per_builder", strconv.Itoa(cfg.MaxJobs))
	set("Tmpfs_workdir", yesNo(cfg.UseTmpfs))
	set("Use_ccache", yesNo(cfg.UseCCache))
	set("Use_usrsrc", yesNo(cfg.UseUsrSrc))
	set("Database_path", cfg.Database.Path)
	set("Database_autovacuum", yesNo(cfg.Database.AutoVacuum))
	set("Auto_migrate", yesNo(cfg.Migration.AutoMigrate))
	set("Backup_legacy", yesNo(cfg.Migration.BackupLegacy))

	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	cfg.ConfigPath = path
	return nil
}

// Validate checks configuration validity.
func (cfg *Config) Validate() error {
	requiredDirs := map[string]string{
		"BuildBase":      cfg.BuildBase,
		"DPortsPath":     cfg.DPortsPath,
		"RepositoryPath": cfg.RepositoryPath,
		"DistFilesPath":  cfg.DistFilesPath,
	}

	for name, path := range requiredDirs {
		if path == "" {
			return fmt.Errorf("%s is not configured", name)
		}

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(path, 0755); err != nil {
					return fmt.Errorf("%s directory %s cannot be created: %w", name, path, err)
				}
			} else {
				return fmt.Errorf("%s directory %s: %w", name, path, err)
			}
		} else if !info.IsDir() {
			return fmt.Errorf("%s path %s is not a directory", name, path)
		}
	}

	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("MaxWorkers must be at least 1")
	}
	if cfg.MaxWorkers > 1024 {
		return fmt.Errorf("MaxWorkers is too large (max 1024)")
	}

	return nil
}

// GetSystemInfo returns system information.
func GetSystemInfo() (osname, osversion, arch string, ncpus int) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		osname = string(utsname.Sysname[:])
		osversion = string(utsname.Release[:])
		arch = string(utsname.Machine[:])
		osname = strings.TrimRight(osname, "\x00")
		osversion = strings.TrimRight(osversion, "\x00")
		arch = strings.TrimRight(arch, "\x00")
	}

	ncpus = runtime.NumCPU()

	return
}
