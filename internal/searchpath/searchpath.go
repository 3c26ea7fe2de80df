// Package searchpath computes where flyby looks for its data files.
//
// Locations follow the XDG base directory layout: one writable primary
// directory ($XDG_DATA_HOME) and an ordered list of read-only shared
// directories ($XDG_DATA_DIRS). Nothing here touches the filesystem.
package searchpath

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrNoDataHome is returned when neither XDG_DATA_HOME nor HOME names an
// absolute directory.
var ErrNoDataHome = errors.New("no absolute data home: set XDG_DATA_HOME or HOME")

const (
	// AppDir is the per-application subdirectory inside every data directory.
	AppDir = "flyby"
	// DatabaseFile is the transponder database file name.
	DatabaseFile = "flyby.db"
	// TLEDir holds TLE files inside AppDir.
	TLEDir = "tles"

	defaultDataHome = ".local/share"
	defaultDataDirs = "/usr/local/share/:/usr/share/"
)

// Env carries the environment values the resolver depends on.
type Env struct {
	DataHome string // XDG_DATA_HOME
	DataDirs string // XDG_DATA_DIRS
	Home     string // HOME
}

// EnvFrom builds an Env using lookup, typically os.Getenv.
func EnvFrom(lookup func(string) string) Env {
	return Env{
		DataHome: lookup("XDG_DATA_HOME"),
		DataDirs: lookup("XDG_DATA_DIRS"),
		Home:     lookup("HOME"),
	}
}

// Check reports ErrNoDataHome when Resolve would have to fall back to a
// directory relative to the working directory.
func (e Env) Check() error {
	if filepath.IsAbs(e.DataHome) || filepath.IsAbs(e.Home) {
		return nil
	}
	return ErrNoDataHome
}

// Paths is the resolved set of data directories. Shared is ordered from
// highest to lowest priority.
type Paths struct {
	Primary string
	Shared  []string
}

// Resolve computes the data directories for env. Unset, empty or relative
// values fall back to the XDG defaults. Callers should Check env first: with
// no absolute HOME either, the primary directory is relative.
func Resolve(env Env) Paths {
	home := env.DataHome
	if !filepath.IsAbs(home) {
		home = filepath.Join(env.Home, defaultDataHome)
	}

	raw := env.DataDirs
	if strings.TrimSpace(raw) == "" {
		raw = defaultDataDirs
	}
	var shared []string
	for _, dir := range strings.Split(raw, ":") {
		dir = strings.TrimSpace(dir)
		if !filepath.IsAbs(dir) {
			continue
		}
		shared = append(shared, filepath.Clean(dir))
	}
	if len(shared) == 0 {
		for _, dir := range strings.Split(defaultDataDirs, ":") {
			if dir != "" {
				shared = append(shared, filepath.Clean(dir))
			}
		}
	}

	return Paths{Primary: filepath.Clean(home), Shared: shared}
}

// PrimaryDB is the writable transponder database file.
func (p Paths) PrimaryDB() string {
	return filepath.Join(p.Primary, AppDir, DatabaseFile)
}

// SharedDBs lists the read-only transponder database files, highest priority
// first.
func (p Paths) SharedDBs() []string {
	out := make([]string, 0, len(p.Shared))
	for _, dir := range p.Shared {
		out = append(out, filepath.Join(dir, AppDir, DatabaseFile))
	}
	return out
}

// TLEDirs lists the directories holding TLE files, primary first.
func (p Paths) TLEDirs() []string {
	out := make([]string, 0, len(p.Shared)+1)
	out = append(out, filepath.Join(p.Primary, AppDir, TLEDir))
	for _, dir := range p.Shared {
		out = append(out, filepath.Join(dir, AppDir, TLEDir))
	}
	return out
}
