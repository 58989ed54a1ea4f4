// Package version reports the version of naivevm linked into the running binary.
package version

import (
	"runtime/debug"
)

// Default is the default version value used when the Go binary is not built by go build, or naivevm is not a
// dependency of the main module, for example during development.
const Default = "dev"

const naivevmModulePath = "github.com/wasmkit/naivevm"

// GetNaivevmVersion returns the version of naivevm in the main module or its dependencies.
func GetNaivevmVersion() (ret string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	// The naivevm CLI is built with naivevm as the main module.
	if info.Main.Path == naivevmModulePath {
		ret = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == naivevmModulePath {
			ret = dep.Version
			if dep.Replace != nil {
				ret = dep.Replace.Version
			}
			break
		}
	}
	if ret == "" || ret == "(devel)" {
		return Default
	}
	return
}
