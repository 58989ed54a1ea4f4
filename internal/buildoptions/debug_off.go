//go:build !naivevm_debug

package buildoptions

// IsDebugMode is true when built with the naivevm_debug tag. Recovered panics then print their Go stack.
const IsDebugMode = false
