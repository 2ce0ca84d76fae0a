//go:build rtdebug

package trace

const debugBuild = true
