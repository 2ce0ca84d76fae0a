//go:build !rtdebug

package trace

const debugBuild = false
