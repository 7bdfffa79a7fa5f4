//go:build !debug

package otp

// debugBuild is false in every artifact built without the debug tag, which
// makes the sandbox branch of Gate.Mode unreachable there.
const debugBuild = false
