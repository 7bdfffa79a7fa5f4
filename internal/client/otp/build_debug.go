//go:build debug

package otp

const debugBuild = true
