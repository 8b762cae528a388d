// Package common holds process-wide settings shared by the commands: logger setup and build metadata.
package common

// PackageName prefixes exported metrics.
const PackageName = "guardian_recovery"

// Version is overridden at build time with -ldflags "-X github.com/ruteri/guardian-recovery/common.Version=..."
var Version = "dev"
