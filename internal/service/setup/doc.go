// Package setup writes the settings file shared by the deployer binaries.
//
// The settings are validated before anything is written and, on request, the
// server is probed first so a typo in an address fails early.
package setup
