// Package container drives the application container through its management
// channel.
//
// Executor turns a deployment plan into one composite operation, waits for it
// under a time bound and reports a raw result per action. Directory reads the
// units currently deployed.
package container
