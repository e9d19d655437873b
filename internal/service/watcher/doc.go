// Package watcher polls the deployer server and logs deployment changes.
package watcher
