// Package deployments keeps the last observed container deployments in a
// YAML file, so operators can see what ran even when the container is down.
package deployments
