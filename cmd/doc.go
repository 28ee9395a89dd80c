// Package cmd implements the command-line interface of phantom.
//
// The package is organized into several subpackages:
//
//   - serve: the HTTP API backed by the record store and the snapshot cache
//   - cache: a shared cache server that serve instances can use as their snapshot cache
//   - schema: one-off schema reconciliation
//   - util: shared flag and configuration helpers (internal use)
//
// Every flag can also be set as an environment variable PHANTOM_<FLAG>, and
// .env / .env.local in the working directory are loaded on start.
// See phantom -help for a list of all commands.
package cmd
