// Package common provides the data structures shared by the cache server and
// its clients.
//
// Key Components:
//
//   - Message: the single structure used for every request and response. Which
//     fields are set depends on the MessageType. Durations travel as
//     milliseconds.
//
//   - ServerConfig / ClientConfig: settings of the cache server and of the
//     remote cache backend, each with a String() summary built by ConfigWriter.
//
//   - Logger: a dragonboat logger.ILogger implementation that prints
//     "LEVEL | package | message". InitLoggers installs it for every phantom
//     package.
package common
