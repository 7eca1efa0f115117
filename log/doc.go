// Package log provides the leveled logging interface shared by every
// component of the service.
//
// Components take a Logger value (or fall back to the package default set
// at startup) rather than importing a logging library directly. Two
// implementations are provided: DefaultLogger on the standard library for
// tests and tools, and GologLogger wrapping github.com/kataras/golog for
// the server process.
//
// The five levels, in increasing severity: Debug, Info, Warn, Error, None
// (None disables output entirely). Messages below the configured level are
// filtered out.
package log
