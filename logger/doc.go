// Package logger provides structured logging for the test harness
// using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers with structured fields.
package logger
