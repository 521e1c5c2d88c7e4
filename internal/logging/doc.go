// Package logging provides leveled logging for the archive search engine.
//
// The log level is controlled by the LOG_LEVEL environment variable
// (debug, info, warn, error) or by setting DEBUG=true, which forces
// debug output regardless of LOG_LEVEL.
package logging
