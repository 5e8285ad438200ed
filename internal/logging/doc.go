// Package logging provides file-based JSON logging with rotation for Kestrel.
// Engine commands write to ~/.kestrel/logs/engine.log at info level, and the
// CLI also copies each entry to stderr; the --debug flag lowers the level to
// debug. The MCP server writes to the file only, never to stderr.
package logging
