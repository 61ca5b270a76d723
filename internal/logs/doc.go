// Package logs reads back what the logging sinks wrote: JSON-lines entries
// filtered by level and text, and plain-text tails with follow support.
//
// Daily files compressed by retention (".zst") are read transparently by
// ReadJSON. Tail works on live, uncompressed files only since offsets are
// byte positions in the file being appended to.
package logs
