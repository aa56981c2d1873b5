// Package units maps the human-readable unit strings found in config
// documents to the engine's internal unit codes and back.
//
// A Table is immutable once built. Callers pass it explicitly to the write
// engine and to stores; Default returns the table compiled into the binary.
package units
