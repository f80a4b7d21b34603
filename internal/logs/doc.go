// Package logs reads the service's JSON log file back into log events so the
// CLI can show history while no service is running.
//
// Offsets are byte positions in the file. Tail returns the offset after the
// last complete line it read, which a follow-up Tail call can resume from.
package logs
