// Package models maps management resource names to typed accessors.
//
// A Table is a closed set of Resources built at startup. Incoming Get and
// Set envelopes are resolved against it by model type; unknown names and
// writes to read-only resources are answered with an error envelope rather
// than dropped, so callers never wait out a timeout for a typo.
package models
