// Package cache materializes bundled assets as standalone files inside a
// host-managed cache directory and keeps track of when each one was last
// handed out. The bookkeeping lives in a flat control file (.cache-data.file)
// next to the extracted copies, one "name=epochMillis" line per asset.
//
// Extraction is copy-on-first-access: a cache file is written once (temp
// file + rename) and never modified afterwards. Every access refreshes the
// asset's timestamp, and the startup sweep (Manager.Optimize) removes entries
// that have not been used within RetentionWindow together with their files.
// When no control file exists yet every prefixed cache file is discarded,
// since nothing is known about their freshness.
package cache
