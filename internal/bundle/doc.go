// Package bundle exposes the read-only asset tree packaged with the
// application. The cache layer only ever needs three capabilities from it:
// list the top level, list a directory and open a file for reading. Listing
// never fails loudly; a missing or unreadable directory is reported as empty
// so that callers can treat it as "asset not present".
package bundle
