// Package listing parses HTTP directory listing pages into raw rows.
//
// It understands the nginx autoindex table layout used across the Myrient
// archive and a plain <pre> anchor-list fallback seen on a handful of pages.
// The output rows are untyped display strings; metadata derivation happens
// in the extract package.
package listing
