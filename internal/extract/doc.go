// Package extract derives index metadata from raw listing rows.
//
// All functions here are pure: canonical path construction, collection and
// platform derivation (longest-match against an embedded platform table),
// region and file-type extraction from filenames, listing date
// normalization, and the order-independent directory content fingerprint
// used for incremental-crawl change detection.
package extract
