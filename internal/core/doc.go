// Package core provides the business logic for mirroring the IPAMPA index family.
//
// The package holds the ingestion and export transforms, independent of any
// UI, transport or database driver. Web handlers, the CLI and tests drive it
// through [Service] with a [Store] and a [Fetcher].
//
// # Refresh
//
// A refresh replaces the stored dataset with the current source content:
//
//  1. [Fetcher] downloads the zipped CSV
//  2. [ReadArchive] extracts the first .csv or .txt entry
//  3. [ParseTable] splits the ;-delimited text into header-keyed records
//  4. [InferYearColumns] finds the four-digit year columns
//  5. [Normalizer] applies the admission filter and parses the values
//  6. [Replace] deletes the old dataset and bulk-inserts the new one
//
// Rows and cells that cannot be used are dropped with a [Diagnostic]; only
// their counts reach the caller. Fatal failures are reported through the
// sentinels in errors.go.
//
// # Export
//
// [Service.ExportCSV] filters the dataset, pivots it to one column per year
// and renders a BOM-prefixed, ;-delimited file. [Service.ExportXLSX] renders
// the same pivot as a workbook.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference (SRC, ARC, PRS, STO,
// EXP, REQ, RATE, ERR000).
package core
