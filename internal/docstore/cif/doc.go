// Package cif reads and writes the small subset of mmCIF used by message
// files: a single data_ block holding categories in either key/value pair
// form or loop_ form.
//
// Every value written is pure ASCII. Escape makes text reversible:
//
//	\        -> \\
//	CR       -> \r
//	U+0080.. -> \uXXXX or \UXXXXXXXX (and control characters other than LF/TAB)
//	;        -> \; when it starts a line
//
// Empty strings are written as "?" and "?"/"." read back as empty strings.
package cif
