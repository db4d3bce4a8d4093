// Package textutil normalizes publication text for storage, classification,
// and comparison.
//
// Publications arrive as HTML fragments (occasionally base64 encoded) with
// Portuguese diacritics and irregular whitespace. CleanText produces the
// readable form stored with each communication; Fold produces the lower-case,
// accent-free form every keyword rule matches against, so "intimação" and
// "intimacao" are the same word. Fingerprints detect republications of the
// same act under different hashes.
package textutil
