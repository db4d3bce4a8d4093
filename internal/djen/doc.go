// Package djen is the client for the national judicial communication
// directory (Diário de Justiça Eletrônico Nacional).
//
// FetchAll walks every result page of a filter and FetchByCaseNumbers runs one
// FetchAll per case number. Both enforce the directory's mandatory pacing
// (500ms between pages, 600ms between case numbers) through internal/pacing
// and tolerate partial failure: a failing later page or case number is logged,
// counted, and skipped while the rest of the batch proceeds. HTTP 429 is never
// retried automatically; it surfaces as *RateLimitedError and stops the batch
// with whatever was already collected.
//
// The directory silently caps textual and OAB searches at 10,000 results.
// The client warns when a count exceeds the cap but does not work around it.
package djen
