// Package timeline turns stored communications into classified events.
//
// Classify maps a communication's declared type and free text onto one of
// the fixed EventType values using an ordered rule list: the first rule that
// matches wins, so precedence is the order of the rules slice. The function
// is pure, which is what makes hash-based cache staleness meaningful.
//
// BuildEvents produces the most-recent-first event history consumed by stage
// inference and the analysis cache.
package timeline
