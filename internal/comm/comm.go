// Package comm defines the communication record shared by the fetcher, the
// local store, and the timeline builder, plus the CNJ case-number rules used
// to match publications to registered cases.
package comm

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Medium identifies the publication channel.
type Medium string

const (
	MediumDiary Medium = "D"
	MediumEdict Medium = "E"
)

// Label returns a human readable channel name.
func (m Medium) Label() string {
	switch m {
	case MediumDiary:
		return "Diário"
	case MediumEdict:
		return "Edital"
	default:
		return string(m)
	}
}

// Communication is a single publication retrieved from the directory.
// Hash is the globally unique deduplication key; CaseNumber is not unique.
type Communication struct {
	Hash              string    `json:"hash"`
	Number            int64     `json:"number"`
	CaseNumber        string    `json:"caseNumber"`
	CaseNumberMasked  string    `json:"caseNumberMasked,omitempty"`
	TribunalCode      string    `json:"tribunalCode"`
	OrgName           string    `json:"orgName"`
	DocumentType      string    `json:"documentType"`
	CommunicationType string    `json:"communicationType"`
	ClassName         string    `json:"className,omitempty"`
	ClassCode         string    `json:"classCode,omitempty"`
	Text              string    `json:"text"`
	Medium            Medium    `json:"medium"`
	AvailabilityDate  time.Time `json:"availabilityDate"`
	Link              string    `json:"link,omitempty"`
	Recipients        []string  `json:"recipients,omitempty"`
	Advocates         []string  `json:"advocates,omitempty"`
	LinkedClientID    *int64    `json:"linkedClientId,omitempty"`
	LinkedCaseID      *int64    `json:"linkedCaseId,omitempty"`
	Read              bool      `json:"read"`
	CreatedAt         time.Time `json:"createdAt,omitzero"`
}

// DeclaredType returns the upstream document type, falling back to the
// communication type when the former is blank.
func (c Communication) DeclaredType() string {
	if t := strings.TrimSpace(c.DocumentType); t != "" {
		return t
	}
	return strings.TrimSpace(c.CommunicationType)
}

// DeriveHash builds a stable content identifier for items the directory
// returned without a hash. Without a communication number the text joins
// the key, so distinct same-day publications do not collapse into one.
func DeriveHash(c Communication) string {
	parts := []string{
		strings.ToUpper(strings.TrimSpace(c.TribunalCode)),
		strconv.FormatInt(c.Number, 10),
		DigitsOnly(c.CaseNumber),
		c.AvailabilityDate.UTC().Format("2006-01-02"),
	}
	if c.Number == 0 {
		text := sha256.Sum256([]byte(strings.Join(strings.Fields(c.Text), " ")))
		parts = append(parts, hex.EncodeToString(text[:8]))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// ErrInvalidCaseNumber reports a case number that is not a 20 digit CNJ number.
var ErrInvalidCaseNumber = errors.New("case number must have 20 digits (CNJ format)")

// CaseNumberDigits is the length of a unified CNJ case number.
const CaseNumberDigits = 20

// DigitsOnly drops every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeCaseNumber strips punctuation and validates the CNJ length.
func NormalizeCaseNumber(s string) (string, error) {
	digits := DigitsOnly(s)
	if len(digits) != CaseNumberDigits {
		return "", fmt.Errorf("%w: %q", ErrInvalidCaseNumber, s)
	}
	return digits, nil
}

// FormatCaseNumber renders NNNNNNN-DD.AAAA.J.TR.OOOO. Inputs that are not
// 20 digits are returned unchanged.
func FormatCaseNumber(s string) string {
	d := DigitsOnly(s)
	if len(d) != CaseNumberDigits {
		return s
	}
	return d[0:7] + "-" + d[7:9] + "." + d[9:13] + "." + d[13:14] + "." + d[14:16] + "." + d[16:20]
}
