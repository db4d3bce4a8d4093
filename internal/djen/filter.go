package djen

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"djenwatch/internal/comm"
	"djenwatch/internal/services"
)

const dateLayout = "2006-01-02"

// Filter selects communications. Only populated fields reach the query string.
type Filter struct {
	OABNumber           string
	OABState            string
	AdvocateName        string
	PartyName           string
	CaseNumber          string
	TribunalCode        string
	DateFrom            string
	DateTo              string
	CommunicationNumber string
	OrgID               string
	Medium              comm.Medium
	Page                int
	PageSize            int
}

// Validate normalizes the case number and rejects malformed dates.
func (f *Filter) Validate() error {
	if strings.TrimSpace(f.CaseNumber) != "" {
		normalized, err := comm.NormalizeCaseNumber(f.CaseNumber)
		if err != nil {
			return services.Wrap(services.ErrInvalidFilter, "djen", "validate filter", "", err)
		}
		f.CaseNumber = normalized
	}
	var from, to time.Time
	var err error
	if f.DateFrom != "" {
		if from, err = time.Parse(dateLayout, f.DateFrom); err != nil {
			return services.Wrap(services.ErrInvalidFilter, "djen", "validate filter", fmt.Sprintf("date_from %q is not YYYY-MM-DD", f.DateFrom), nil)
		}
	}
	if f.DateTo != "" {
		if to, err = time.Parse(dateLayout, f.DateTo); err != nil {
			return services.Wrap(services.ErrInvalidFilter, "djen", "validate filter", fmt.Sprintf("date_to %q is not YYYY-MM-DD", f.DateTo), nil)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return services.Wrap(services.ErrInvalidFilter, "djen", "validate filter", "date_to is before date_from", nil)
	}
	if f.Medium != "" && f.Medium != comm.MediumDiary && f.Medium != comm.MediumEdict {
		return services.Wrap(services.ErrInvalidFilter, "djen", "validate filter", fmt.Sprintf("medium %q must be D or E", f.Medium), nil)
	}
	if f.OABNumber != "" && strings.TrimSpace(f.OABState) == "" {
		return services.Wrap(services.ErrInvalidFilter, "djen", "validate filter", "oab number requires oab state", nil)
	}
	return nil
}

// Query renders the directory query string.
func (f Filter) Query() url.Values {
	params := url.Values{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			params.Set(key, value)
		}
	}
	set("numeroOab", f.OABNumber)
	set("ufOab", strings.ToUpper(f.OABState))
	set("nomeAdvogado", f.AdvocateName)
	set("nomeParte", f.PartyName)
	set("numeroProcesso", f.CaseNumber)
	set("dataDisponibilizacaoInicio", f.DateFrom)
	set("dataDisponibilizacaoFim", f.DateTo)
	set("siglaTribunal", strings.ToUpper(f.TribunalCode))
	set("numeroComunicacao", f.CommunicationNumber)
	set("orgaoId", f.OrgID)
	set("meio", string(f.Medium))
	if f.Page > 0 {
		params.Set("pagina", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		params.Set("itensPorPagina", strconv.Itoa(f.PageSize))
	}
	return params
}

// LookbackFrom returns the YYYY-MM-DD date days before now.
func LookbackFrom(now time.Time, days int) string {
	if days <= 0 {
		return ""
	}
	return now.AddDate(0, 0, -days).Format(dateLayout)
}
