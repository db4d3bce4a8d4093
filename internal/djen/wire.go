package djen

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"djenwatch/internal/comm"
	"djenwatch/internal/textutil"
)

// apiResponse is the directory's page envelope.
type apiResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Count   int       `json:"count"`
	Items   []apiItem `json:"items"`
}

type apiItem struct {
	ID                  flexString     `json:"id"`
	Hash                string         `json:"hash"`
	AvailabilityDate    string         `json:"data_disponibilizacao"`
	TribunalCode        string         `json:"siglaTribunal"`
	CommunicationType   string         `json:"tipoComunicacao"`
	OrgName             string         `json:"nomeOrgao"`
	Text                string         `json:"texto"`
	CaseNumber          string         `json:"numero_processo"`
	CaseNumberMasked    string         `json:"numeroprocessocommascara"`
	Medium              string         `json:"meio"`
	Link                string         `json:"link"`
	DocumentType        string         `json:"tipoDocumento"`
	ClassName           string         `json:"nomeClasse"`
	ClassCode           flexString     `json:"codigoClasse"`
	CommunicationNumber flexString     `json:"numeroComunicacao"`
	Recipients          []apiRecipient `json:"destinatarios"`
	Advocates           []apiAdvocate  `json:"destinatarioadvogados"`
}

type apiRecipient struct {
	Name string `json:"nome"`
	Pole string `json:"polo"`
}

type apiAdvocate struct {
	Advocate struct {
		Name      string `json:"nome"`
		OABNumber string `json:"numero_oab"`
		OABState  string `json:"uf_oab"`
	} `json:"advogado"`
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// toCommunication maps a wire item to the domain record. Text is cleaned of
// markup; items without a hash get a derived one.
func (it apiItem) toCommunication() comm.Communication {
	c := comm.Communication{
		Hash:              strings.TrimSpace(it.Hash),
		CaseNumber:        comm.DigitsOnly(it.CaseNumber),
		CaseNumberMasked:  strings.TrimSpace(it.CaseNumberMasked),
		TribunalCode:      strings.ToUpper(strings.TrimSpace(it.TribunalCode)),
		OrgName:           textutil.CollapseSpace(it.OrgName),
		DocumentType:      textutil.CollapseSpace(it.DocumentType),
		CommunicationType: textutil.CollapseSpace(it.CommunicationType),
		ClassName:         textutil.CollapseSpace(it.ClassName),
		ClassCode:         strings.TrimSpace(string(it.ClassCode)),
		Text:              textutil.CleanText(it.Text),
		Medium:            comm.Medium(strings.ToUpper(strings.TrimSpace(it.Medium))),
		AvailabilityDate:  parseAvailabilityDate(it.AvailabilityDate),
		Link:              strings.TrimSpace(it.Link),
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(string(it.CommunicationNumber)), 10, 64); err == nil {
		c.Number = n
	}
	if c.CaseNumberMasked == "" {
		c.CaseNumberMasked = comm.FormatCaseNumber(c.CaseNumber)
	}
	for _, r := range it.Recipients {
		if name := textutil.CollapseSpace(r.Name); name != "" {
			c.Recipients = append(c.Recipients, name)
		}
	}
	for _, a := range it.Advocates {
		name := textutil.CollapseSpace(a.Advocate.Name)
		if name == "" {
			continue
		}
		if a.Advocate.OABNumber != "" {
			name += " (OAB " + strings.TrimSpace(a.Advocate.OABNumber) + "/" + strings.ToUpper(strings.TrimSpace(a.Advocate.OABState)) + ")"
		}
		c.Advocates = append(c.Advocates, name)
	}
	if c.Hash == "" {
		c.Hash = comm.DeriveHash(c)
	}
	return c
}

func parseAvailabilityDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02T15:04:05", "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

type apiTribunalGroup struct {
	State        string `json:"uf"`
	Institutions []struct {
		Code string `json:"sigla"`
		Name string `json:"nome"`
	} `json:"instituicoes"`
}
