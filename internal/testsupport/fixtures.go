package testsupport

import (
	"time"

	"djenwatch/internal/comm"
)

// Communication builds a communication fixture published on date (YYYY-MM-DD).
func Communication(hash, caseNumber, date, docType, text string) comm.Communication {
	published, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic("testsupport: bad fixture date " + date)
	}
	return comm.Communication{
		Hash:              hash,
		CaseNumber:        caseNumber,
		CaseNumberMasked:  comm.FormatCaseNumber(caseNumber),
		TribunalCode:      "TJSP",
		OrgName:           "1ª Vara Cível do Foro Central",
		DocumentType:      docType,
		CommunicationType: "Intimação",
		Text:              text,
		Medium:            comm.MediumDiary,
		AvailabilityDate:  published,
	}
}
