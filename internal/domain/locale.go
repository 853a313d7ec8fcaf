package domain

import (
	"fmt"

	"golang.org/x/text/language"
)

// Locale carries the per-language texts the pipeline needs.
type Locale struct {
	Tag           language.Tag
	Untitled      string
	NoDescription string
	// summary texts for the synthetic batch audit entry; %d is the success count
	SummaryTitle       string
	SummaryDescription string
}

var (
	// Primary is the locale whose short text forms the natural key.
	Primary = Locale{
		Tag:                language.Turkish,
		Untitled:           "Başlıksız",
		NoDescription:      "Açıklama yok",
		SummaryTitle:       "%d Yeni Gelişme Eklendi",
		SummaryDescription: "Toplam %d yeni gelişme başarıyla veritabanına kaydedildi.",
	}
	Secondary = Locale{
		Tag:                language.English,
		Untitled:           "Untitled",
		NoDescription:      "No description",
		SummaryTitle:       "%d New Developments Added",
		SummaryDescription: "Total %d new developments successfully saved to database.",
	}
)

// Code returns the BCP 47 code of the locale, e.g. "tr".
func (l Locale) Code() string {
	return l.Tag.String()
}

func (l Locale) summaryTitle(n int) string {
	return fmt.Sprintf(l.SummaryTitle, n)
}

func (l Locale) summaryDescription(n int) string {
	return fmt.Sprintf(l.SummaryDescription, n)
}
