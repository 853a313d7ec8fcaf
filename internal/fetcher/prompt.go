package fetcher

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/palamut62/ai-gant-news/internal/domain"
)

const primaryPrompt = `Bugünün tarihi {{.Today}}.
{{.Start}} ile {{.End}} arasındaki önemli {{.Topic}} gelişmelerini araştır ve listele.

Her gelişme için şu alanları doldur:
1. event_date: Gelişmenin tarihi (YYYY-MM-DD formatında)
2. short_description: Kısa açıklama (en fazla 255 karakter)
3. long_description: Detaylı açıklama
4. source_url: Gelişmenin kaynak URL'i (varsa)

Yanıtı markdown kullanmadan doğrudan şu JSON biçiminde ver:
{"updates": [{"event_date": "YYYY-MM-DD", "short_description": "...", "long_description": "...", "source_url": "https://..."}]}

Kurallar:
- En az {{.MinItems}}, en fazla {{.MaxItems}} gelişme listele.
- Tüm tarihler {{.Start}} ile {{.End}} arasında olmalı; bu aralığın dışındaki tarihler KABUL EDİLMEYECEKTİR.
- Sadece doğrulanmış ve önemli gelişmeleri listele.
`

const secondaryPrompt = `Today's date is {{.Today}}.
Research and list important {{.Topic}} developments between {{.Start}} and {{.End}}.

Provide the following fields for each development:
1. event_date: Date of the development (YYYY-MM-DD)
2. short_description: Brief description (max 255 characters)
3. long_description: Detailed description
4. source_url: Source URL of the development (if available)

Reply directly in this JSON format, without markdown:
{"updates": [{"event_date": "YYYY-MM-DD", "short_description": "...", "long_description": "...", "source_url": "https://..."}]}

Rules:
- List at least {{.MinItems}} and at most {{.MaxItems}} developments.
- Every date must be between {{.Start}} and {{.End}}; dates outside this range will NOT be accepted.
- Only list verified and important developments.
`

var (
	primaryTemplate   = template.Must(template.New("primary").Parse(primaryPrompt))
	secondaryTemplate = template.Must(template.New("secondary").Parse(secondaryPrompt))
)

type promptData struct {
	Today    string
	Start    string
	End      string
	Topic    string
	MinItems int
	MaxItems int
}

// RenderPrompts builds the primary and secondary locale prompts for window. The window end is
// reported to the generator as today.
func RenderPrompts(opts Options, window domain.Window) (primary, secondary string, err error) {
	data := promptData{
		Today:    window.End.String(),
		Start:    window.Start.String(),
		End:      window.End.String(),
		MinItems: opts.MinItems,
		MaxItems: opts.MaxItems,
	}

	data.Topic = opts.TopicPrimary
	primary, err = render(primaryTemplate, data)
	if err != nil {
		return "", "", err
	}
	data.Topic = opts.TopicSecondary
	secondary, err = render(secondaryTemplate, data)
	if err != nil {
		return "", "", err
	}
	return primary, secondary, nil
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
