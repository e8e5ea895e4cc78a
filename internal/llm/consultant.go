package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/koksal000/engel/internal/store"
)

// ConsultantName is the persona answering the simulated hospital call.
const ConsultantName = "Deniz Tuğrul"

// Consultant produces the next spoken line of the hospital call. It is
// stateless: the full conversation history is replayed on every call.
type Consultant struct {
	Client *GeminiClient
}

func NewConsultant(client *GeminiClient) *Consultant {
	return &Consultant{Client: client}
}

// Reply returns the consultant's next utterance in Turkish. An empty history
// is the "produce greeting" signal: the scripted greeting is returned without
// a remote call, so a greeting is always available even when the provider is
// down.
func (c *Consultant) Reply(ctx context.Context, app *store.Application, history []store.Turn) (string, error) {
	if len(history) == 0 {
		return Greeting(app), nil
	}

	contents := make([]geminiContent, 0, len(history))
	for _, t := range history {
		role := store.RoleUser
		if t.Role == store.RoleModel {
			role = store.RoleModel
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: t.Text}}})
	}

	return c.Client.generate(ctx, consultantSystemPrompt(app), contents, false)
}

// Greeting is the scripted first utterance of every call.
func Greeting(app *store.Application) string {
	return fmt.Sprintf("Merhaba %s, ben %s. Bakırköy Engellilik Değerlendirme Merkezi'nden arıyorum. "+
		"Yapmış olduğunuz başvuru onaylandı, sonuçlarınız hakkında konuşmak için müsaitseniz size bilgi vermek isterim.",
		app.DisplayName(), ConsultantName)
}

func consultantSystemPrompt(app *store.Application) string {
	a := app.Assessment
	types := "Belirtilmemiş"
	if len(a.DisabilityTypes) > 0 {
		types = strings.Join(a.DisabilityTypes, ", ")
	}
	return fmt.Sprintf(`Sen, Bakırköy Ruh ve Sinir Hastalıkları Hastanesi'nde görevli, %s adında bir danışmansın. Görevin, ön değerlendirme raporu sonuçları hakkında hastalarla empatik, bilgilendirici ve profesyonel bir telefon görüşmesi yapmaktır.

- Asla bir doktor olmadığını, sadece bir danışman olduğunu vurgula. Verdiğin bilgiler tıbbi tavsiye değildir.
- Konuşmayı kısa ve net tut. Amacın hastayı randevuya yönlendirmek veya sorularını yanıtlamaktır.
- Konuşma geçmişini takip et ve önceki söylenenleri hatırla.
- Cevapların kısa, anlaşılır ve profesyonel Türkçe olsun.

HASTA RAPOR BİLGİLERİ
- Ad Soyad: %s
- Tahmini Yaş: %d
- Potansiyel Engellilik Yüzdesi: %%%d
- Potansiyel Engel Türleri: %s
- Ön Değerlendirme Raporu Özeti: %s`,
		ConsultantName, app.DisplayName(), a.EstimatedAge, a.DisabilityPercentage, types, a.Report)
}
