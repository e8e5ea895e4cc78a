package referral

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/koksal000/engel/internal/store"
)

// Doctors the referral form offers. Mirrors the hospital's published roster.
var Doctors = []string{
	"Prof. Dr. Ayşe Yılmaz - Psikiyatri Uzmanı",
	"Doç. Dr. Mehmet Özcan - Nöroloji Uzmanı",
	"Uzm. Dr. Zeynep Kaya - Ruh Sağlığı ve Hastalıkları",
	"Dr. Ali Demir - Genel Psikiyatri",
}

var rejectionReasons = []string{
	"Yapılan ön değerlendirme, hastane sevki için gerekli kriterleri karşılamamaktadır.",
	"Seçilen tarih ve saatte uygun randevu kontenjanı bulunmamaktadır, lütfen farklı bir tarih deneyiniz.",
	"Başvurunuzdaki belgeler değerlendirme kurulu tarafından yeterli bulunmamıştır.",
	"İlgili bölümün randevu takvimi dolu olduğundan sevk talebiniz şu an karşılanamamaktadır.",
}

// Caller schedules the follow-up phone call for an approved referral.
type Caller interface {
	Schedule(app *store.Application, delay time.Duration) bool
}

// Service simulates the hospital referral board: a weighted coin decides
// approval, rejections carry a canned reason, and approvals get a call back
// after a randomized delay.
type Service struct {
	apps        store.Applications
	caller      Caller
	probability float64
	delayMin    time.Duration
	delayMax    time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(apps store.Applications, caller Caller, probability float64, delayMin, delayMax time.Duration) *Service {
	if probability < 0 || probability > 1 {
		probability = 0.5
	}
	if delayMin <= 0 || delayMax < delayMin {
		delayMin, delayMax = 30*time.Second, 60*time.Second
	}
	return &Service{
		apps:        apps,
		caller:      caller,
		probability: probability,
		delayMin:    delayMin,
		delayMax:    delayMax,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Attach records the referral request on the application and decides its
// outcome. An approved referral schedules the consultant call; a rejected one
// gets a reason. The updated application is returned.
func (s *Service) Attach(ctx context.Context, appID, doctor, date, hour string) (*store.Application, error) {
	app, err := s.apps.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.Referral != nil {
		return nil, fmt.Errorf("application %s already has a referral", appID)
	}

	ref := &store.Referral{
		Doctor: doctor,
		Date:   date,
		Time:   hour,
	}
	s.mu.Lock()
	approved := s.rng.Float64() < s.probability
	reason := rejectionReasons[s.rng.Intn(len(rejectionReasons))]
	delay := s.delayMin + time.Duration(s.rng.Int63n(int64(s.delayMax-s.delayMin)+1))
	s.mu.Unlock()

	if approved {
		ref.Status = store.ReferralApproved
	} else {
		ref.Status = store.ReferralRejected
		ref.Reason = reason
	}
	app.Referral = ref
	if err := s.apps.UpdateApplication(ctx, app); err != nil {
		return nil, err
	}

	if approved {
		if s.caller.Schedule(app, delay) {
			log.Printf("referral approved for application %s, call in %s", app.ID, delay)
		} else {
			log.Printf("referral approved for application %s but a call is already pending", app.ID)
		}
	} else {
		log.Printf("referral rejected for application %s", app.ID)
	}
	return app, nil
}
