package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/koksal000/engel/internal/call"
	"github.com/koksal000/engel/internal/storage"
	"github.com/koksal000/engel/internal/store"
)

type fakeAnalyzer struct {
	assessment store.Assessment
	err        error
}

func (f *fakeAnalyzer) Assess(_ context.Context, _ []byte, _, _, _ string) (store.Assessment, error) {
	return f.assessment, f.err
}

type fakeReferrals struct {
	err error
}

func (f *fakeReferrals) Attach(ctx context.Context, appID, doctor, date, hour string) (*store.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &store.Application{
		ID:       appID,
		Referral: &store.Referral{Doctor: doctor, Date: date, Time: hour, Status: store.ReferralApproved},
	}, nil
}

type stubDialogue struct{}

func (stubDialogue) Reply(context.Context, *store.Application, []store.Turn) (string, error) {
	return "Merhaba", nil
}

type stubSynth struct{}

func (stubSynth) Synthesize(context.Context, string) ([]byte, error) { return []byte("RIFF"), nil }

type testEnv struct {
	server    *Server
	mem       *store.Memory
	analyzer  *fakeAnalyzer
	referrals *fakeReferrals
	session   *call.Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	analyzer := &fakeAnalyzer{assessment: store.Assessment{
		EstimatedAge:         34,
		DisabilityPercentage: 40,
		Report:               "Ön değerlendirme raporu.",
	}}
	referrals := &fakeReferrals{}
	session := call.NewSession(mem, stubDialogue{}, stubSynth{}, time.Minute)
	srv := New(Options{
		Applications: mem,
		Calls:        mem,
		Analyzer:     analyzer,
		Photos:       storage.NewMemory(),
		Referrals:    referrals,
		Session:      session,
		Capture: CaptureConfig{
			SilenceTimeout: 100 * time.Millisecond,
			InitialSilence: 500 * time.Millisecond,
		},
	})
	return &testEnv{server: srv, mem: mem, analyzer: analyzer, referrals: referrals, session: session}
}

func multipartApplication(t *testing.T, name, surname string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if name != "" {
		_ = w.WriteField("name", name)
	}
	if surname != "" {
		_ = w.WriteField("surname", surname)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="photo"; filename="photo.png"`)
	header.Set("Content-Type", "image/png")
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nfakeimagedata"))
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateApplication(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartApplication(t, "Ayşe", "Yılmaz")
	r := httptest.NewRequest(http.MethodPost, "/api/applications", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		store.Application
		PhotoURL string `json:"photoUrl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" || resp.Name != "Ayşe" {
		t.Fatalf("response application = %+v", resp.Application)
	}
	if resp.Assessment.DisabilityPercentage != 40 {
		t.Fatalf("assessment not attached: %+v", resp.Assessment)
	}
	if !strings.HasPrefix(resp.PhotoURL, "/photos/") || !strings.HasSuffix(resp.PhotoURL, ".png") {
		t.Fatalf("photo url = %q", resp.PhotoURL)
	}

	stored, err := env.mem.GetApplication(context.Background(), resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PhotoKey == "" {
		t.Fatal("photo key not persisted")
	}
}

func TestCreateApplicationMissingFields(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartApplication(t, "", "Yılmaz")
	r := httptest.NewRequest(http.MethodPost, "/api/applications", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateApplicationAnalyzerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.err = errors.New("provider down")
	body, contentType := multipartApplication(t, "Ayşe", "Yılmaz")
	r := httptest.NewRequest(http.MethodPost, "/api/applications", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	apps, _ := env.mem.ListApplications(context.Background())
	if len(apps) != 0 {
		t.Fatal("failed analysis still created an application")
	}
}

func TestListCalls(t *testing.T) {
	env := newTestEnv(t)
	c := &store.Call{ApplicationID: "app-1", DisplayName: "Ayşe Yılmaz", Status: store.CallMissed, StartedAt: time.Now()}
	if err := env.mem.CreateCall(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var calls []store.Call
	if err := json.Unmarshal(w.Body.Bytes(), &calls); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].Status != store.CallMissed {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestAttachReferral(t *testing.T) {
	env := newTestEnv(t)
	payload := `{"doctor":"Dr. Ali Demir - Genel Psikiyatri","date":"2026-09-02","time":"10:00"}`
	r := httptest.NewRequest(http.MethodPost, "/api/applications/app-1/referral", strings.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	env.referrals.err = store.ErrNotFound
	r2 := httptest.NewRequest(http.MethodPost, "/api/applications/missing/referral", strings.NewReader(payload))
	r2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w2, r2)
	if w2.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w2.Code)
	}
}

func TestAttachReferralMissingFields(t *testing.T) {
	env := newTestEnv(t)
	r := httptest.NewRequest(http.MethodPost, "/api/applications/app-1/referral", strings.NewReader(`{"doctor":"x"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
