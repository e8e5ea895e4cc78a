package store

import "time"

// Assessment is the AI-produced preliminary evaluation attached to an
// application. All free text is Turkish.
type Assessment struct {
	EstimatedAge         int        `json:"estimatedAge"`
	DisabilityPercentage int        `json:"disabilityPercentage"`
	DisabilityTypes      []string   `json:"disabilityTypes,omitempty"`
	AffectedBodyAreas    []string   `json:"affectedBodyAreas,omitempty"`
	RedLightAreas        []RedLight `json:"redLightAreas,omitempty"`
	Report               string     `json:"report"`
}

// RedLight marks a point of concern on the uploaded photo, in percentage
// coordinates from the top-left corner.
type RedLight struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Description string  `json:"description,omitempty"`
}

type ReferralStatus string

const (
	ReferralApproved ReferralStatus = "approved"
	ReferralRejected ReferralStatus = "rejected"
)

// Referral is the simulated hospital-appointment request attached to an
// application after the user submits the referral form.
type Referral struct {
	Doctor string         `json:"doctor"`
	Date   string         `json:"date"`
	Time   string         `json:"time"`
	Status ReferralStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// Application is one submitted assessment request. The call coordinator only
// ever reads applications; the referral flow attaches the Referral sub-record.
type Application struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Surname    string      `json:"surname"`
	PhotoKey   string      `json:"photoKey,omitempty"`
	Assessment Assessment  `json:"assessment"`
	Referral   *Referral   `json:"referral,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// DisplayName returns the patient name shown on the call screen.
func (a *Application) DisplayName() string {
	return a.Name + " " + a.Surname
}

type CallStatus string

const (
	CallAnswered CallStatus = "answered"
	CallRejected CallStatus = "rejected"
	CallMissed   CallStatus = "missed"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one conversation entry. Role is "user" or "model".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Call is one phone-call attempt tied to exactly one application.
//
// A Call row is created with status missed the moment the incoming-call
// trigger fires and is updated in place at most twice: once when the user
// accepts/rejects (or never, on ring timeout - the missed row is already
// correct) and once more when an accepted call ends. DurationSeconds is
// meaningful only for answered calls and stays 0 otherwise.
type Call struct {
	ID              string     `json:"id"`
	ApplicationID   string     `json:"applicationId"`
	DisplayName     string     `json:"displayName"`
	Status          CallStatus `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	DurationSeconds int        `json:"duration"`
	Transcript      []Turn     `json:"transcript,omitempty"`
}
