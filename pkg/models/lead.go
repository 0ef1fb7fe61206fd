package models

import "time"

// Score is the coarse quality grade of a lead.
type Score string

const (
	ScoreC      Score = "C"
	ScoreB      Score = "B"
	ScoreA      Score = "A"
	ScoreAPlus  Score = "A+"
	ScoreAPlus2 Score = "A++"
)

// scoreRank orders the scale. Unknown or empty scores rank below C.
var scoreRank = map[Score]int{
	ScoreC:      1,
	ScoreB:      2,
	ScoreA:      3,
	ScoreAPlus:  4,
	ScoreAPlus2: 5,
}

// Rank returns the position of the score on the ordered scale, 0 when unknown.
func (s Score) Rank() int {
	return scoreRank[s]
}

// Valid reports whether s is on the scale.
func (s Score) Valid() bool {
	_, ok := scoreRank[s]
	return ok
}

// MaxScore returns the higher of two scores.
func MaxScore(a, b Score) Score {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Lead is a business contact record owned by a user.
type Lead struct {
	ID                string    `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	CompanyName       string    `json:"company_name" db:"company_name"`
	City              string    `json:"city" db:"city"`
	State             string    `json:"state" db:"state"`
	Address           string    `json:"address" db:"address"`
	Phone             string    `json:"phone" db:"phone"`
	Email             string    `json:"email" db:"email"`
	SecondaryEmail    string    `json:"secondary_email" db:"secondary_email"`
	Website           string    `json:"website" db:"website"`
	FacebookURL       string    `json:"facebook_url" db:"facebook_url"`
	InstagramURL      string    `json:"instagram_url" db:"instagram_url"`
	LinkedInURL       string    `json:"linkedin_url" db:"linkedin_url"`
	ServiceType       string    `json:"service_type" db:"service_type"`
	Source            string    `json:"source" db:"source"`
	Notes             string    `json:"notes" db:"notes"`
	Score             Score     `json:"score" db:"score"`
	ImportOperationID *string   `json:"import_operation_id,omitempty" db:"import_operation_id"`
	ExternalSourceID  string    `json:"external_source_id" db:"external_source_id"`
	IdentityKey       string    `json:"identity_key" db:"identity_key"`
	PhoneDigits       string    `json:"-" db:"phone_digits"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// LeadUpdate carries the columns of an existing lead that an import changes.
// Lead is the full post-merge record the update was derived from.
type LeadUpdate struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
	Lead   Lead              `json:"-"`
}

// LeadColumns is the ordered column list used by selects and inserts.
var LeadColumns = []string{
	"id", "user_id", "company_name", "city", "state", "address", "phone", "email", "secondary_email",
	"website", "facebook_url", "instagram_url", "linkedin_url", "service_type", "source", "notes",
	"score", "import_operation_id", "external_source_id", "identity_key", "phone_digits",
	"created_at", "updated_at",
}

// UpsertedLead is a lead written by an insert that may have merged into an existing
// row on its natural key. Inserted is false when the row already existed.
type UpsertedLead struct {
	Lead
	Inserted bool `db:"inserted"`
}
