package domain

import "time"

// JobOffer StatusId values
const (
	StatusActive          = 1
	StatusPaused          = 2
	StatusGoalCompleted   = 3
	StatusBudgetCompleted = 4
	StatusArchived        = 5
)

// Defaults stamped on imported offers
const (
	SourceAPI               = "API"
	DefaultBudget           = 10.0
	DefaultApplicationsGoal = 50
	DefaultVacancies        = 1
)

// JobOffer is a persisted imported job listing.
type JobOffer struct {
	ID                   int64      `db:"Id" json:"id"`
	ExternalID           string     `db:"ExternalId" json:"external_id"`
	Title                string     `db:"Title" json:"title"`
	JobTitle             string     `db:"JobTitle" json:"job_title"`
	Description          string     `db:"Description" json:"description"`
	CompanyName          string     `db:"CompanyName" json:"company_name"`
	Sector               string     `db:"Sector" json:"sector"`
	Address              string     `db:"Address" json:"address"`
	Country              string     `db:"Country" json:"country"`
	CountryID            *int64     `db:"CountryId" json:"country_id,omitempty"`
	Region               string     `db:"Region" json:"region"`
	RegionID             *int64     `db:"RegionId" json:"region_id,omitempty"`
	City                 string     `db:"City" json:"city"`
	CityID               *int64     `db:"CityId" json:"city_id,omitempty"`
	Postcode             string     `db:"Postcode" json:"postcode"`
	Latitude             *float64   `db:"Latitude" json:"latitude,omitempty"`
	Longitude            *float64   `db:"Longitude" json:"longitude,omitempty"`
	Vacancies            int        `db:"Vacancies" json:"vacancies"`
	SalaryMin            *float64   `db:"SalaryMin" json:"salary_min,omitempty"`
	SalaryMax            *float64   `db:"SalaryMax" json:"salary_max,omitempty"`
	JobType              string     `db:"JobType" json:"job_type"`
	ExternalURL          string     `db:"ExternalUrl" json:"external_url"`
	ApplicationURL       string     `db:"ApplicationUrl" json:"application_url"`
	Budget               float64    `db:"Budget" json:"budget"`
	BudgetSpent          float64    `db:"BudgetSpent" json:"budget_spent"`
	ApplicationsGoal     int        `db:"ApplicationsGoal" json:"applications_goal"`
	ApplicationsReceived int        `db:"ApplicationsReceived" json:"applications_received"`
	StatusID             int        `db:"StatusId" json:"status_id"`
	ConnectionID         int64      `db:"ConnectionId" json:"connection_id"`
	UserID               *int64     `db:"UserId" json:"user_id,omitempty"`
	Source               string     `db:"Source" json:"source"`
	PublicationDate      *time.Time `db:"PublicationDate" json:"publication_date,omitempty"`
	CreatedAt            time.Time  `db:"CreatedAt" json:"created_at"`
	UpdatedAt            *time.Time `db:"UpdatedAt" json:"updated_at,omitempty"`
}

// FailedOffer records one record the importer could not map or store.
type FailedOffer struct {
	ExternalID string `json:"id"`
	Reason     string `json:"reason"`
}

// ImportResult summarises one importer run.
type ImportResult struct {
	Imported     int           `json:"imported"`
	Errors       int           `json:"errors"`
	FailedOffers []FailedOffer `json:"failedOffers"`
	FromCache    bool          `json:"fromCache,omitempty"`
}

// StatusSweepStats counts rows moved out of StatusActive by one sweep.
type StatusSweepStats struct {
	GoalCompleted   int64 `json:"goal_completed"`
	BudgetCompleted int64 `json:"budget_completed"`
}
