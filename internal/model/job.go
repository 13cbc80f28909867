package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SalaryType classifies how a salary figure is quoted.
type SalaryType string

const (
	SalaryAnnual  SalaryType = "annual"
	SalaryHourly  SalaryType = "hourly"
	SalaryDaily   SalaryType = "daily"
	SalaryUnknown SalaryType = "unknown"
)

// RawListing is a single job as extracted from a board, before persistence.
type RawListing struct {
	ExternalID     string
	SourceBoard    string
	Title          string
	Company        string
	Description    string
	LocationRaw    string
	SourceURL      string
	SalaryDisplay  string
	SalaryMin      *float64
	SalaryMax      *float64
	SalaryType     SalaryType // empty when the board gave no usable salary
	EmploymentType string
	Category       string
	DatePosted     *time.Time
	ExpiresAt      *time.Time
}

// JobListing is a persisted listing, shared across every user.
type JobListing struct {
	RawListing
	ID          string
	ContentHash string
	DateScraped time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchProfile is a user's saved search. It drives both scraping and triage.
type SearchProfile struct {
	ID                  string
	UserID              string
	Name                string
	Keywords            []string // priority order
	Location            string
	RadiusKm            int
	EmploymentTypes     []string
	SalaryMin           *int
	SalaryMax           *int
	Boards              []string
	Qualifications      string
	Preferences         string
	IsActive            bool
	ScrapeIntervalHours int
	LastScrapedAt       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const (
	DefaultRadiusKm            = 20
	DefaultScrapeIntervalHours = 48
)

// Validate checks the invariants every stored profile must satisfy.
func (p SearchProfile) Validate() error {
	if p.UserID == "" {
		return errors.New("profile has no user")
	}
	if len(p.Keywords) == 0 {
		return fmt.Errorf("profile %q needs at least one keyword", p.Name)
	}
	if len(p.Boards) == 0 {
		return fmt.Errorf("profile %q needs at least one board", p.Name)
	}
	if p.ScrapeIntervalHours <= 0 {
		return fmt.Errorf("profile %q scrape interval must be positive, got %d", p.Name, p.ScrapeIntervalHours)
	}
	return nil
}

// RunStatus is the lifecycle state of a ScrapeRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ScrapeRun is the audit record of one (profile, board) scrape.
type ScrapeRun struct {
	ID              string
	Board           string
	SearchProfileID string
	Status          RunStatus
	JobsFound       int
	JobsNew         int
	JobsUpdated     int
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationMs      *int64
}

// RunOutcome carries the terminal values used to seal a run.
type RunOutcome struct {
	Status       RunStatus
	JobsFound    int
	JobsNew      int
	JobsUpdated  int
	ErrorMessage string
}

// Status is a UserJob's position in the application pipeline.
type Status string

const (
	StatusRecommended Status = "recommended"
	StatusBacklog     Status = "backlog"
	StatusApplied     Status = "applied"
	StatusInterview   Status = "interview"
	StatusOffer       Status = "offer"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

// Recommendation is the classifier's verdict.
type Recommendation string

const (
	Recommended    Recommendation = "recommended"
	Maybe          Recommendation = "maybe"
	NotRecommended Recommendation = "not_recommended"
)

// Valid reports whether r is one of the known recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case Recommended, Maybe, NotRecommended:
		return true
	}
	return false
}

// RecommendationForScore maps a 0-100 score onto its band.
func RecommendationForScore(score int) Recommendation {
	switch {
	case score >= 70:
		return Recommended
	case score >= 40:
		return Maybe
	default:
		return NotRecommended
	}
}

// StatusForRecommendation decides where a freshly triaged job lands.
func StatusForRecommendation(r Recommendation) Status {
	if r == Recommended {
		return StatusRecommended
	}
	return StatusBacklog
}

// UserJob is one user's view of a listing: triage result plus application state.
type UserJob struct {
	ID               string
	UserID           string
	JobListingID     string
	SearchProfileID  string
	Status           Status
	StatusChangedAt  time.Time
	AIScore          int
	AIRecommendation Recommendation
	AIReasoning      string
	AITriagedAt      *time.Time
	DateApplied      *time.Time
	Notes            string
	Tags             []string
	NextAction       string
	NextActionDate   *time.Time
	Priority         int
	InterestLevel    int
	SortOrder        int
	CreatedAt        time.Time
}

// TriageInput is everything the classifier sees about one (listing, profile) pair.
type TriageInput struct {
	JobTitle           string
	Company            string
	Description        string
	Location           string
	SalaryDisplay      string
	EmploymentType     string
	UserKeywords       []string
	UserLocation       string
	UserSalaryMin      *int
	UserQualifications string
	UserPreferences    string
}

// NewTriageInput assembles classifier input from a listing and the profile it was found for.
func NewTriageInput(l JobListing, p SearchProfile) TriageInput {
	return TriageInput{
		JobTitle:           l.Title,
		Company:            l.Company,
		Description:        l.Description,
		Location:           l.LocationRaw,
		SalaryDisplay:      l.SalaryDisplay,
		EmploymentType:     l.EmploymentType,
		UserKeywords:       p.Keywords,
		UserLocation:       p.Location,
		UserSalaryMin:      p.SalaryMin,
		UserQualifications: p.Qualifications,
		UserPreferences:    p.Preferences,
	}
}

// TriageResult is the classifier's typed output.
type TriageResult struct {
	Score          int
	Recommendation Recommendation
	Reasoning      string
}

// Match is a recommended job handed to a Notifier.
type Match struct {
	Listing JobListing
	UserJob UserJob
}

// Classifier scores a listing against a profile.
type Classifier interface {
	Classify(ctx context.Context, in TriageInput) (TriageResult, error)
}

// Notifier sends notifications for recommended matches.
type Notifier interface {
	Notify(ctx context.Context, matches []Match) error
}

// ProfileStore reads and updates search profiles.
type ProfileStore interface {
	ProfileByID(ctx context.Context, id string) (SearchProfile, error)
	ActiveProfiles(ctx context.Context) ([]SearchProfile, error)
	ProfilesForUser(ctx context.Context, userID string) ([]SearchProfile, error)
	SaveProfile(ctx context.Context, p SearchProfile) (SearchProfile, error)
	SetProfileActive(ctx context.Context, id string, active bool) error
	MarkProfileScraped(ctx context.Context, id string, at time.Time) error
}

// ListingStore persists shared job listings.
type ListingStore interface {
	ListingByID(ctx context.Context, id string) (JobListing, error)
	ListingByContentHash(ctx context.Context, hash string) (JobListing, error)
	// InsertListing inserts l unless a row with the same (board, external id)
	// or source URL exists, in which case that row's updated_at is touched and
	// it is returned with inserted=false.
	InsertListing(ctx context.Context, l JobListing) (stored JobListing, inserted bool, err error)
}

// RunStore records scrape runs.
type RunStore interface {
	CreateScrapeRun(ctx context.Context, profileID, board string) (ScrapeRun, error)
	SealScrapeRun(ctx context.Context, id string, out RunOutcome) error
	FailStaleScrapeRuns(ctx context.Context, startedBefore time.Time, msg string) (int64, error)
	RecentScrapeRuns(ctx context.Context, limit int) ([]ScrapeRun, error)
}

// UserJobStore persists per-user triage results.
type UserJobStore interface {
	// CreateUserJob inserts j unless (user, listing) already exists.
	CreateUserJob(ctx context.Context, j UserJob) (stored UserJob, created bool, err error)
	UserJobs(ctx context.Context, userID string, status Status) ([]UserJob, error)
}

// Store is the full persistence surface used by the worker.
type Store interface {
	ProfileStore
	ListingStore
	RunStore
	UserJobStore
	Close() error
}
