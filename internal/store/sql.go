package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/rolecall/internal/model"
)

// ErrRunSealed is returned when sealing a scrape run that is no longer running.
var ErrRunSealed = errors.New("scrape run already sealed")

// Ensure SQLStore implements model.Store.
var _ model.Store = (*SQLStore)(nil)

// SQLStore is the database/sql implementation shared by the SQLite and
// Postgres backends. Queries are written with ? placeholders and rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect string
	closers []func()
	now     func() time.Time
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect string, schema []string) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	err := s.db.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind turns ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- search profiles ---

const profileColumns = `id, user_id, name, keywords, location, radius_km, employment_types,
	salary_min, salary_max, boards, qualifications, preferences, is_active,
	scrape_interval_hours, last_scraped_at, created_at, updated_at`

func scanProfile(row rowScanner) (model.SearchProfile, error) {
	var (
		p                                 model.SearchProfile
		keywords, employmentTypes, boards string
		salaryMin, salaryMax              sql.NullInt64
		lastScraped                       sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &keywords, &p.Location, &p.RadiusKm, &employmentTypes,
		&salaryMin, &salaryMax, &boards, &p.Qualifications, &p.Preferences, &p.IsActive,
		&p.ScrapeIntervalHours, &lastScraped, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if err := decodeList(keywords, &p.Keywords); err != nil {
		return p, fmt.Errorf("decoding keywords of profile %s: %w", p.ID, err)
	}
	if err := decodeList(employmentTypes, &p.EmploymentTypes); err != nil {
		return p, fmt.Errorf("decoding employment types of profile %s: %w", p.ID, err)
	}
	if err := decodeList(boards, &p.Boards); err != nil {
		return p, fmt.Errorf("decoding boards of profile %s: %w", p.ID, err)
	}
	p.SalaryMin = intPtr(salaryMin)
	p.SalaryMax = intPtr(salaryMax)
	p.LastScrapedAt = timePtr(lastScraped)
	return p, nil
}

// ProfileByID loads a profile without any user scoping.
func (s *SQLStore) ProfileByID(ctx context.Context, id string) (model.SearchProfile, error) {
	p, err := scanProfile(s.queryRow(ctx, "SELECT "+profileColumns+" FROM search_profiles WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("loading profile %s: %w", id, err)
	}
	return p, nil
}

// ActiveProfiles returns every active profile across all users.
func (s *SQLStore) ActiveProfiles(ctx context.Context) ([]model.SearchProfile, error) {
	return s.listProfiles(ctx, "SELECT "+profileColumns+" FROM search_profiles WHERE is_active = ? ORDER BY created_at", true)
}

// ProfilesForUser returns the profiles owned by userID.
func (s *SQLStore) ProfilesForUser(ctx context.Context, userID string) ([]model.SearchProfile, error) {
	return s.listProfiles(ctx, "SELECT "+profileColumns+" FROM search_profiles WHERE user_id = ? ORDER BY created_at", userID)
}

func (s *SQLStore) listProfiles(ctx context.Context, q string, args ...any) ([]model.SearchProfile, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var out []model.SearchProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveProfile inserts p, or replaces the editable fields when p.ID already exists.
// Defaults are applied for radius and interval; lastScrapedAt is never written here.
func (s *SQLStore) SaveProfile(ctx context.Context, p model.SearchProfile) (model.SearchProfile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.RadiusKm == 0 {
		p.RadiusKm = model.DefaultRadiusKm
	}
	if p.ScrapeIntervalHours == 0 {
		p.ScrapeIntervalHours = model.DefaultScrapeIntervalHours
	}
	if err := p.Validate(); err != nil {
		return p, err
	}

	keywords, err := encodeList(p.Keywords)
	if err != nil {
		return p, err
	}
	employmentTypes, err := encodeList(p.EmploymentTypes)
	if err != nil {
		return p, err
	}
	boards, err := encodeList(p.Boards)
	if err != nil {
		return p, err
	}

	now := s.now()
	_, err = s.exec(ctx, `INSERT INTO search_profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			keywords = excluded.keywords,
			location = excluded.location,
			radius_km = excluded.radius_km,
			employment_types = excluded.employment_types,
			salary_min = excluded.salary_min,
			salary_max = excluded.salary_max,
			boards = excluded.boards,
			qualifications = excluded.qualifications,
			preferences = excluded.preferences,
			is_active = excluded.is_active,
			scrape_interval_hours = excluded.scrape_interval_hours,
			updated_at = excluded.updated_at`,
		p.ID, p.UserID, p.Name, keywords, p.Location, p.RadiusKm, employmentTypes,
		nullInt(p.SalaryMin), nullInt(p.SalaryMax), boards, p.Qualifications, p.Preferences, p.IsActive,
		p.ScrapeIntervalHours, now, now)
	if err != nil {
		return p, fmt.Errorf("saving profile %s: %w", p.ID, err)
	}
	return s.ProfileByID(ctx, p.ID)
}

// SetProfileActive toggles a profile on or off.
func (s *SQLStore) SetProfileActive(ctx context.Context, id string, active bool) error {
	res, err := s.exec(ctx, "UPDATE search_profiles SET is_active = ?, updated_at = ? WHERE id = ?", active, s.now(), id)
	if err != nil {
		return fmt.Errorf("updating profile %s: %w", id, err)
	}
	return requireRow(res, "profile", id)
}

// MarkProfileScraped stamps lastScrapedAt.
func (s *SQLStore) MarkProfileScraped(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, "UPDATE search_profiles SET last_scraped_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking profile %s scraped: %w", id, err)
	}
	return requireRow(res, "profile", id)
}

// --- job listings ---

const listingColumns = `id, external_id, source_board, source_url, title, company, description,
	location_raw, salary_display, salary_min, salary_max, salary_type, employment_type, category,
	date_posted, expires_at, content_hash, date_scraped, created_at, updated_at`

func scanListing(row rowScanner) (model.JobListing, error) {
	var (
		l                    model.JobListing
		salaryMin, salaryMax sql.NullFloat64
		salaryType           string
		posted, expires      sql.NullTime
	)
	err := row.Scan(&l.ID, &l.ExternalID, &l.SourceBoard, &l.SourceURL, &l.Title, &l.Company, &l.Description,
		&l.LocationRaw, &l.SalaryDisplay, &salaryMin, &salaryMax, &salaryType, &l.EmploymentType, &l.Category,
		&posted, &expires, &l.ContentHash, &l.DateScraped, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	l.SalaryMin = floatPtr(salaryMin)
	l.SalaryMax = floatPtr(salaryMax)
	l.SalaryType = model.SalaryType(salaryType)
	l.DatePosted = timePtr(posted)
	l.ExpiresAt = timePtr(expires)
	return l, nil
}

// ListingByID loads a listing by primary key.
func (s *SQLStore) ListingByID(ctx context.Context, id string) (model.JobListing, error) {
	l, err := scanListing(s.queryRow(ctx, "SELECT "+listingColumns+" FROM job_listings WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return l, fmt.Errorf("listing %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return l, fmt.Errorf("loading listing %s: %w", id, err)
	}
	return l, nil
}

// ListingByContentHash returns the oldest listing carrying hash, from any board.
func (s *SQLStore) ListingByContentHash(ctx context.Context, hash string) (model.JobListing, error) {
	l, err := scanListing(s.queryRow(ctx,
		"SELECT "+listingColumns+" FROM job_listings WHERE content_hash = ? ORDER BY created_at LIMIT 1", hash))
	if errors.Is(err, sql.ErrNoRows) {
		return l, fmt.Errorf("listing with hash %s: %w", hash, model.ErrNotFound)
	}
	if err != nil {
		return l, fmt.Errorf("looking up listing by hash: %w", err)
	}
	return l, nil
}

// InsertListing inserts l. A conflict on (source_board, external_id) or
// source_url touches the existing row's updated_at and returns it with inserted=false.
func (s *SQLStore) InsertListing(ctx context.Context, l model.JobListing) (model.JobListing, bool, error) {
	now := s.now()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.DateScraped, l.CreatedAt, l.UpdatedAt = now, now, now

	res, err := s.exec(ctx, `INSERT INTO job_listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		l.ID, l.ExternalID, l.SourceBoard, l.SourceURL, l.Title, l.Company, l.Description,
		l.LocationRaw, l.SalaryDisplay, nullFloat(l.SalaryMin), nullFloat(l.SalaryMax), string(l.SalaryType),
		l.EmploymentType, l.Category, nullTime(l.DatePosted), nullTime(l.ExpiresAt), l.ContentHash,
		l.DateScraped, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return l, false, fmt.Errorf("inserting listing %s: %w", l.SourceURL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return l, false, fmt.Errorf("inserting listing %s: %w", l.SourceURL, err)
	}
	if n == 1 {
		return l, true, nil
	}

	const match = "(source_board = ? AND external_id = ?) OR source_url = ?"
	if _, err := s.exec(ctx, "UPDATE job_listings SET updated_at = ? WHERE "+match,
		now, l.SourceBoard, l.ExternalID, l.SourceURL); err != nil {
		return l, false, fmt.Errorf("touching listing %s: %w", l.SourceURL, err)
	}
	existing, err := scanListing(s.queryRow(ctx,
		"SELECT "+listingColumns+" FROM job_listings WHERE "+match+" ORDER BY created_at LIMIT 1",
		l.SourceBoard, l.ExternalID, l.SourceURL))
	if err != nil {
		return l, false, fmt.Errorf("loading conflicting listing %s: %w", l.SourceURL, err)
	}
	return existing, false, nil
}

// --- scrape runs ---

const runColumns = `id, board, search_profile_id, status, jobs_found, jobs_new, jobs_updated,
	error_message, started_at, completed_at, duration_ms`

func scanRun(row rowScanner) (model.ScrapeRun, error) {
	var (
		r         model.ScrapeRun
		status    string
		completed sql.NullTime
		duration  sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Board, &r.SearchProfileID, &status, &r.JobsFound, &r.JobsNew, &r.JobsUpdated,
		&r.ErrorMessage, &r.StartedAt, &completed, &duration)
	if err != nil {
		return r, err
	}
	r.Status = model.RunStatus(status)
	r.CompletedAt = timePtr(completed)
	if duration.Valid {
		d := duration.Int64
		r.DurationMs = &d
	}
	return r, nil
}

// CreateScrapeRun records the start of a scrape.
func (s *SQLStore) CreateScrapeRun(ctx context.Context, profileID, board string) (model.ScrapeRun, error) {
	r := model.ScrapeRun{
		ID:              uuid.NewString(),
		Board:           board,
		SearchProfileID: profileID,
		Status:          model.RunRunning,
		StartedAt:       s.now(),
	}
	_, err := s.exec(ctx, `INSERT INTO scrape_runs (id, board, search_profile_id, status, started_at)
		VALUES (?, ?, ?, ?, ?)`, r.ID, r.Board, r.SearchProfileID, string(r.Status), r.StartedAt)
	if err != nil {
		return r, fmt.Errorf("creating scrape run for %s/%s: %w", profileID, board, err)
	}
	return r, nil
}

// ScrapeRun loads a run by id.
func (s *SQLStore) ScrapeRun(ctx context.Context, id string) (model.ScrapeRun, error) {
	r, err := scanRun(s.queryRow(ctx, "SELECT "+runColumns+" FROM scrape_runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("scrape run %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("loading scrape run %s: %w", id, err)
	}
	return r, nil
}

// SealScrapeRun moves a running run to its terminal state. Sealing is
// conditional on status = running, so a second seal returns ErrRunSealed.
func (s *SQLStore) SealScrapeRun(ctx context.Context, id string, out model.RunOutcome) error {
	if out.Status != model.RunCompleted && out.Status != model.RunFailed {
		return fmt.Errorf("sealing scrape run %s: invalid terminal status %q", id, out.Status)
	}
	run, err := s.ScrapeRun(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	duration := now.Sub(run.StartedAt).Milliseconds()
	res, err := s.exec(ctx, `UPDATE scrape_runs SET status = ?, jobs_found = ?, jobs_new = ?, jobs_updated = ?,
		error_message = ?, completed_at = ?, duration_ms = ?
		WHERE id = ? AND status = ?`,
		string(out.Status), out.JobsFound, out.JobsNew, out.JobsUpdated, out.ErrorMessage, now, duration,
		id, string(model.RunRunning))
	if err != nil {
		return fmt.Errorf("sealing scrape run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sealing scrape run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("scrape run %s: %w", id, ErrRunSealed)
	}
	return nil
}

// FailStaleScrapeRuns seals every run still running that started before the cutoff.
func (s *SQLStore) FailStaleScrapeRuns(ctx context.Context, startedBefore time.Time, msg string) (int64, error) {
	now := s.now()
	res, err := s.exec(ctx, `UPDATE scrape_runs SET status = ?, error_message = ?, completed_at = ?
		WHERE status = ? AND started_at < ?`,
		string(model.RunFailed), msg, now, string(model.RunRunning), startedBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failing stale scrape runs: %w", err)
	}
	return res.RowsAffected()
}

// RecentScrapeRuns returns the newest runs first.
func (s *SQLStore) RecentScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	rows, err := s.query(ctx, "SELECT "+runColumns+" FROM scrape_runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing scrape runs: %w", err)
	}
	defer rows.Close()

	var out []model.ScrapeRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scrape run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- user jobs ---

const userJobColumns = `id, user_id, job_listing_id, search_profile_id, status, status_changed_at,
	ai_score, ai_recommendation, ai_reasoning, ai_triaged_at, date_applied, notes, tags,
	next_action, next_action_date, priority, interest_level, sort_order, created_at`

func scanUserJob(row rowScanner) (model.UserJob, error) {
	var (
		j                             model.UserJob
		status, rec, tags             string
		triaged, applied, nextActDate sql.NullTime
	)
	err := row.Scan(&j.ID, &j.UserID, &j.JobListingID, &j.SearchProfileID, &status, &j.StatusChangedAt,
		&j.AIScore, &rec, &j.AIReasoning, &triaged, &applied, &j.Notes, &tags,
		&j.NextAction, &nextActDate, &j.Priority, &j.InterestLevel, &j.SortOrder, &j.CreatedAt)
	if err != nil {
		return j, err
	}
	j.Status = model.Status(status)
	j.AIRecommendation = model.Recommendation(rec)
	j.AITriagedAt = timePtr(triaged)
	j.DateApplied = timePtr(applied)
	j.NextActionDate = timePtr(nextActDate)
	if err := decodeList(tags, &j.Tags); err != nil {
		return j, fmt.Errorf("decoding tags of user job %s: %w", j.ID, err)
	}
	return j, nil
}

// CreateUserJob inserts j unless the user already has a row for the listing,
// in which case the existing row is returned with created=false.
func (s *SQLStore) CreateUserJob(ctx context.Context, j model.UserJob) (model.UserJob, bool, error) {
	now := s.now()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.CreatedAt = now
	if j.StatusChangedAt.IsZero() {
		j.StatusChangedAt = now
	}
	tags, err := encodeList(j.Tags)
	if err != nil {
		return j, false, err
	}

	res, err := s.exec(ctx, `INSERT INTO user_jobs (`+userJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, job_listing_id) DO NOTHING`,
		j.ID, j.UserID, j.JobListingID, j.SearchProfileID, string(j.Status), j.StatusChangedAt,
		j.AIScore, string(j.AIRecommendation), j.AIReasoning, nullTime(j.AITriagedAt), nullTime(j.DateApplied),
		j.Notes, tags, j.NextAction, nullTime(j.NextActionDate), j.Priority, j.InterestLevel, j.SortOrder, j.CreatedAt)
	if err != nil {
		return j, false, fmt.Errorf("creating user job for %s/%s: %w", j.UserID, j.JobListingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return j, false, fmt.Errorf("creating user job for %s/%s: %w", j.UserID, j.JobListingID, err)
	}
	if n == 1 {
		return j, true, nil
	}

	existing, err := scanUserJob(s.queryRow(ctx,
		"SELECT "+userJobColumns+" FROM user_jobs WHERE user_id = ? AND job_listing_id = ?", j.UserID, j.JobListingID))
	if err != nil {
		return j, false, fmt.Errorf("loading existing user job for %s/%s: %w", j.UserID, j.JobListingID, err)
	}
	return existing, false, nil
}

// UserJobs lists a user's jobs in board order. An empty status lists every column.
func (s *SQLStore) UserJobs(ctx context.Context, userID string, status model.Status) ([]model.UserJob, error) {
	q := "SELECT " + userJobColumns + " FROM user_jobs WHERE user_id = ?"
	args := []any{userID}
	if status != "" {
		q += " AND status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY sort_order, created_at DESC"

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing user jobs for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.UserJob
	for rows.Next() {
		j, err := scanUserJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// --- helpers ---

func requireRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, model.ErrNotFound)
	}
	return nil
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

func decodeList(s string, dst *[]string) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
