/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the settlement engine needs using
  SQLite: keyed policy and override records, the instructor and
  institution directories, training records, the administrative distance
  table and the holiday calendar. In production, the same patterns apply
  to PostgreSQL with minor SQL dialect differences (see store/postgres for
  the KV part).

INTERFACES IMPLEMENTED:
  generic.KVStore:               Policy and override records
  generic.HolidayCalendar:       Holidays paid at the weekend rate
  settlement.InstructorDirectory
  settlement.InstitutionDirectory
  settlement.RecordSource:       Trainings with their assignments

KEY TABLES:
  kv_records:   Opaque JSON values under slash-separated keys
  instructors:  Directory with home region
  institutions: Directory with category and region
  trainings:    One row per training
  assignments:  Per-day instructor participation (cascade on training)
  distances:    Administrative road distances layered over the default matrix
  holidays:     Global or company-scoped, optionally recurring

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/settlement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: KVStore interface
  - settlement/types.go: Directory and record interfaces
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/settlement"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.KVStore                 = (*Store)(nil)
	_ generic.HolidayCalendar         = (*Store)(nil)
	_ settlement.InstructorDirectory  = (*Store)(nil)
	_ settlement.InstitutionDirectory = (*Store)(nil)
	_ settlement.RecordSource         = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Policy and override records
	CREATE TABLE IF NOT EXISTS kv_records (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS instructors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		city_county TEXT NOT NULL DEFAULT '',
		region_code TEXT,
		address TEXT NOT NULL DEFAULT '',
		lat REAL,
		lng REAL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS institutions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'GENERAL',
		city_county TEXT NOT NULL DEFAULT '',
		region_code TEXT,
		address TEXT NOT NULL DEFAULT '',
		lat REAL,
		lng REAL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trainings (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		institution_id TEXT NOT NULL,
		status TEXT NOT NULL,
		special_education BOOLEAN NOT NULL DEFAULT FALSE,
		remote_island BOOLEAN NOT NULL DEFAULT FALSE,
		school_level TEXT NOT NULL DEFAULT '',
		student_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trainings_institution
		ON trainings(institution_id);

	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		training_id TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
		instructor_id TEXT NOT NULL,
		role TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL DEFAULT '',
		end_time TEXT NOT NULL DEFAULT '',
		sessions INTEGER NOT NULL DEFAULT 0,
		weekend_sessions INTEGER NOT NULL DEFAULT 0,
		event_participation BOOLEAN NOT NULL DEFAULT FALSE,
		event_hours TEXT NOT NULL DEFAULT '0',
		mentoring_sessions INTEGER NOT NULL DEFAULT 0,
		mentoring_hours TEXT NOT NULL DEFAULT '0',
		equipment_transport BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Hot path: one instructor's days
	CREATE INDEX IF NOT EXISTS idx_assignments_instructor_date
		ON assignments(instructor_id, date);
	CREATE INDEX IF NOT EXISTS idx_assignments_training
		ON assignments(training_id);

	-- Stored once per unordered pair, from_code < to_code
	CREATE TABLE IF NOT EXISTS distances (
		from_code TEXT NOT NULL,
		to_code TEXT NOT NULL,
		km TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (from_code, to_code)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		UNIQUE(company_id, date, name)
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// KV STORE (generic.KVStore interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_records WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO kv_records (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_records WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv_records WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

// =============================================================================
// DIRECTORIES (settlement.InstructorDirectory / InstitutionDirectory)
// =============================================================================

// SaveInstructor creates or updates an instructor.
func (s *Store) SaveInstructor(ctx context.Context, inst settlement.Instructor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO instructors (id, name, city_county, region_code, address, lat, lng, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			city_county = excluded.city_county,
			region_code = excluded.region_code,
			address = excluded.address,
			lat = excluded.lat,
			lng = excluded.lng
	`
	r := inst.Home
	_, err := s.db.ExecContext(ctx, query,
		inst.ID, inst.Name, r.CityCounty, codeValue(r.Code), r.Address,
		floatValue(r.Lat), floatValue(r.Lng),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Instructor retrieves an instructor by ID.
func (s *Store) Instructor(ctx context.Context, id string) (settlement.Instructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var inst settlement.Instructor
	var rc regionColumns
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, city_county, region_code, address, lat, lng FROM instructors WHERE id = ?",
		id,
	).Scan(&inst.ID, &inst.Name, &rc.cityCounty, &rc.code, &rc.address, &rc.lat, &rc.lng)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.Instructor{}, fmt.Errorf("instructor %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return settlement.Instructor{}, err
	}
	inst.Home = rc.region()
	return inst, nil
}

// ListInstructors returns all instructors ordered by name.
func (s *Store) ListInstructors(ctx context.Context) ([]settlement.Instructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, city_county, region_code, address, lat, lng FROM instructors ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.Instructor
	for rows.Next() {
		var inst settlement.Instructor
		var rc regionColumns
		if err := rows.Scan(&inst.ID, &inst.Name, &rc.cityCounty, &rc.code, &rc.address, &rc.lat, &rc.lng); err != nil {
			return nil, err
		}
		inst.Home = rc.region()
		out = append(out, inst)
	}
	return out, rows.Err()
}

// DeleteInstructor removes an instructor.
func (s *Store) DeleteInstructor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM instructors WHERE id = ?", id)
	return err
}

// SaveInstitution creates or updates an institution.
func (s *Store) SaveInstitution(ctx context.Context, inst settlement.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO institutions (id, name, category, city_county, region_code, address, lat, lng, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			city_county = excluded.city_county,
			region_code = excluded.region_code,
			address = excluded.address,
			lat = excluded.lat,
			lng = excluded.lng
	`
	category := inst.Category
	if category == "" {
		category = allowance.CategoryGeneral
	}
	r := inst.Region
	_, err := s.db.ExecContext(ctx, query,
		inst.ID, inst.Name, string(category), r.CityCounty, codeValue(r.Code), r.Address,
		floatValue(r.Lat), floatValue(r.Lng),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Institution retrieves an institution by ID.
func (s *Store) Institution(ctx context.Context, id string) (settlement.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var inst settlement.Institution
	var category string
	var rc regionColumns
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, category, city_county, region_code, address, lat, lng FROM institutions WHERE id = ?",
		id,
	).Scan(&inst.ID, &inst.Name, &category, &rc.cityCounty, &rc.code, &rc.address, &rc.lat, &rc.lng)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.Institution{}, fmt.Errorf("institution %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return settlement.Institution{}, err
	}
	inst.Category = allowance.Category(category)
	inst.Region = rc.region()
	return inst, nil
}

// ListInstitutions returns all institutions ordered by name.
func (s *Store) ListInstitutions(ctx context.Context) ([]settlement.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, category, city_county, region_code, address, lat, lng FROM institutions ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.Institution
	for rows.Next() {
		var inst settlement.Institution
		var category string
		var rc regionColumns
		if err := rows.Scan(&inst.ID, &inst.Name, &category, &rc.cityCounty, &rc.code, &rc.address, &rc.lat, &rc.lng); err != nil {
			return nil, err
		}
		inst.Category = allowance.Category(category)
		inst.Region = rc.region()
		out = append(out, inst)
	}
	return out, rows.Err()
}

// DeleteInstitution removes an institution.
func (s *Store) DeleteInstitution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM institutions WHERE id = ?", id)
	return err
}

// =============================================================================
// TRAINING RECORDS (settlement.RecordSource interface)
// =============================================================================

// SaveTraining creates or replaces a training and all of its assignments
// in one transaction.
func (s *Store) SaveTraining(ctx context.Context, t settlement.Training) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO trainings (id, name, institution_id, status, special_education, remote_island,
			school_level, student_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			institution_id = excluded.institution_id,
			status = excluded.status,
			special_education = excluded.special_education,
			remote_island = excluded.remote_island,
			school_level = excluded.school_level,
			student_count = excluded.student_count
	`
	if _, err := tx.ExecContext(ctx, query,
		t.ID, t.Name, t.InstitutionID, t.Status, t.SpecialEducation, t.RemoteIsland,
		string(t.SchoolLevel), t.StudentCount, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to save training %s: %w", t.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM assignments WHERE training_id = ?", t.ID); err != nil {
		return fmt.Errorf("failed to clear assignments of %s: %w", t.ID, err)
	}

	insert := `
		INSERT INTO assignments (training_id, instructor_id, role, date, start_time, end_time, sessions,
			weekend_sessions, event_participation, event_hours, mentoring_sessions, mentoring_hours,
			equipment_transport)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range t.Assignments {
		if _, err := tx.ExecContext(ctx, insert,
			t.ID, a.InstructorID, string(a.Role), a.Date.String(), a.Start, a.End, a.Sessions,
			a.WeekendSessions, a.EventParticipation, amountValue(a.EventHours), a.MentoringSessions,
			amountValue(a.MentoringHours), a.EquipmentTransport,
		); err != nil {
			return fmt.Errorf("failed to save assignment of %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// Trainings returns every training with its assignments, ordered by ID.
func (s *Store) Trainings(ctx context.Context) ([]settlement.Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadTrainings(ctx, "")
}

// Training returns one training, or ErrNotFound.
func (s *Store) Training(ctx context.Context, id string) (settlement.Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.loadTrainings(ctx, id)
	if err != nil {
		return settlement.Training{}, err
	}
	if len(list) == 0 {
		return settlement.Training{}, fmt.Errorf("training %s: %w", id, generic.ErrNotFound)
	}
	return list[0], nil
}

// loadTrainings reads trainings, then assignments, closing each cursor
// before the next query. An empty id loads everything.
func (s *Store) loadTrainings(ctx context.Context, id string) ([]settlement.Training, error) {
	trainingQuery := `
		SELECT id, name, institution_id, status, special_education, remote_island, school_level, student_count
		FROM trainings WHERE (? = '' OR id = ?) ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, trainingQuery, id, id)
	if err != nil {
		return nil, err
	}
	var trainings []settlement.Training
	index := make(map[string]int)
	for rows.Next() {
		var t settlement.Training
		var level string
		if err := rows.Scan(&t.ID, &t.Name, &t.InstitutionID, &t.Status, &t.SpecialEducation,
			&t.RemoteIsland, &level, &t.StudentCount); err != nil {
			rows.Close()
			return nil, err
		}
		t.SchoolLevel = allowance.SchoolLevel(level)
		index[t.ID] = len(trainings)
		trainings = append(trainings, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	assignmentQuery := `
		SELECT training_id, instructor_id, role, date, start_time, end_time, sessions, weekend_sessions,
			event_participation, event_hours, mentoring_sessions, mentoring_hours, equipment_transport
		FROM assignments WHERE (? = '' OR training_id = ?) ORDER BY training_id, date, start_time, id
	`
	arows, err := s.db.QueryContext(ctx, assignmentQuery, id, id)
	if err != nil {
		return nil, err
	}
	defer arows.Close()

	for arows.Next() {
		var a settlement.Assignment
		var trainingID, role, date, eventHours, mentoringHours string
		if err := arows.Scan(&trainingID, &a.InstructorID, &role, &date, &a.Start, &a.End, &a.Sessions,
			&a.WeekendSessions, &a.EventParticipation, &eventHours, &a.MentoringSessions, &mentoringHours,
			&a.EquipmentTransport); err != nil {
			return nil, err
		}
		i, ok := index[trainingID]
		if !ok {
			continue
		}
		a.Role = allowance.Role(role)
		if a.Date, err = generic.ParseDate(date); err != nil {
			return nil, fmt.Errorf("assignment of %s has bad date %q: %w", trainingID, date, err)
		}
		a.EventHours = parseAmount(eventHours, generic.UnitHours)
		a.MentoringHours = parseAmount(mentoringHours, generic.UnitHours)
		trainings[i].Assignments = append(trainings[i].Assignments, a)
	}
	return trainings, arows.Err()
}

// DeleteTraining removes a training and its assignments.
func (s *Store) DeleteTraining(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM trainings WHERE id = ?", id)
	return err
}

// =============================================================================
// DISTANCE TABLE
// =============================================================================

// SaveDistance records an administrative road distance for a pair.
func (s *Store) SaveDistance(ctx context.Context, a, b region.Code, km generic.Amount) error {
	if !a.Valid() || !b.Valid() {
		return fmt.Errorf("distance %s-%s: %w", a, b, generic.ErrUnknownRegion)
	}
	if km.IsNegative() {
		return fmt.Errorf("distance %s-%s is negative", a, b)
	}
	if b < a {
		a, b = b, a
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO distances (from_code, to_code, km, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_code, to_code) DO UPDATE SET
			km = excluded.km,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, string(a), string(b), km.Value.String(), time.Now().UTC().Format(time.RFC3339))
	return err
}

// DeleteDistance removes a pair.
func (s *Store) DeleteDistance(ctx context.Context, a, b region.Code) error {
	if b < a {
		a, b = b, a
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM distances WHERE from_code = ? AND to_code = ?", string(a), string(b))
	return err
}

// DistanceMatrix loads every stored pair into a matrix.
func (s *Store) DistanceMatrix(ctx context.Context) (*region.DistanceMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT from_code, to_code, km FROM distances")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := region.NewDistanceMatrix()
	for rows.Next() {
		var from, to, km string
		if err := rows.Scan(&from, &to, &km); err != nil {
			return nil, err
		}
		m.Set(region.Code(from), region.Code(to), parseAmount(km, generic.UnitKm))
	}
	return m, rows.Err()
}

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday saves a holiday to the database.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, company_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.CompanyID,
		h.Date.String(),
		h.Name,
		h.Recurring,
		time.Now().Format(time.RFC3339),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// IsHoliday checks if a date is a holiday for the given company.
func (s *Store) IsHoliday(companyID string, date generic.TimePoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (company_id = ? OR company_id = '')
		  AND (
			(recurring = FALSE AND date = ?)
			OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
		  )
	`

	var count int
	err := s.db.QueryRow(query, companyID, date.String(), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// GetAllHolidays returns all holidays (for admin UI).
func (s *Store) GetAllHolidays(ctx context.Context, companyID string) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, company_id, date, name, recurring
		FROM holidays
		WHERE company_id = ? OR company_id = ''
		ORDER BY date ASC
	`

	rows, err := s.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &h.CompanyID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = generic.ParseDate(dateStr); err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}

	return holidays, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Development only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"assignments", "trainings", "institutions", "instructors", "distances", "holidays", "kv_records"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

type regionColumns struct {
	cityCounty string
	code       sql.NullString
	address    string
	lat, lng   sql.NullFloat64
}

func (rc regionColumns) region() region.Region {
	r := region.Region{CityCounty: rc.cityCounty, Address: rc.address}
	if rc.code.Valid && rc.code.String != "" {
		c := region.Code(rc.code.String)
		r.Code = &c
	}
	if rc.lat.Valid {
		v := rc.lat.Float64
		r.Lat = &v
	}
	if rc.lng.Valid {
		v := rc.lng.Float64
		r.Lng = &v
	}
	return r
}

func codeValue(c *region.Code) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return nullString(string(*c))
}

func floatValue(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func amountValue(a generic.Amount) string {
	return a.Value.String()
}

func parseAmount(value string, unit generic.Unit) generic.Amount {
	value = strings.TrimSpace(value)
	if value == "" {
		value = "0"
	}
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  unit,
	}
}
