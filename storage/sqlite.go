package storage

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"cian_scrooper/models"
)

// Setting keys stored in the settings table.
const (
	SettingRegion       = "region"
	SettingRegionID     = "region_id"
	SettingRooms        = "rooms"
	SettingDealType     = "deal_type"
	SettingMinPrice     = "min_price"
	SettingMaxPrice     = "max_price"
	SettingMinFloor     = "min_floor"
	SettingMaxFloor     = "max_floor"
	SettingScheduleTime = "schedule_time"
)

// DefaultSettings are written on first start and never overwrite operator edits.
var DefaultSettings = map[string]string{
	SettingRegion:   "Тюмень",
	SettingRegionID: "4827",
	SettingRooms:    "1,2,3,4",
	SettingDealType: "sale",
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "migrate sqlite")
	}
	if err := store.ensureDefaults(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		pass_id TEXT,
		kind TEXT,
		region TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER DEFAULT 0,
		phones_resolved INTEGER DEFAULT 0,
		phones_failed INTEGER DEFAULT 0,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) ensureDefaults() error {
	for k, v := range DefaultSettings {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, k, v); err != nil {
			return eris.Wrapf(err, "seed setting %s", k)
		}
	}
	return nil
}

// =============================================================================
// Settings
// =============================================================================

// GetSetting returns the stored value, or def when the key is unset.
func (s *SQLiteStore) GetSetting(key, def string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows || (err == nil && !value.Valid) {
		return def, nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "get setting %s", key)
	}
	return value.String, nil
}

func (s *SQLiteStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return eris.Wrapf(err, "set setting %s", key)
}

func (s *SQLiteStore) AllSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, COALESCE(value, '') FROM settings ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "list settings")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// LoadFilter builds the listing filter from the stored settings.
func (s *SQLiteStore) LoadFilter() (models.ListingFilter, error) {
	settings, err := s.AllSettings()
	if err != nil {
		return models.ListingFilter{}, err
	}
	get := func(k string) string {
		if v, ok := settings[k]; ok && v != "" {
			return v
		}
		return DefaultSettings[k]
	}

	f := models.ListingFilter{
		Location: get(SettingRegion),
		RegionID: get(SettingRegionID),
		DealType: get(SettingDealType),
		Rooms:    ParseRooms(get(SettingRooms)),
	}
	f.MinPrice, _ = strconv.ParseInt(get(SettingMinPrice), 10, 64)
	f.MaxPrice, _ = strconv.ParseInt(get(SettingMaxPrice), 10, 64)
	f.MinFloor, _ = strconv.Atoi(get(SettingMinFloor))
	f.MaxFloor, _ = strconv.Atoi(get(SettingMaxFloor))
	return f, nil
}

// ParseRooms reads a comma separated room list like "1,2,3,4". Invalid
// entries are skipped.
func ParseRooms(s string) []int {
	var rooms []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n >= 0 {
			rooms = append(rooms, n)
		}
	}
	return rooms
}

// =============================================================================
// Runs & logs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (pass_id, kind, region, started_at, status,
			listings_found, phones_resolved, phones_failed)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0)`,
		run.PassID, run.Kind, run.Region, run.StartedAt, run.Status)
	if err != nil {
		return 0, eris.Wrap(err, "create run")
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, listings_found = ?,
			phones_resolved = ?, phones_failed = ?, error_message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsFound, run.PhonesResolved, run.PhonesFailed,
		run.ErrorMessage, run.ID)
	return eris.Wrap(err, "update run")
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, COALESCE(pass_id, ''), kind, COALESCE(region, ''), started_at, finished_at, status,
			listings_found, phones_resolved, phones_failed, COALESCE(error_message, '')
		FROM scrape_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var r models.ScrapeRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.PassID, &r.Kind, &r.Region, &r.StartedAt, &finished, &r.Status,
			&r.ListingsFound, &r.PhonesResolved, &r.PhonesFailed, &r.ErrorMessage); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message)
		VALUES (?, ?, ?, ?)`,
		runID, time.Now(), level, message)
	return err
}

func (s *SQLiteStore) RunLogs(runID int64) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message
		FROM scrape_logs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "list logs")
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	if !cmd.Valid() {
		return 0, eris.Errorf("unknown command %q", cmd)
	}
	var raw any
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return 0, eris.Wrap(err, "marshal params")
		}
		raw = string(data)
	}
	result, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, raw, time.Now())
	if err != nil {
		return 0, eris.Wrap(err, "enqueue command")
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	params := &models.CommandParams{}
	if len(cmd.Params) == 0 || string(cmd.Params) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(cmd.Params, params); err != nil {
		return nil, eris.Wrap(err, "parse command params")
	}
	return params, nil
}
