package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/siohaza/warden/internal/failure"
)

type Player struct {
	SteamID     string
	Name        string
	FirstSeen   time.Time
	LastSeen    time.Time
	PersonaName string
	ProfileURL  string
	Avatar      string
	Country     string
}

type PlayerName struct {
	SteamID  string
	Name     string
	LastSeen time.Time
}

type Session struct {
	ID      int64
	SteamID string
	Start   time.Time
	End     *time.Time
}

type Action struct {
	ID         string
	SteamID    string
	PlayerName string
	Type       string
	Reason     string
	By         string
	CreatedAt  time.Time
}

type Blacklist struct {
	SteamID     string
	Blacklisted bool
	Reason      string
	By          string
	CreatedAt   time.Time
}

type Profile struct {
	PersonaName string
	ProfileURL  string
	Avatar      string
	Country     string
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration error: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetPlayer(ctx context.Context, steamID string) (Player, error) {
	var (
		p                   Player
		firstSeen, lastSeen int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT steam_id, name, first_seen, last_seen, persona_name, profile_url, avatar, country
		 FROM players WHERE steam_id = ?`, steamID,
	).Scan(&p.SteamID, &p.Name, &firstSeen, &lastSeen, &p.PersonaName, &p.ProfileURL, &p.Avatar, &p.Country)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, failure.NotFound("get player", fmt.Errorf("player %s not found", steamID))
	}
	if err != nil {
		return Player{}, fmt.Errorf("failed to get player: %w", err)
	}
	p.FirstSeen = time.UnixMilli(firstSeen)
	p.LastSeen = time.UnixMilli(lastSeen)
	return p, nil
}

// UpsertPlayer records that steamID was seen under name at the given time.
func (s *Store) UpsertPlayer(ctx context.Context, name, steamID string, at time.Time) (Player, error) {
	ms := at.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Player{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO players (steam_id, name, first_seen, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(steam_id) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen`,
		steamID, name, ms, ms,
	); err != nil {
		return Player{}, fmt.Errorf("failed to upsert player: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO player_names (steam_id, name, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(steam_id, name) DO UPDATE SET last_seen = excluded.last_seen`,
		steamID, name, ms,
	); err != nil {
		return Player{}, fmt.Errorf("failed to upsert player name: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Player{}, fmt.Errorf("failed to commit player: %w", err)
	}

	return s.GetPlayer(ctx, steamID)
}

func (s *Store) PlayerNames(ctx context.Context, steamID string) ([]PlayerName, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT steam_id, name, last_seen FROM player_names WHERE steam_id = ? ORDER BY last_seen DESC`, steamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list player names: %w", err)
	}
	defer rows.Close()

	var names []PlayerName
	for rows.Next() {
		var (
			n  PlayerName
			ms int64
		)
		if err := rows.Scan(&n.SteamID, &n.Name, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan player name: %w", err)
		}
		n.LastSeen = time.UnixMilli(ms)
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) UpdateProfile(ctx context.Context, steamID string, p Profile) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET persona_name = ?, profile_url = ?, avatar = ?, country = ? WHERE steam_id = ?`,
		p.PersonaName, p.ProfileURL, p.Avatar, p.Country, steamID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return failure.NotFound("update profile", fmt.Errorf("player %s not found", steamID))
	}
	return nil
}

func (s *Store) StartSession(ctx context.Context, steamID string, at time.Time) (Session, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (steam_id, started_at) VALUES (?, ?)`, steamID, at.UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	return Session{ID: id, SteamID: steamID, Start: time.UnixMilli(at.UnixMilli())}, nil
}

// EndSession closes the most recent open session of steamID.
func (s *Store) EndSession(ctx context.Context, steamID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?
		 WHERE id = (SELECT id FROM sessions WHERE steam_id = ? AND ended_at IS NULL ORDER BY started_at DESC, id DESC LIMIT 1)`,
		at.UnixMilli(), steamID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return failure.NotFound("end session", fmt.Errorf("no open session for %s", steamID))
	}
	return nil
}

func (s *Store) Sessions(ctx context.Context, steamID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, steam_id, started_at, ended_at FROM sessions WHERE steam_id = ? ORDER BY started_at, id`, steamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess  Session
			start int64
			end   sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &sess.SteamID, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.Start = time.UnixMilli(start)
		if end.Valid {
			t := time.UnixMilli(end.Int64)
			sess.End = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) RecordAction(ctx context.Context, a Action) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (id, steam_id, player_name, action_type, reason, actor, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SteamID, a.PlayerName, a.Type, a.Reason, a.By, a.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

func (s *Store) Actions(ctx context.Context, steamID string) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, steam_id, player_name, action_type, reason, actor, created_at FROM actions
		 WHERE steam_id = ? ORDER BY created_at`, steamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var (
			a  Action
			ms int64
		)
		if err := rows.Scan(&a.ID, &a.SteamID, &a.PlayerName, &a.Type, &a.Reason, &a.By, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		a.CreatedAt = time.UnixMilli(ms)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// GetBlacklist returns a non-blacklisted record when steamID has none.
func (s *Store) GetBlacklist(ctx context.Context, steamID string) (Blacklist, error) {
	var (
		bl          Blacklist
		blacklisted int
		createdAt   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT steam_id, blacklisted, reason, actor, created_at FROM blacklist WHERE steam_id = ?`, steamID,
	).Scan(&bl.SteamID, &blacklisted, &bl.Reason, &bl.By, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Blacklist{SteamID: steamID}, nil
	}
	if err != nil {
		return Blacklist{}, fmt.Errorf("failed to get blacklist: %w", err)
	}
	bl.Blacklisted = blacklisted != 0
	bl.CreatedAt = time.UnixMilli(createdAt)
	return bl, nil
}

func (s *Store) SetBlacklist(ctx context.Context, steamID, reason, by string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO blacklist (steam_id, blacklisted, reason, actor, created_at) VALUES (?, 1, ?, ?, ?)
		 ON CONFLICT(steam_id) DO UPDATE SET blacklisted = 1, reason = excluded.reason, actor = excluded.actor, created_at = excluded.created_at`,
		steamID, reason, by, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to set blacklist: %w", err)
	}
	return nil
}

func (s *Store) RemoveBlacklist(ctx context.Context, steamID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE blacklist SET blacklisted = 0 WHERE steam_id = ? AND blacklisted = 1`, steamID)
	if err != nil {
		return fmt.Errorf("failed to remove blacklist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return failure.NotFound("remove blacklist", fmt.Errorf("%s is not blacklisted", steamID))
	}
	return nil
}
