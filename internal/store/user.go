package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertUser inserts or updates a directory entry.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, username, avatar, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			avatar = excluded.avatar,
			updated_at = excluded.updated_at`,
		u.ID, u.Username, u.Avatar, now)
	return err
}

// GetUser returns a directory entry by id, or nil when absent.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, username, avatar, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Avatar, &u.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether the id resolves to a known user.
func (db *DB) UserExists(id string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
