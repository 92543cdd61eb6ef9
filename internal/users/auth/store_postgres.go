// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/dberr"
	"github.com/taibuivan/bazaar/internal/platform/postgres"
	"github.com/taibuivan/bazaar/internal/platform/sec"
)

// # Unit of Work

// PostgresStore implements [Store] on top of pgx.
//
// A root store holds the pool and opens transactions. A transaction-bound
// store holds the [pgx.Tx] and has no beginner, so nested InTx calls join
// the outer transaction.
type PostgresStore struct {
	db       postgres.DBTX
	beginner postgres.TxBeginner
}

// NewPostgresStore wraps a pool, typically a [*pgxpool.Pool].
func NewPostgresStore(pool interface {
	postgres.DBTX
	postgres.TxBeginner
}) *PostgresStore {
	return &PostgresStore{db: pool, beginner: pool}
}

func (store *PostgresStore) Users() UserRepository       { return &postgresUsers{db: store.db} }
func (store *PostgresStore) Sessions() SessionRepository { return &postgresSessions{db: store.db} }
func (store *PostgresStore) Codes() CodeRepository       { return &postgresCodes{db: store.db} }

// InTx implements [Store].
func (store *PostgresStore) InTx(context context.Context, fn func(tx Store) error) error {
	if store.beginner == nil {
		return fn(store)
	}
	return postgres.WithTx(context, store.beginner, func(transaction pgx.Tx) error {
		return fn(&PostgresStore{db: transaction})
	})
}

// # User Repository

type postgresUsers struct {
	db postgres.DBTX
}

const userColumns = `id, name, email, passwordhash, photo, role, isverified, createdat, updatedat`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var role string
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Photo,
		&role,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = sec.UserRole(role)
	return user, nil
}

func (repository *postgresUsers) FindByID(context context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account WHERE id = $1`

	user, err := scanUser(repository.db.QueryRow(context, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "User", "postgres_user_find_by_id_failed")
	}
	return user, nil
}

func (repository *postgresUsers) FindByEmail(context context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account WHERE LOWER(email) = LOWER($1)`

	user, err := scanUser(repository.db.QueryRow(context, query, email))
	if err != nil {
		return nil, dberr.Wrap(err, "User", "postgres_user_find_by_email_failed")
	}
	return user, nil
}

func (repository *postgresUsers) LockByID(context context.Context, id string) error {
	const query = `SELECT id FROM users.account WHERE id = $1 FOR UPDATE`

	var locked string
	if err := repository.db.QueryRow(context, query, id).Scan(&locked); err != nil {
		return dberr.Wrap(err, "User", "postgres_user_lock_failed")
	}
	return nil
}

/*
Create inserts a new account.

The unique index on LOWER(email) is the final arbiter of uniqueness; a
violation surfaces as apperr.Conflict even when two registrations race.
*/
func (repository *postgresUsers) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, name, email, passwordhash, photo, role, isverified, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := repository.db.Exec(context, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Photo,
		string(user.Role),
		user.Verified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return dberr.Wrap(err, "Email", "postgres_user_create_failed")
		}
		return fmt.Errorf("postgres_user_create_failed: %w", err)
	}
	return nil
}

func (repository *postgresUsers) UpdateName(context context.Context, id, name string) (*User, error) {
	query := `
		UPDATE users.account SET name = $2, updatedat = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(repository.db.QueryRow(context, query, id, name))
	if err != nil {
		return nil, dberr.Wrap(err, "User", "postgres_user_update_name_failed")
	}
	return user, nil
}

func (repository *postgresUsers) UpdatePassword(context context.Context, id, passwordHash string) error {
	const query = `UPDATE users.account SET passwordhash = $2, updatedat = NOW() WHERE id = $1`

	return repository.execOne(context, "postgres_user_update_password_failed", query, id, passwordHash)
}

func (repository *postgresUsers) MarkVerified(context context.Context, id string) error {
	const query = `UPDATE users.account SET isverified = TRUE, updatedat = NOW() WHERE id = $1`

	return repository.execOne(context, "postgres_user_mark_verified_failed", query, id)
}

// execOne runs an UPDATE that must touch exactly one account.
func (repository *postgresUsers) execOne(context context.Context, action, query string, args ...any) error {
	tag, err := repository.db.Exec(context, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, "User", action)
	}
	return nil
}

func (repository *postgresUsers) ListStores(context context.Context, userID string) ([]StoreRef, error) {
	const query = `
		SELECT storeid, storename
		FROM users.storemember
		WHERE userid = $1
		ORDER BY storename, storeid`

	rows, err := repository.db.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_user_list_stores_failed: %w", err)
	}

	stores, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StoreRef, error) {
		var store StoreRef
		err := row.Scan(&store.ID, &store.Name)
		return store, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres_user_list_stores_scan_failed: %w", err)
	}
	return stores, nil
}

// # Session Repository

type postgresSessions struct {
	db postgres.DBTX
}

func (repository *postgresSessions) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (id, userid, useragent, expiresat, createdat)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := repository.db.Exec(context, query,
		session.ID,
		session.UserID,
		session.UserAgent,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if dberr.IsForeignKeyViolation(err) {
		return apperr.NotFound("User")
	}
	if err != nil {
		return fmt.Errorf("postgres_session_create_failed: %w", err)
	}
	return nil
}

func (repository *postgresSessions) FindByID(context context.Context, id string) (*Session, error) {
	const query = `
		SELECT id, userid, useragent, expiresat, createdat
		FROM users.session
		WHERE id = $1`

	session := &Session{}
	err := repository.db.QueryRow(context, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.UserAgent,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Session", "postgres_session_find_failed")
	}
	return session, nil
}

func (repository *postgresSessions) UpdateExpiry(context context.Context, id string, expiresAt time.Time) error {
	const query = `UPDATE users.session SET expiresat = $2 WHERE id = $1`

	tag, err := repository.db.Exec(context, query, id, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres_session_update_expiry_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, "Session", "postgres_session_update_expiry_failed")
	}
	return nil
}

func (repository *postgresSessions) Delete(context context.Context, id string) error {
	if _, err := repository.db.Exec(context, `DELETE FROM users.session WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres_session_delete_failed: %w", err)
	}
	return nil
}

func (repository *postgresSessions) DeleteByUser(context context.Context, userID string) (int64, error) {
	tag, err := repository.db.Exec(context, `DELETE FROM users.session WHERE userid = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_delete_by_user_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (repository *postgresSessions) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	tag, err := repository.db.Exec(context, `DELETE FROM users.session WHERE expiresat <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// # Verification Code Repository

type postgresCodes struct {
	db postgres.DBTX
}

func (repository *postgresCodes) Create(context context.Context, code *VerificationCode) error {
	const query = `
		INSERT INTO users.verificationcode (id, userid, type, tokenhash, expiresat, createdat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := repository.db.Exec(context, query,
		code.ID,
		code.UserID,
		string(code.Type),
		code.TokenHash,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if dberr.IsForeignKeyViolation(err) {
		return apperr.NotFound("User")
	}
	if err != nil {
		return fmt.Errorf("postgres_code_create_failed: %w", err)
	}
	return nil
}

/*
Consume deletes and returns a live code in one statement.

DELETE ... RETURNING takes the row lock, so a concurrent redemption of the
same code waits and then matches nothing.
*/
func (repository *postgresCodes) Consume(context context.Context, tokenHash string, codeType CodeType, now time.Time) (*VerificationCode, error) {
	const query = `
		DELETE FROM users.verificationcode
		WHERE tokenhash = $1 AND type = $2 AND expiresat > $3
		RETURNING id, userid, type, tokenhash, expiresat, createdat`

	code := &VerificationCode{}
	var kind string
	err := repository.db.QueryRow(context, query, tokenHash, string(codeType), now).Scan(
		&code.ID,
		&code.UserID,
		&kind,
		&code.TokenHash,
		&code.ExpiresAt,
		&code.CreatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Verification code", "postgres_code_consume_failed")
	}
	code.Type = CodeType(kind)
	return code, nil
}

func (repository *postgresCodes) DeleteByUser(context context.Context, userID string, codeType CodeType) error {
	const query = `DELETE FROM users.verificationcode WHERE userid = $1 AND type = $2`

	if _, err := repository.db.Exec(context, query, userID, string(codeType)); err != nil {
		return fmt.Errorf("postgres_code_delete_by_user_failed: %w", err)
	}
	return nil
}

func (repository *postgresCodes) CountSince(context context.Context, userID string, codeType CodeType, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM users.verificationcode
		WHERE userid = $1 AND type = $2 AND createdat > $3`

	var count int
	if err := repository.db.QueryRow(context, query, userID, string(codeType), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres_code_count_failed: %w", err)
	}
	return count, nil
}

func (repository *postgresCodes) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	tag, err := repository.db.Exec(context, `DELETE FROM users.verificationcode WHERE expiresat <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_code_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
