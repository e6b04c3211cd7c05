package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; the store never closes it.
// Schema/table identifiers are quoted through pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "authgate").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "authgate",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

var userColumnNames = []string{
	"id", "first_name", "last_name", "email", "country_code", "phone", "password_hash",
	"is_email_verified", "is_phone_verified", "created_at", "updated_at",
}

var userColumns = userColumnsAs("")

// userColumnsAs renders the user column list, optionally qualified by a table alias.
func userColumnsAs(alias string) string {
	if alias == "" {
		return strings.Join(userColumnNames, ", ")
	}
	out := make([]string, len(userColumnNames))
	for i, c := range userColumnNames {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.CountryCode,
		&u.Phone,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.PhoneVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := normalizedCreate(op, in)
	if err != nil {
		return User{}, err
	}

	id, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (
		     id, first_name, last_name, email, country_code, phone, password_hash,
		     is_email_verified, is_phone_verified, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		   RETURNING `+userColumns,
		id, in.FirstName, in.LastName, in.Email, in.CountryCode, in.Phone, in.PasswordHash,
		in.EmailVerified, in.PhoneVerified, in.Now,
	))
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, userID string) (User, error) {
	return s.getOne(ctx, "identity.GetByID",
		`SELECT `+userColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE id = $1`,
		strings.TrimSpace(userID))
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.getOne(ctx, "identity.GetByEmail",
		`SELECT `+userColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE email = $1`,
		NormalizeEmail(email))
}

func (s *PostgresStore) GetByPhone(ctx context.Context, countryCode, phone string) (User, error) {
	return s.getOne(ctx, "identity.GetByPhone",
		`SELECT `+userColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE country_code = $1 AND phone = $2`,
		NormalizeCountryCode(countryCode), NormalizePhone(phone))
}

func (s *PostgresStore) GetByExternal(ctx context.Context, provider, accountID string) (User, error) {
	users := pgIdent(s.schema, "users")
	accounts := pgIdent(s.schema, "oauth_accounts")
	return s.getOne(ctx, "identity.GetByExternal",
		`SELECT `+userColumnsAs("u")+`
		   FROM `+accounts+` a
		   JOIN `+users+` u ON u.id = a.user_id
		  WHERE a.provider = $1 AND a.provider_account_id = $2`,
		NormalizeProvider(provider), strings.TrimSpace(accountID))
}

func (s *PostgresStore) getOne(ctx context.Context, op, query string, args ...any) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// LinkExternal records a provider account for userID (idempotent for the same owner).
func (s *PostgresStore) LinkExternal(ctx context.Context, userID, provider, accountID string, now time.Time) error {
	const op = "identity.LinkExternal"

	provider = NormalizeProvider(provider)
	accountID = strings.TrimSpace(accountID)
	if provider == "" || accountID == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "provider and account id are required"}
	}

	var owner string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+pgIdent(s.schema, "oauth_accounts")+` (user_id, provider, provider_account_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider, provider_account_id) DO UPDATE SET provider = EXCLUDED.provider
		 RETURNING user_id`,
		userID, provider, accountID, now,
	).Scan(&owner)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return NotFoundError{Op: op, Resource: "user"}
		}
		return err
	}
	if owner != userID {
		return ConflictError{Op: op, Field: "external_account"}
	}
	return nil
}

func (s *PostgresStore) MarkPhoneVerified(ctx context.Context, userID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+` SET is_phone_verified = true, updated_at = $2 WHERE id = $1`,
		userID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.MarkPhoneVerified", Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	const op = "identity.SetPasswordHash"
	if strings.TrimSpace(hash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty hash"}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, hash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	switch c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)); {
	case c == "uq_users_email", strings.Contains(c, "email"):
		return "email", true
	case c == "uq_users_phone", strings.Contains(c, "phone"):
		return "phone", true
	default:
		return "unique", true
	}
}
