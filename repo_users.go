package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Users is the persistence contract for accounts. Default reads skip
// soft deleted rows. Emails are matched after NormalizeEmail.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64, includeDeleted bool) (*User, error)
	// Save inserts when user.ID is zero, otherwise updates. Updates can be
	// restricted to columns, updated_at is always written.
	Save(ctx context.Context, user *User, columns ...string) error
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	HardDelete(ctx context.Context, id int64) error
	ListAll(ctx context.Context, includeDeleted bool) ([]*User, error)
	ListDeleted(ctx context.Context) ([]*User, error)
	Count(ctx context.Context, filter UserCountFilter) (int, error)
	// CountByRole tallies non deleted users per stored role name
	CountByRole(ctx context.Context) (map[string]int, error)
}

// UserCountFilter narrows Count
type UserCountFilter struct {
	Status      AccountStatus
	OnlyDeleted bool
}

// Column names accepted by Save
const (
	ColumnEmail            = "email"
	ColumnFirstName        = "first_name"
	ColumnLastName         = "last_name"
	ColumnPasswordHash     = "password_hash"
	ColumnPhoneNumber      = "phone_number"
	ColumnRoles            = "roles"
	ColumnEmailVerified    = "email_verified"
	ColumnVerificationCode = "verification_code"
	ColumnVerificationExp  = "verification_code_expires_at"
	ColumnAccountStatus    = "account_status"
	ColumnUpdatedAt        = "updated_at"
)

var (
	// columns touched when a code is issued or consumed
	verificationColumns = []string{ColumnVerificationCode, ColumnVerificationExp}
	verifiedColumns     = []string{ColumnEmailVerified, ColumnAccountStatus, ColumnVerificationCode, ColumnVerificationExp}
	profileColumns      = []string{ColumnFirstName, ColumnLastName, ColumnPasswordHash, ColumnPhoneNumber}
)

type users struct {
	repository.Repository[*User]
	db            bun.IDB
	now           func() time.Time
	deterministic bool
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock sets the clock used for created_at and updated_at
func WithUsersClock(clock func() time.Time) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

// WithDeterministicUUID derives new user uuids from their email
func WithDeterministicUUID(enabled bool) UsersOption {
	return func(u *users) {
		u.deterministic = enabled
	}
}

func NewUsersRepository(db bun.IDB, opts ...UsersOption) Users {
	base := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			id, err := uuid.Parse(u.UUID)
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.UUID = id.String()
			}
		},
		GetIdentifier: func() string { return ColumnEmail },
	})

	repo := &users{
		Repository: base,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	record, err := a.Repository.GetByIdentifier(ctx, email)
	if err != nil {
		return nil, a.mapError(err, map[string]any{"email": email})
	}
	return record, nil
}

func (a *users) FindByID(ctx context.Context, id int64, includeDeleted bool) (*User, error) {
	criteria := []repository.SelectCriteria{selectByID(id)}
	if includeDeleted {
		criteria = append(criteria, repository.SelectDeletedAlso())
	}

	record, err := a.Repository.Get(ctx, criteria...)
	if err != nil {
		return nil, a.mapError(err, map[string]any{"id": id})
	}
	return record, nil
}

func (a *users) Save(ctx context.Context, user *User, columns ...string) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}

	if user.ID == 0 {
		a.prepareUserDefaults(user)
		_, err := a.Repository.Create(ctx, user)
		return a.mapError(err, map[string]any{"email": user.Email})
	}

	if containsColumn(columns, ColumnEmail) || len(columns) == 0 {
		user.Email = NormalizeEmail(user.Email)
	}

	user.UpdatedAt = a.now()
	q := a.db.NewUpdate().Model(user).WherePK()
	if len(columns) > 0 {
		q = q.Column(appendUnique(columns, ColumnUpdatedAt)...)
	} else {
		q = q.ExcludeColumn("id", "uuid", "created_at", "deleted_at")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return a.mapError(err, map[string]any{"id": user.ID})
	}
	return requireAffected(res, user.ID)
}

func (a *users) SoftDelete(ctx context.Context, id int64) error {
	if _, err := a.FindByID(ctx, id, false); err != nil {
		return err
	}
	err := a.Repository.DeleteWhere(ctx, deleteByID(id))
	return a.mapError(err, map[string]any{"id": id})
}

// Restore clears deleted_at and nothing else, so a restored record reads
// exactly as it did before the soft delete.
func (a *users) Restore(ctx context.Context, id int64) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		WhereAllWithDeleted().
		Set("deleted_at = NULL").
		Where("id = ?", id).
		Where("deleted_at IS NOT NULL").
		Exec(ctx)
	if err != nil {
		return a.mapError(err, map[string]any{"id": id})
	}
	return requireAffected(res, id)
}

func (a *users) HardDelete(ctx context.Context, id int64) error {
	if _, err := a.FindByID(ctx, id, true); err != nil {
		return err
	}
	err := a.Repository.DeleteWhere(ctx,
		deleteByID(id),
		func(q *bun.DeleteQuery) *bun.DeleteQuery { return q.WhereAllWithDeleted() },
		repository.DeleteForReal(),
	)
	return a.mapError(err, map[string]any{"id": id})
}

func (a *users) ListAll(ctx context.Context, includeDeleted bool) ([]*User, error) {
	criteria := []repository.SelectCriteria{orderByID, unpaginated}
	if includeDeleted {
		criteria = append(criteria, repository.SelectDeletedAlso())
	}

	records, _, err := a.Repository.List(ctx, criteria...)
	if err != nil {
		return nil, a.mapError(err, nil)
	}
	return records, nil
}

func (a *users) ListDeleted(ctx context.Context) ([]*User, error) {
	records, _, err := a.Repository.List(ctx, orderByID, unpaginated, repository.SelectDeletedOnly())
	if err != nil {
		return nil, a.mapError(err, nil)
	}
	return records, nil
}

func (a *users) Count(ctx context.Context, filter UserCountFilter) (int, error) {
	q := a.db.NewSelect().Model((*User)(nil))
	if filter.OnlyDeleted {
		q = q.WhereDeleted()
	}
	if filter.Status != "" {
		q = q.Where("?TableAlias.account_status = ?", filter.Status)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, a.mapError(err, nil)
	}
	return n, nil
}

type roleRow struct {
	Roles []string `bun:"roles,type:json"`
}

func (a *users) CountByRole(ctx context.Context) (map[string]int, error) {
	var rows []roleRow
	err := a.db.NewSelect().
		Model((*User)(nil)).
		Column("roles").
		Scan(ctx, &rows)
	if err != nil {
		return nil, a.mapError(err, nil)
	}

	out := map[string]int{}
	for _, row := range rows {
		for _, r := range row.Roles {
			out[r]++
		}
	}
	return out, nil
}

func (a *users) prepareUserDefaults(user *User) {
	user.Email = NormalizeEmail(user.Email)
	now := a.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	user.EnsureStatus()

	if user.UUID != "" {
		return
	}
	if a.deterministic {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.UUID = id.String()
			return
		}
	}
	user.UUID = uuid.NewString()
}

func (a *users) mapError(err error, meta map[string]any) error {
	if err == nil {
		return nil
	}
	if repository.IsRecordNotFound(err) {
		return withMeta(ErrUserNotFound, meta)
	}
	if IsUniqueViolation(err) {
		return withMeta(ErrEmailAlreadyRegistered, meta)
	}
	return internalError(err, "user store operation failed")
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return internalError(err, "user store operation failed")
	}
	if n == 0 {
		return withMeta(ErrUserNotFound, map[string]any{"id": id})
	}
	return nil
}

// IsUniqueViolation detects unique key errors from the supported drivers
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Criteria shared by the queries above. Columns are written through
// ?TableAlias so the identifiers are quoted per dialect.
func selectByID(id int64) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id)
	}
}

func deleteByID(id int64) repository.DeleteCriteria {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("?TableAlias.id = ?", id)
	}
}

func orderByID(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("?TableAlias.id ASC")
}

// unpaginated lifts the default page size applied by List
func unpaginated(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Limit(0).Offset(0)
}

func containsColumn(columns []string, column string) bool {
	for _, c := range columns {
		if c == column {
			return true
		}
	}
	return false
}

func appendUnique(columns []string, extra ...string) []string {
	out := make([]string, 0, len(columns)+len(extra))
	seen := map[string]struct{}{}
	for _, c := range append(append([]string{}, columns...), extra...) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
