package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/models"
)

// UserRepository defines the persistence operations for users and the
// addresses they own.
type UserRepository interface {
	Insert(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Update(ctx context.Context, params models.UpdateUserParams) (*models.User, error)
	Delete(ctx context.Context, id int64) error

	InsertAddress(ctx context.Context, params models.CreateAddressParams) (*models.UserAddress, error)
	ListAddresses(ctx context.Context, userID int64) ([]*models.UserAddress, error)
}

type userRepo struct {
	q db.Querier
}

// NewUserRepo returns a UserRepository backed by q.
// q can be a *db.DB or *db.Tx; both satisfy db.Querier.
func NewUserRepo(q db.Querier) UserRepository {
	return &userRepo{q: q}
}

const userColumns = `id, name, email, password, created_at, updated_at`

const (
	sqlInsertUser = `
		INSERT INTO users (name, email, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id`

	sqlGetUserByID = `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  id = $1`

	sqlGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  email = $1`

	sqlListUsers = `
		SELECT ` + userColumns + `
		FROM   users
		ORDER  BY id
		LIMIT  $1 OFFSET $2`

	sqlDeleteUser = `
		DELETE FROM users WHERE id = $1`

	sqlInsertAddress = `
		INSERT INTO user_addresses (user_id, street, city, state, zip_code, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`

	sqlListAddresses = `
		SELECT id, user_id, street, city, state, zip_code, country, created_at, updated_at
		FROM   user_addresses
		WHERE  user_id = $1
		ORDER  BY id`
)

// Insert creates a user. A taken email fails with db.ErrDuplicateKey and
// leaves the existing row untouched.
func (r *userRepo) Insert(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	ts := now()
	u := &models.User{
		Name:         params.Name,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	err := r.q.QueryRow(ctx, sqlInsertUser, NullString(params.Name), params.Email, params.PasswordHash, ts).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("repo/user: insert: %w", err)
	}
	return u, nil
}

// GetByID returns a single user by primary key.
// Returns db.ErrNotFound when no record matches.
func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.q.QueryRow(ctx, sqlGetUserByID, id))
}

// GetByEmail looks up a user by their unique email address.
// Returns db.ErrNotFound when no record matches.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.q.QueryRow(ctx, sqlGetUserByEmail, email))
}

// List returns a paginated slice of users ordered by id.
func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	rows, err := r.q.Query(ctx, sqlListUsers, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update applies a partial update to a user record. Only fields with non-nil
// pointers in params are updated.
func (r *userRepo) Update(ctx context.Context, params models.UpdateUserParams) (*models.User, error) {
	setClauses := make([]string, 0, 4)
	args := make([]any, 0, 5)
	argIdx := 1

	if params.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *params.Name)
		argIdx++
	}
	if params.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argIdx))
		args = append(args, *params.Email)
		argIdx++
	}
	if params.PasswordHash != nil {
		setClauses = append(setClauses, fmt.Sprintf("password = $%d", argIdx))
		args = append(args, *params.PasswordHash)
		argIdx++
	}
	if len(setClauses) == 0 {
		return r.GetByID(ctx, params.ID)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argIdx))
	args = append(args, now())
	argIdx++

	args = append(args, params.ID)

	query := fmt.Sprintf(`
		UPDATE users
		SET    %s
		WHERE  id = $%d`,
		strings.Join(setClauses, ", "), argIdx)

	res, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo/user: update: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, params.ID)
}

// Delete removes a user by id; the user's addresses go with it.
// Returns db.ErrNotFound if no row was deleted.
func (r *userRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.q.Exec(ctx, sqlDeleteUser, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// InsertAddress attaches an address to params.UserID. An unknown user
// fails with db.ErrForeignKeyViolation.
func (r *userRepo) InsertAddress(ctx context.Context, params models.CreateAddressParams) (*models.UserAddress, error) {
	ts := now()
	a := &models.UserAddress{
		UserID:    params.UserID,
		Street:    params.Street,
		City:      params.City,
		State:     params.State,
		ZipCode:   params.ZipCode,
		Country:   params.Country,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	err := r.q.QueryRow(ctx, sqlInsertAddress,
		params.UserID, params.Street, params.City, params.State, params.ZipCode, params.Country, ts,
	).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("repo/user: insert address: %w", err)
	}
	return a, nil
}

// ListAddresses returns every address of a user ordered by id.
func (r *userRepo) ListAddresses(ctx context.Context, userID int64) ([]*models.UserAddress, error) {
	rows, err := r.q.Query(ctx, sqlListAddresses, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := make([]*models.UserAddress, 0)
	for rows.Next() {
		a := &models.UserAddress{}
		err := rows.Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.State, &a.ZipCode, &a.Country,
			&a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("repo/user: scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// scanUser centralises the column mapping for users.
func scanUser(s scanner) (*models.User, error) {
	u := &models.User{}
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repo/user: %w", err)
	}
	return u, nil
}

var _ UserRepository = (*userRepo)(nil)
