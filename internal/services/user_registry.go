package services

import (
	"context"
	"fmt"
	"strings"

	"pickings/internal/apperrors"
	"pickings/internal/cache"
	"pickings/internal/models"
	"pickings/internal/store"
)

const userCacheKey = "users"

// UserRegistry owns the usuarios table.
type UserRegistry struct {
	store store.Store
	cache *cache.Cache[[]models.User]
	opts  Options
}

// NewUserRegistry returns a registry reading through c.
func NewUserRegistry(st store.Store, c *cache.Cache[[]models.User], opts Options) *UserRegistry {
	return &UserRegistry{store: st, cache: c, opts: opts.withDefaults("users")}
}

// List returns the registered users. An empty table yields the built-in
// Admin so there is always someone to log in as.
func (u *UserRegistry) List(ctx context.Context) ([]models.User, error) {
	users, fr := u.cache.Get(ctx, userCacheKey)
	if !fr.Hit {
		rows, err := u.store.ReadAll(ctx, store.TableUsers)
		if err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		users = make([]models.User, 0, len(rows))
		for _, row := range rows {
			if user := models.UserFromRow(row); user.Username != "" {
				users = append(users, user)
			}
		}
		u.cache.Set(ctx, userCacheKey, users)
	}

	if len(users) == 0 {
		return []models.User{{Username: models.AdminUsername, Role: models.RoleResponsable}}, nil
	}
	return users, nil
}

// Login selects a registered identity by exact name.
func (u *UserRegistry) Login(ctx context.Context, name string) (models.User, error) {
	users, err := u.List(ctx)
	if err != nil {
		return models.User{}, err
	}
	name = strings.TrimSpace(name)
	for _, user := range users {
		if user.Username == name {
			return user, nil
		}
	}
	return models.User{}, apperrors.Newf(apperrors.ErrNotFound, "Usuario %s no registrado.", name)
}

// Add registers name with role.
func (u *UserRegistry) Add(ctx context.Context, name, role string) (user models.User, err error) {
	log := u.opts.Logger.With().Str("user", name).Str("role", role).Logger()
	defer func() { logOutcome(&log, "add_user", err).Msg("user registration") }()

	name = strings.TrimSpace(name)
	role = strings.TrimSpace(role)
	if name == "" {
		return user, apperrors.New(apperrors.ErrInvalidFormat, "El nombre de usuario es obligatorio.")
	}
	if !models.IsRole(role) {
		return user, apperrors.Newf(apperrors.ErrInvalidFormat, "Rol desconocido: %s", role)
	}

	_, err = locate(ctx, u.store, store.TableUsers, store.Query{Column: models.ColUsername, Value: name}, "")
	switch {
	case err == nil:
		return user, apperrors.Newf(apperrors.ErrAlreadyExists, "El usuario %s ya existe.", name)
	case !apperrors.IsExpected(err):
		return user, err
	}

	user = models.User{Username: name, Role: role, CreatedAt: u.opts.Clock.Now()}
	header, err := u.store.Header(ctx, store.TableUsers)
	if err != nil {
		return user, fmt.Errorf("read %s header: %w", store.TableUsers, err)
	}
	if err := u.store.AppendRow(ctx, store.TableUsers, models.Ordered(header, user.Cells())); err != nil {
		return user, fmt.Errorf("append user: %w", err)
	}
	u.cache.Invalidate(ctx, userCacheKey)
	return user, nil
}

// Delete removes name. Admin can never be removed.
func (u *UserRegistry) Delete(ctx context.Context, name string) (err error) {
	log := u.opts.Logger.With().Str("user", name).Logger()
	defer func() { logOutcome(&log, "delete_user", err).Msg("user removal") }()

	name = strings.TrimSpace(name)
	if name == models.AdminUsername {
		return apperrors.New(apperrors.ErrProtected, "No se puede eliminar al usuario Admin.")
	}
	ref, err := locate(ctx, u.store, store.TableUsers, store.Query{Column: models.ColUsername, Value: name}, "Usuario no encontrado.")
	if err != nil {
		return err
	}
	if err := u.store.DeleteRow(ctx, store.TableUsers, ref); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	u.cache.Invalidate(ctx, userCacheKey)
	return nil
}

// Invalidate drops the cached user list.
func (u *UserRegistry) Invalidate(ctx context.Context) {
	u.cache.Invalidate(ctx, userCacheKey)
}
