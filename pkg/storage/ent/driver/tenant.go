package entdriver

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

var companyColumns = []string{
	"name", "password_hash", "token", "idle_timeout_ms",
	"enable_summary", "enable_facts", "enable_calendar",
	"cost_per_message", "cost_per_token",
}

// CreateCompany stores a new company.
func (ed *EntDriver) CreateCompany(ctx context.Context, c storage.Company) error {
	n, err := exec(ctx, ed.Driver, ed.builder().Insert("companies").
		Columns(companyColumns...).
		Values(
			c.Name, c.PasswordHash, c.Token, c.IdleTimeout.Milliseconds(),
			c.Flags.EnableSummary, c.Flags.EnableFacts, c.Flags.EnableCalendar,
			c.Pricing.CostPerMessage, c.Pricing.CostPerToken,
		).
		OnConflict(entsql.ConflictColumns("name"), entsql.DoNothing()))
	if err != nil {
		return storage.Wrap("create company", err)
	}
	if n == 0 {
		return storage.ConflictError{What: "company", Key: c.Name}
	}
	return nil
}

// Company returns a company by name.
func (ed *EntDriver) Company(ctx context.Context, name string) (storage.Company, error) {
	b := ed.builder()

	var (
		c     storage.Company
		found bool
	)
	err := scan(ctx, ed.Driver, b.Select(companyColumns...).From(b.Table("companies")).Where(entsql.EQ("name", name)),
		func(rows *entsql.Rows) error {
			var idleMs int64
			found = true
			err := rows.Scan(
				&c.Name, &c.PasswordHash, &c.Token, &idleMs,
				&c.Flags.EnableSummary, &c.Flags.EnableFacts, &c.Flags.EnableCalendar,
				&c.Pricing.CostPerMessage, &c.Pricing.CostPerToken,
			)
			c.IdleTimeout = time.Duration(idleMs) * time.Millisecond
			return err
		})
	if err != nil {
		return storage.Company{}, storage.Wrap("company", err)
	}
	if !found {
		return storage.Company{}, storage.NotFoundError{What: "company", Key: name}
	}
	return c, nil
}

// UpdateCompany overwrites a stored company.
func (ed *EntDriver) UpdateCompany(ctx context.Context, c storage.Company) error {
	n, err := exec(ctx, ed.Driver, ed.builder().Update("companies").
		Set("password_hash", c.PasswordHash).
		Set("token", c.Token).
		Set("idle_timeout_ms", c.IdleTimeout.Milliseconds()).
		Set("enable_summary", c.Flags.EnableSummary).
		Set("enable_facts", c.Flags.EnableFacts).
		Set("enable_calendar", c.Flags.EnableCalendar).
		Set("cost_per_message", c.Pricing.CostPerMessage).
		Set("cost_per_token", c.Pricing.CostPerToken).
		Where(entsql.EQ("name", c.Name)))
	if err != nil {
		return storage.Wrap("update company", err)
	}
	if n == 0 {
		return storage.NotFoundError{What: "company", Key: c.Name}
	}
	return nil
}

// CreateUser stores a new user.
func (ed *EntDriver) CreateUser(ctx context.Context, u storage.User) error {
	n, err := exec(ctx, ed.Driver, ed.builder().Insert("users").
		Columns("company", "name", "password_hash", "token").
		Values(u.Company, u.Name, u.PasswordHash, u.Token).
		OnConflict(entsql.ConflictColumns("company", "name"), entsql.DoNothing()))
	if err != nil {
		return storage.Wrap("create user", err)
	}
	if n == 0 {
		return storage.ConflictError{What: "user", Key: u.Name}
	}
	return nil
}

func (ed *EntDriver) selectUsers(ctx context.Context, where *entsql.Predicate) ([]storage.User, error) {
	b := ed.builder()
	sel := b.Select("company", "name", "password_hash", "token").
		From(b.Table("users")).
		OrderBy(entsql.Asc("company"), entsql.Asc("name"))
	if where != nil {
		sel.Where(where)
	}

	var users []storage.User
	err := scan(ctx, ed.Driver, sel, func(rows *entsql.Rows) error {
		var u storage.User
		if err := rows.Scan(&u.Company, &u.Name, &u.PasswordHash, &u.Token); err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	return users, err
}

// User returns a user of a company.
func (ed *EntDriver) User(ctx context.Context, company, name string) (storage.User, error) {
	users, err := ed.selectUsers(ctx, entsql.And(entsql.EQ("company", company), entsql.EQ("name", name)))
	if err != nil {
		return storage.User{}, storage.Wrap("user", err)
	}
	if len(users) == 0 {
		return storage.User{}, storage.NotFoundError{What: "user", Key: name}
	}
	return users[0], nil
}

// UsersNamed returns every user with the given name.
func (ed *EntDriver) UsersNamed(ctx context.Context, name string) ([]storage.User, error) {
	users, err := ed.selectUsers(ctx, entsql.EQ("name", name))
	return users, storage.Wrap("users named", err)
}

// UpdateUserToken records the user's current token.
func (ed *EntDriver) UpdateUserToken(ctx context.Context, company, name, token string) error {
	n, err := exec(ctx, ed.Driver, ed.builder().Update("users").
		Set("token", token).
		Where(entsql.And(entsql.EQ("company", company), entsql.EQ("name", name))))
	if err != nil {
		return storage.Wrap("update user token", err)
	}
	if n == 0 {
		return storage.NotFoundError{What: "user", Key: name}
	}
	return nil
}

// Users lists all users.
func (ed *EntDriver) Users(ctx context.Context) ([]storage.User, error) {
	users, err := ed.selectUsers(ctx, nil)
	return users, storage.Wrap("users", err)
}

// PutToken stores a token, replacing any token with the same value.
func (ed *EntDriver) PutToken(ctx context.Context, t storage.Token) error {
	b := ed.builder()
	if _, err := exec(ctx, ed.Driver, b.Delete("tokens").Where(entsql.EQ("value", t.Value))); err != nil {
		return storage.Wrap("put token", err)
	}

	_, err := exec(ctx, ed.Driver, b.Insert("tokens").
		Columns("value", "kind", "payload", "expires_at_ms").
		Values(t.Value, t.Kind, t.Payload, msOf(t.ExpiresAt)))
	return storage.Wrap("put token", err)
}

// Token returns a stored token.
func (ed *EntDriver) Token(ctx context.Context, value string) (storage.Token, error) {
	b := ed.builder()

	var (
		t     storage.Token
		found bool
	)
	err := scan(ctx, ed.Driver, b.Select("value", "kind", "payload", "expires_at_ms").
		From(b.Table("tokens")).
		Where(entsql.EQ("value", value)),
		func(rows *entsql.Rows) error {
			var expires int64
			found = true
			err := rows.Scan(&t.Value, &t.Kind, &t.Payload, &expires)
			t.ExpiresAt = timeOf(expires)
			return err
		})
	if err != nil {
		return storage.Token{}, storage.Wrap("token", err)
	}
	if !found {
		return storage.Token{}, storage.NotFoundError{What: "token"}
	}
	return t, nil
}

// DeleteToken revokes a token.
func (ed *EntDriver) DeleteToken(ctx context.Context, value string) error {
	_, err := exec(ctx, ed.Driver, ed.builder().Delete("tokens").Where(entsql.EQ("value", value)))
	return storage.Wrap("delete token", err)
}

// Touch records activity for an entity.
func (ed *EntDriver) Touch(ctx context.Context, entity stream.Entity, at time.Time) error {
	b := ed.builder()

	n, err := exec(ctx, ed.Driver, b.Update("last_seen").Set("at_ms", msOf(at)).Where(entityWhere(entity)))
	if err != nil {
		return storage.Wrap("touch", err)
	}
	if n > 0 {
		return nil
	}

	_, err = exec(ctx, ed.Driver, b.Insert("last_seen").
		Columns("company", "entity", "at_ms").
		Values(entity.Company, entity.ID, msOf(at)).
		OnConflict(entsql.ConflictColumns("company", "entity"), entsql.DoNothing()))
	return storage.Wrap("touch", err)
}

// LastSeen returns the last recorded activity.
func (ed *EntDriver) LastSeen(ctx context.Context, entity stream.Entity) (time.Time, error) {
	b := ed.builder()

	var at int64
	err := scan(ctx, ed.Driver, b.Select("at_ms").From(b.Table("last_seen")).Where(entityWhere(entity)),
		func(rows *entsql.Rows) error {
			return rows.Scan(&at)
		})
	if err != nil {
		return time.Time{}, storage.Wrap("last seen", err)
	}
	return timeOf(at), nil
}
