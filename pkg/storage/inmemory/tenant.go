package inmemory

import (
	"context"
	"sort"
	"time"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// CreateCompany stores a new company.
func (d *Driver) CreateCompany(_ context.Context, c storage.Company) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.companies[c.Name]; exists {
		return storage.ConflictError{What: "company", Key: c.Name}
	}
	d.companies[c.Name] = c
	return nil
}

// Company returns a company by name.
func (d *Driver) Company(_ context.Context, name string) (storage.Company, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.companies[name]
	if !ok {
		return storage.Company{}, storage.NotFoundError{What: "company", Key: name}
	}
	return c, nil
}

// UpdateCompany overwrites a stored company.
func (d *Driver) UpdateCompany(_ context.Context, c storage.Company) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.companies[c.Name]; !ok {
		return storage.NotFoundError{What: "company", Key: c.Name}
	}
	d.companies[c.Name] = c
	return nil
}

// CreateUser stores a new user.
func (d *Driver) CreateUser(_ context.Context, u storage.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := userKey{company: u.Company, name: u.Name}
	if _, exists := d.users[k]; exists {
		return storage.ConflictError{What: "user", Key: u.Name}
	}
	d.users[k] = u
	return nil
}

// User returns a user of a company.
func (d *Driver) User(_ context.Context, company, name string) (storage.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userKey{company: company, name: name}]
	if !ok {
		return storage.User{}, storage.NotFoundError{What: "user", Key: name}
	}
	return u, nil
}

// UsersNamed returns every user with the given name.
func (d *Driver) UsersNamed(_ context.Context, name string) ([]storage.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []storage.User
	for k, u := range d.users {
		if k.name == name {
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out, nil
}

// UpdateUserToken records the user's current token.
func (d *Driver) UpdateUserToken(_ context.Context, company, name, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := userKey{company: company, name: name}
	u, ok := d.users[k]
	if !ok {
		return storage.NotFoundError{What: "user", Key: name}
	}
	u.Token = token
	d.users[k] = u
	return nil
}

// Users lists all users.
func (d *Driver) Users(_ context.Context) ([]storage.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]storage.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sortUsers(out)
	return out, nil
}

// PutToken stores a token, replacing any token with the same value.
func (d *Driver) PutToken(_ context.Context, t storage.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tokens[t.Value] = t
	return nil
}

// Token returns a stored token.
func (d *Driver) Token(_ context.Context, value string) (storage.Token, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tokens[value]
	if !ok {
		return storage.Token{}, storage.NotFoundError{What: "token"}
	}
	return t, nil
}

// DeleteToken revokes a token.
func (d *Driver) DeleteToken(_ context.Context, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.tokens, value)
	return nil
}

// Touch records activity for an entity.
func (d *Driver) Touch(_ context.Context, entity stream.Entity, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastSeen[entity] = at.UTC()
	return nil
}

// LastSeen returns the last recorded activity.
func (d *Driver) LastSeen(_ context.Context, entity stream.Entity) (time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.lastSeen[entity], nil
}

func sortUsers(users []storage.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Company != users[j].Company {
			return users[i].Company < users[j].Company
		}
		return users[i].Name < users[j].Name
	})
}
