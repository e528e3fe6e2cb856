package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("user not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Upsert writes a full profile. Used by the profile sync and tests; presence
// columns are left untouched on conflict.
func (r *Repo) Upsert(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).
		Where(User{UID: u.UID}).
		Assign(map[string]any{
			"name":              u.Name,
			"role":              u.Role,
			"department":        u.Department,
			"email":             u.Email,
			"profile_image_url": u.ProfileImageURL,
		}).
		FirstOrCreate(u).Error
}

func (r *Repo) Get(ctx context.Context, uid string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Exists reports whether uid has a profile.
func (r *Repo) Exists(ctx context.Context, uid string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&User{}).Where("uid = ?", uid).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// GetMany resolves ids in one query. Ids without a profile end up in
// notFound; blank and duplicate ids are ignored.
func (r *Repo) GetMany(ctx context.Context, ids []string) (users map[string]*User, notFound map[string]struct{}, err error) {
	want := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		want = append(want, id)
	}

	users = make(map[string]*User, len(want))
	notFound = make(map[string]struct{})
	if len(want) == 0 {
		return users, notFound, nil
	}

	var rows []User
	if err := r.db.WithContext(ctx).Where("uid IN ?", want).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	for i := range rows {
		users[rows[i].UID] = &rows[i]
	}
	for _, id := range want {
		if _, ok := users[id]; !ok {
			notFound[id] = struct{}{}
		}
	}
	return users, notFound, nil
}

// List returns every user ordered by name.
func (r *Repo) List(ctx context.Context) ([]User, error) {
	var rows []User
	if err := r.db.WithContext(ctx).Order("name ASC").Order("uid ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GroupByDepartment buckets the directory by department. Users without a
// department land under "".
func (r *Repo) GroupByDepartment(ctx context.Context) (map[string][]User, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByDepartment(rows), nil
}

func GroupByDepartment(users []User) map[string][]User {
	out := make(map[string][]User)
	for _, u := range users {
		out[u.Department] = append(out[u.Department], u)
	}
	for dept := range out {
		list := out[dept]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	return out
}

func (r *Repo) SetTyping(ctx context.Context, uid string, typing bool) error {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("uid = ?", uid).
		Update("is_typing", typing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.notFoundUnlessExists(ctx, uid)
	}
	return nil
}

// SetPresence flips the online flag; going offline stamps last_seen.
func (r *Repo) SetPresence(ctx context.Context, uid string, online bool) error {
	updates := map[string]any{"is_online": online}
	if !online {
		updates["last_seen"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("uid = ?", uid).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.notFoundUnlessExists(ctx, uid)
	}
	return nil
}

// mysql reports zero affected rows when the value did not change.
func (r *Repo) notFoundUnlessExists(ctx context.Context, uid string) error {
	ok, err := r.Exists(ctx, uid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
