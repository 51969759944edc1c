package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// memStore is an in-memory Store that enforces the same uniqueness rules
// as the accounts table: subject id across all rows, lower(email) across
// live rows.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.Account

	// afterLookup runs after GetBySubjectID has computed its result and
	// released the lock.
	afterLookup func()
	// beforeInsert runs before Insert takes the lock.
	beforeInsert func()
	insertErr    error
	lookupErr    error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{nextID: 1}
}

func notFound() error {
	return sserr.New(sserr.CodeNotFoundAccount, "account not found")
}

func clone(a *models.Account) *models.Account {
	c := *a
	return &c
}

func (s *memStore) live(pred func(*models.Account) bool) *models.Account {
	for _, a := range s.rows {
		if !a.IsDeleted && pred(a) {
			return a
		}
	}
	return nil
}

func (s *memStore) GetBySubjectID(_ context.Context, subjectID string) (*models.Account, error) {
	s.mu.Lock()
	var out *models.Account
	err := s.lookupErr
	if err == nil {
		if a := s.live(func(a *models.Account) bool { return a.SubjectID == subjectID }); a != nil {
			out = clone(a)
		} else {
			err = notFound()
		}
	}
	hook := s.afterLookup
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, err
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.live(func(a *models.Account) bool { return strings.EqualFold(a.Email, email) }); a != nil {
		return clone(a), nil
	}
	return nil, notFound()
}

func (s *memStore) GetByID(_ context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.live(func(a *models.Account) bool { return a.ID == id }); a != nil {
		return clone(a), nil
	}
	return nil, notFound()
}

func (s *memStore) Insert(_ context.Context, na models.NewAccount) (*models.Account, error) {
	if s.beforeInsert != nil {
		s.beforeInsert()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	for _, a := range s.rows {
		if a.SubjectID == na.SubjectID {
			return nil, sserr.New(sserr.CodeConflictAlreadyExists, "duplicate subject").
				WithDetail("constraint", "accounts_clerk_user_id_key")
		}
		if !a.IsDeleted && strings.EqualFold(a.Email, na.Email) {
			return nil, sserr.New(sserr.CodeConflictAlreadyExists, "duplicate email").
				WithDetail("constraint", "accounts_email_live_key")
		}
	}
	now := time.Now().UTC()
	a := &models.Account{
		ID:              s.nextID,
		SubjectID:       na.SubjectID,
		Email:           na.Email,
		Nickname:        na.Nickname,
		ProfileImageURL: na.ProfileImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.nextID++
	s.rows = append(s.rows, a)
	return clone(a), nil
}

func (s *memStore) UpdateFromProvider(_ context.Context, subjectID string, u models.ProviderUpdate) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.live(func(a *models.Account) bool { return a.SubjectID == subjectID })
	if a == nil {
		return nil, notFound()
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.Nickname != nil {
		a.Nickname = *u.Nickname
	}
	if u.ProfileImageURL != nil {
		a.ProfileImageURL = u.ProfileImageURL
	}
	a.UpdatedAt = time.Now().UTC()
	return clone(a), nil
}

func (s *memStore) UpdateProfile(_ context.Context, id int64, u models.ProfileUpdate) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.live(func(a *models.Account) bool { return a.ID == id })
	if a == nil {
		return nil, notFound()
	}
	if u.Nickname != nil {
		a.Nickname = *u.Nickname
	}
	if u.ProfileImageURL != nil {
		if *u.ProfileImageURL == "" {
			a.ProfileImageURL = nil
		} else {
			img := *u.ProfileImageURL
			a.ProfileImageURL = &img
		}
	}
	return clone(a), nil
}

func (s *memStore) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.live(func(a *models.Account) bool { return a.ID == id })
	if a == nil {
		return notFound()
	}
	a.LastLoginAt = &at
	return nil
}

func (s *memStore) SoftDelete(_ context.Context, subjectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.live(func(a *models.Account) bool { return a.SubjectID == subjectID })
	if a == nil {
		return false, nil
	}
	a.IsDeleted = true
	return true, nil
}

// all returns a snapshot of every row, deleted ones included.
func (s *memStore) all() []models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Account, len(s.rows))
	for i, a := range s.rows {
		out[i] = *a
	}
	return out
}

// seed inserts a live account directly.
func (s *memStore) seed(sub, email, nick string) *models.Account {
	a, err := s.Insert(context.Background(), models.NewAccount{SubjectID: sub, Email: email, Nickname: nick})
	if err != nil {
		panic(err)
	}
	return a
}
