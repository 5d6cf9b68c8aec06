package accounts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/config"
)

// StaticStore serves accounts declared in the configuration file.
type StaticStore struct {
	byID map[int64]Account
}

// NewStaticStore indexes the configured accounts.
func NewStaticStore(list []config.StaticAccount) (*StaticStore, error) {
	s := &StaticStore{byID: make(map[int64]Account, len(list))}
	for _, a := range list {
		acct := Account{
			ID:             a.ID,
			ClientID:       a.ClientID,
			SecretName:     a.SecretName,
			AssigneeUserID: a.AssigneeUserID,
		}
		if a.GuidelinePct != "" {
			pct, err := decimal.NewFromString(a.GuidelinePct)
			if err != nil {
				return nil, fmt.Errorf("account %d guideline_pct: %w", a.ID, err)
			}
			acct.GuidelinePct = &pct
		}
		s.byID[a.ID] = acct
	}
	return s, nil
}

// Account implements Store.
func (s *StaticStore) Account(_ context.Context, id int64) (Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return a, nil
}
