package application

import (
	"context"
	"errors"

	masterdata "microgrid-cloud/internal/masterdata/domain"
)

// UtilityService provides minimal utility reference-data commands.
type UtilityService struct {
	repo masterdata.UtilityRepository
}

// NewUtilityService constructs a utility service.
func NewUtilityService(repo masterdata.UtilityRepository) (*UtilityService, error) {
	if repo == nil {
		return nil, errors.New("utility service: nil repository")
	}
	return &UtilityService{repo: repo}, nil
}

// UpsertUtility validates and saves a utility.
func (s *UtilityService) UpsertUtility(ctx context.Context, utility *masterdata.Utility) error {
	if utility == nil {
		return errors.New("utility service: nil utility")
	}
	if err := utility.Validate(); err != nil {
		return err
	}
	return s.repo.Save(ctx, utility)
}

// GetUtility loads a utility by id.
func (s *UtilityService) GetUtility(ctx context.Context, id string) (*masterdata.Utility, error) {
	return s.repo.Get(ctx, id)
}
