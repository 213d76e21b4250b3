package repos

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/lmpstore-backend/internal/pkg/dbctx"
	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/types"
)

// ProgramUnitRepo is the version ledger plus the uses graph.
type ProgramUnitRepo interface {
	// Create inserts the unit with conflict-tolerance on id. Returns
	// false when another row with the same id already exists.
	Create(dbc dbctx.Context, unit *types.ProgramUnit) (bool, error)
	// GetByID returns nil (no error) when the id is unknown.
	GetByID(dbc dbctx.Context, id string) (*types.ProgramUnit, error)
	GetLatestByName(dbc dbctx.Context, name string) (*types.ProgramUnit, error)
	ListByName(dbc dbctx.Context, name string) ([]*types.ProgramUnit, error)
	Exists(dbc dbctx.Context, id string) (bool, error)
	// MaxVersionNumber locks the highest-version row of the name for the
	// rest of the transaction, so concurrent writers serialize on version
	// derivation. Returns 0 when the name has no versions yet.
	MaxVersionNumber(dbc dbctx.Context, name string) (int, error)
	AddUses(dbc dbctx.Context, unitID string, usesIDs []string) error
	GetUses(dbc dbctx.Context, unitID string) ([]string, error)
}

type programUnitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramUnitRepo(db *gorm.DB, baseLog *logger.Logger) ProgramUnitRepo {
	repoLog := baseLog.With("repo", "ProgramUnitRepo")
	return &programUnitRepo{db: db, log: repoLog}
}

func (r *programUnitRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *programUnitRepo) Create(dbc dbctx.Context, unit *types.ProgramUnit) (bool, error) {
	res := r.handle(dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(unit)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *programUnitRepo) GetByID(dbc dbctx.Context, id string) (*types.ProgramUnit, error) {
	var results []*types.ProgramUnit
	if id == "" {
		return nil, nil
	}
	if err := r.handle(dbc).
		Where("id = ?", id).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *programUnitRepo) GetLatestByName(dbc dbctx.Context, name string) (*types.ProgramUnit, error) {
	var results []*types.ProgramUnit
	if name == "" {
		return nil, nil
	}
	if err := r.handle(dbc).
		Where("name = ?", name).
		Order("version_number DESC").
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *programUnitRepo) ListByName(dbc dbctx.Context, name string) ([]*types.ProgramUnit, error) {
	var results []*types.ProgramUnit
	if name == "" {
		return results, nil
	}
	if err := r.handle(dbc).
		Where("name = ?", name).
		Order("version_number ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *programUnitRepo) Exists(dbc dbctx.Context, id string) (bool, error) {
	found, err := r.GetByID(dbc, id)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

func (r *programUnitRepo) MaxVersionNumber(dbc dbctx.Context, name string) (int, error) {
	var versions []int
	if err := r.handle(dbc).
		Model(&types.ProgramUnit{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", name).
		Order("version_number DESC").
		Limit(1).
		Pluck("version_number", &versions).Error; err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[0], nil
}

func (r *programUnitRepo) AddUses(dbc dbctx.Context, unitID string, usesIDs []string) error {
	if len(usesIDs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(usesIDs))
	edges := make([]types.UsesEdge, 0, len(usesIDs))
	for _, usesID := range usesIDs {
		if usesID == "" {
			continue
		}
		if _, ok := seen[usesID]; ok {
			continue
		}
		seen[usesID] = struct{}{}
		edges = append(edges, types.UsesEdge{UnitID: unitID, UsesID: usesID})
	}
	if len(edges) == 0 {
		return nil
	}
	return r.handle(dbc).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edges).Error
}

func (r *programUnitRepo) GetUses(dbc dbctx.Context, unitID string) ([]string, error) {
	var usesIDs []string
	if unitID == "" {
		return usesIDs, nil
	}
	if err := r.handle(dbc).
		Model(&types.UsesEdge{}).
		Where("unit_id = ?", unitID).
		Order("uses_id ASC").
		Pluck("uses_id", &usesIDs).Error; err != nil {
		return nil, err
	}
	return usesIDs, nil
}
