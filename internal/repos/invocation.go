package repos

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/lmpstore-backend/internal/pkg/dbctx"
	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/types"
)

// InvocationRepo is the append-only invocation ledger together with the
// results store and the consumes graph.
type InvocationRepo interface {
	// Create inserts the invocation with conflict-tolerance on id.
	// Returns false when the id was already written.
	Create(dbc dbctx.Context, invocation *types.Invocation) (bool, error)
	GetByID(dbc dbctx.Context, id string) (*types.Invocation, error)
	ListByUnit(dbc dbctx.Context, unitID string) ([]*types.Invocation, error)
	CountByUnit(dbc dbctx.Context, unitID string) (int64, error)
	AddResults(dbc dbctx.Context, results []*types.InvocationResult) error
	GetResults(dbc dbctx.Context, invocationID string) ([]*types.InvocationResult, error)
	AddConsumes(dbc dbctx.Context, invocationID string, consumedIDs []string) error
	GetConsumes(dbc dbctx.Context, invocationID string) ([]string, error)
}

type invocationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInvocationRepo(db *gorm.DB, baseLog *logger.Logger) InvocationRepo {
	repoLog := baseLog.With("repo", "InvocationRepo")
	return &invocationRepo{db: db, log: repoLog}
}

func (r *invocationRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *invocationRepo) Create(dbc dbctx.Context, invocation *types.Invocation) (bool, error) {
	res := r.handle(dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(invocation)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *invocationRepo) GetByID(dbc dbctx.Context, id string) (*types.Invocation, error) {
	var results []*types.Invocation
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

func (r *invocationRepo) ListByUnit(dbc dbctx.Context, unitID string) ([]*types.Invocation, error) {
	var results []*types.Invocation
	if unitID == "" {
		return results, nil
	}
	if err := r.handle(dbc).
		Where("unit_id = ?", unitID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *invocationRepo) CountByUnit(dbc dbctx.Context, unitID string) (int64, error) {
	var count int64
	if unitID == "" {
		return 0, nil
	}
	if err := r.handle(dbc).
		Model(&types.Invocation{}).
		Where("unit_id = ?", unitID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *invocationRepo) AddResults(dbc dbctx.Context, results []*types.InvocationResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.handle(dbc).Create(&results).Error
}

func (r *invocationRepo) GetResults(dbc dbctx.Context, invocationID string) ([]*types.InvocationResult, error) {
	var results []*types.InvocationResult
	if invocationID == "" {
		return results, nil
	}
	if err := r.handle(dbc).
		Where("invocation_id = ?", invocationID).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *invocationRepo) AddConsumes(dbc dbctx.Context, invocationID string, consumedIDs []string) error {
	if len(consumedIDs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(consumedIDs))
	edges := make([]types.ConsumesEdge, 0, len(consumedIDs))
	for _, consumedID := range consumedIDs {
		if consumedID == "" {
			continue
		}
		if _, ok := seen[consumedID]; ok {
			continue
		}
		seen[consumedID] = struct{}{}
		edges = append(edges, types.ConsumesEdge{InvocationID: invocationID, ConsumedID: consumedID})
	}
	if len(edges) == 0 {
		return nil
	}
	return r.handle(dbc).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edges).Error
}

func (r *invocationRepo) GetConsumes(dbc dbctx.Context, invocationID string) ([]string, error) {
	var consumedIDs []string
	if invocationID == "" {
		return consumedIDs, nil
	}
	if err := r.handle(dbc).
		Model(&types.ConsumesEdge{}).
		Where("invocation_id = ?", invocationID).
		Order("consumed_id ASC").
		Pluck("consumed_id", &consumedIDs).Error; err != nil {
		return nil, err
	}
	return consumedIDs, nil
}
