package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/lmpstore-backend/internal/identity"
	"github.com/yungbote/lmpstore-backend/internal/pkg/apperr"
	"github.com/yungbote/lmpstore-backend/internal/pkg/dbctx"
	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/realtime"
	"github.com/yungbote/lmpstore-backend/internal/realtime/bus"
	"github.com/yungbote/lmpstore-backend/internal/repos"
	"github.com/yungbote/lmpstore-backend/internal/types"
)

// WriteUnitInput is the wire form of a program unit definition. ID and
// VersionNumber are optional: a missing ID is derived from the content
// key, a missing VersionNumber from the version ledger.
type WriteUnitInput struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Source             string          `json:"source"`
	Dependencies       string          `json:"dependencies"`
	ConfigParams       datatypes.JSON  `json:"config_params"`
	IsExecutable       bool            `json:"is_executable"`
	VersionNumber      *int            `json:"version_number"`
	InitialGlobalState datatypes.JSON  `json:"initial_global_state"`
	InitialFreeState   datatypes.JSON  `json:"initial_free_state"`
	CommitMessage      *string         `json:"commit_message"`
	CreatedAt          *types.FlexTime `json:"created_at"`
}

type WriteInvocationInput struct {
	ID          string          `json:"id"`
	UnitID      string          `json:"unit_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	CreatedAt   *types.FlexTime `json:"created_at"`
}

type ResultInput struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// UnitView is a ProgramUnit plus its derived invocation count. The count
// is never stored; it is computed from the ledger on every read.
type UnitView struct {
	types.ProgramUnit
	NumInvocations int64 `json:"num_invocations"`
}

type InvocationView struct {
	types.Invocation
	Results  []*types.InvocationResult `json:"results"`
	Consumes []string                  `json:"consumes"`
}

// StoreService is the write coordinator and query facade over the
// version ledger, the invocation ledger and their graphs. Every write
// runs as one transaction; the publisher fires only after commit.
type StoreService interface {
	WriteUnit(ctx context.Context, input WriteUnitInput, uses []string) (*types.ProgramUnit, error)
	WriteInvocation(ctx context.Context, input WriteInvocationInput, results []ResultInput, consumes []string) error

	GetUnit(ctx context.Context, id string) (*UnitView, error)
	GetLatestUnit(ctx context.Context, name string) (*UnitView, error)
	ListUnitVersions(ctx context.Context, name string) ([]*types.ProgramUnit, error)
	GetUnitUses(ctx context.Context, id string) ([]string, error)
	GetInvocation(ctx context.Context, id string) (*InvocationView, error)
	ListInvocationsByUnit(ctx context.Context, unitID string) ([]*InvocationView, error)
}

type storeService struct {
	db          *gorm.DB
	log         *logger.Logger
	units       repos.ProgramUnitRepo
	invocations repos.InvocationRepo
	bus         bus.Bus
}

func NewStoreService(db *gorm.DB, log *logger.Logger, units repos.ProgramUnitRepo, invocations repos.InvocationRepo, eventBus bus.Bus) StoreService {
	serviceLog := log.With("service", "StoreService")
	return &storeService{
		db:          db,
		log:         serviceLog,
		units:       units,
		invocations: invocations,
		bus:         eventBus,
	}
}

func (s *storeService) WriteUnit(ctx context.Context, input WriteUnitInput, uses []string) (*types.ProgramUnit, error) {
	if input.Name == "" {
		return nil, apperr.Validationf("missing required field %q", "name")
	}
	if input.Source == "" {
		return nil, apperr.Validationf("missing required field %q", "source")
	}
	if input.VersionNumber != nil && *input.VersionNumber <= 0 {
		return nil, apperr.Validationf("version_number must be positive, got %d", *input.VersionNumber)
	}

	id := input.ID
	if id == "" {
		key, err := identity.ContentKey(input.Source, input.Dependencies, input.ConfigParams)
		if err != nil {
			return nil, apperr.Validationf("derive content key: %v", err)
		}
		id = key
	}

	createdAt := time.Now().UTC()
	if input.CreatedAt != nil {
		createdAt = input.CreatedAt.UTC()
	}

	var out *types.ProgramUnit
	var written bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		// Idempotent replay: an existing id is a success no-op and the
		// stored row stays untouched.
		existing, err := s.units.GetByID(dbc, id)
		if err != nil {
			return fmt.Errorf("lookup unit %q: %w", id, err)
		}
		if existing != nil {
			out = existing
			return nil
		}

		unit := &types.ProgramUnit{
			ID:                 id,
			Name:               input.Name,
			Source:             input.Source,
			Dependencies:       input.Dependencies,
			ConfigParams:       input.ConfigParams,
			IsExecutable:       input.IsExecutable,
			InitialGlobalState: input.InitialGlobalState,
			InitialFreeState:   input.InitialFreeState,
			CommitMessage:      input.CommitMessage,
			CreatedAt:          createdAt,
		}
		if input.VersionNumber != nil {
			unit.VersionNumber = *input.VersionNumber
		} else {
			maxVersion, err := s.units.MaxVersionNumber(dbc, input.Name)
			if err != nil {
				return fmt.Errorf("derive version number for %q: %w", input.Name, err)
			}
			unit.VersionNumber = maxVersion + 1
		}

		created, err := s.units.Create(dbc, unit)
		if err != nil {
			return fmt.Errorf("insert unit %q: %w", id, err)
		}
		if !created {
			// A concurrent writer won the insert race. Treat as replay.
			winner, err := s.units.GetByID(dbc, id)
			if err != nil {
				return fmt.Errorf("refetch unit %q after conflict: %w", id, err)
			}
			if winner == nil {
				return fmt.Errorf("unit %q missing after insert conflict", id)
			}
			out = winner
			return nil
		}

		if err := s.units.AddUses(dbc, unit.ID, uses); err != nil {
			return fmt.Errorf("record uses edges for %q: %w", id, err)
		}
		out = unit
		written = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if written {
		s.publish(ctx, realtime.Event{
			ID:        uuid.NewString(),
			Type:      realtime.EventUnitWritten,
			UnitID:    out.ID,
			Name:      out.Name,
			CreatedAt: time.Now().UTC(),
		})
	}
	return out, nil
}

func (s *storeService) WriteInvocation(ctx context.Context, input WriteInvocationInput, results []ResultInput, consumes []string) error {
	if input.UnitID == "" {
		return apperr.Validationf("missing required field %q", "unit_id")
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := time.Now().UTC()
	if input.CreatedAt != nil {
		createdAt = input.CreatedAt.UTC()
	}

	var written bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		ok, err := s.units.Exists(dbc, input.UnitID)
		if err != nil {
			return fmt.Errorf("resolve unit %q: %w", input.UnitID, err)
		}
		if !ok {
			return apperr.ReferentialIntegrityf("invocation references unknown unit %q", input.UnitID)
		}

		invocation := &types.Invocation{
			ID:          id,
			UnitID:      input.UnitID,
			Name:        input.Name,
			Description: input.Description,
			CreatedAt:   createdAt,
		}
		created, err := s.invocations.Create(dbc, invocation)
		if err != nil {
			return fmt.Errorf("insert invocation %q: %w", id, err)
		}
		if !created {
			// Idempotent replay: the owning invocation, its results and
			// edges were all written by the earlier call.
			return nil
		}

		rows := make([]*types.InvocationResult, 0, len(results))
		for _, res := range results {
			resultID := res.ID
			if resultID == "" {
				resultID = uuid.NewString()
			}
			rows = append(rows, &types.InvocationResult{
				ID:           resultID,
				InvocationID: id,
				Name:         res.Name,
				Description:  res.Description,
			})
		}
		if err := s.invocations.AddResults(dbc, rows); err != nil {
			return fmt.Errorf("attach results to %q: %w", id, err)
		}
		if err := s.invocations.AddConsumes(dbc, id, consumes); err != nil {
			return fmt.Errorf("record consumes edges for %q: %w", id, err)
		}
		written = true
		return nil
	})
	if err != nil {
		return err
	}

	if written {
		s.publish(ctx, realtime.Event{
			ID:           uuid.NewString(),
			Type:         realtime.EventInvocationWritten,
			UnitID:       input.UnitID,
			InvocationID: id,
			Name:         input.Name,
			CreatedAt:    time.Now().UTC(),
		})
	}
	return nil
}

func (s *storeService) GetUnit(ctx context.Context, id string) (*UnitView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	unit, err := s.units.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, apperr.ErrNotFound
	}
	return s.unitView(dbc, unit)
}

func (s *storeService) GetLatestUnit(ctx context.Context, name string) (*UnitView, error) {
	if name == "" {
		return nil, apperr.Validationf("missing required query param %q", "name")
	}
	dbc := dbctx.Context{Ctx: ctx}
	unit, err := s.units.GetLatestByName(dbc, name)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, apperr.ErrNotFound
	}
	return s.unitView(dbc, unit)
}

func (s *storeService) ListUnitVersions(ctx context.Context, name string) ([]*types.ProgramUnit, error) {
	if name == "" {
		return nil, apperr.Validationf("missing required query param %q", "name")
	}
	return s.units.ListByName(dbctx.Context{Ctx: ctx}, name)
}

func (s *storeService) GetUnitUses(ctx context.Context, id string) ([]string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ok, err := s.units.Exists(dbc, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	usesIDs, err := s.units.GetUses(dbc, id)
	if err != nil {
		return nil, err
	}
	if usesIDs == nil {
		usesIDs = []string{}
	}
	return usesIDs, nil
}

func (s *storeService) GetInvocation(ctx context.Context, id string) (*InvocationView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	invocation, err := s.invocations.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if invocation == nil {
		return nil, apperr.ErrNotFound
	}
	return s.invocationView(dbc, invocation)
}

func (s *storeService) ListInvocationsByUnit(ctx context.Context, unitID string) ([]*InvocationView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ok, err := s.units.Exists(dbc, unitID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	invocations, err := s.invocations.ListByUnit(dbc, unitID)
	if err != nil {
		return nil, err
	}
	views := make([]*InvocationView, 0, len(invocations))
	for _, invocation := range invocations {
		view, err := s.invocationView(dbc, invocation)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *storeService) unitView(dbc dbctx.Context, unit *types.ProgramUnit) (*UnitView, error) {
	count, err := s.invocations.CountByUnit(dbc, unit.ID)
	if err != nil {
		return nil, fmt.Errorf("count invocations for %q: %w", unit.ID, err)
	}
	return &UnitView{ProgramUnit: *unit, NumInvocations: count}, nil
}

func (s *storeService) invocationView(dbc dbctx.Context, invocation *types.Invocation) (*InvocationView, error) {
	results, err := s.invocations.GetResults(dbc, invocation.ID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []*types.InvocationResult{}
	}
	consumes, err := s.invocations.GetConsumes(dbc, invocation.ID)
	if err != nil {
		return nil, err
	}
	if consumes == nil {
		consumes = []string{}
	}
	return &InvocationView{Invocation: *invocation, Results: results, Consumes: consumes}, nil
}

func (s *storeService) publish(ctx context.Context, ev realtime.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("Event publish failed", "event_type", ev.Type, "error", err)
	}
}
