package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/lmpstore-backend/internal/db"
	"github.com/yungbote/lmpstore-backend/internal/pkg/apperr"
	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/realtime"
	"github.com/yungbote/lmpstore-backend/internal/realtime/bus"
	"github.com/yungbote/lmpstore-backend/internal/repos"
	"github.com/yungbote/lmpstore-backend/internal/types"
)

type recordingBus struct {
	mu     sync.Mutex
	events []realtime.Event
	fail   bool
}

func (b *recordingBus) Publish(ctx context.Context, msg realtime.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("broker unreachable")
	}
	b.events = append(b.events, msg)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func newTestService(t *testing.T) (StoreService, *gorm.DB, *recordingBus) {
	t.Helper()
	gdb, err := db.NewSQLiteMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	log := logger.NewNop()
	rec := &recordingBus{}
	svc := NewStoreService(gdb, log, repos.NewProgramUnitRepo(gdb, log), repos.NewInvocationRepo(gdb, log), rec)
	return svc, gdb, rec
}

func flexTime(t *testing.T, raw string) *types.FlexTime {
	t.Helper()
	var ft types.FlexTime
	if err := json.Unmarshal([]byte(raw), &ft); err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return &ft
}

func unitInput(id, name string) WriteUnitInput {
	return WriteUnitInput{
		ID:           id,
		Name:         name,
		Source:       "def test_function(): pass",
		Dependencies: `["dep1", "dep2"]`,
	}
}

func TestWriteUnit_IdempotentReplay(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.WriteUnit(ctx, unitInput("u1", "Test"), nil)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if first.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", first.VersionNumber)
	}

	replay := unitInput("u1", "Test")
	msg := "rewritten"
	replay.CommitMessage = &msg
	replay.CreatedAt = flexTime(t, `"1999-01-01T00:00:00Z"`)
	second, err := svc.WriteUnit(ctx, replay, nil)
	if err != nil {
		t.Fatalf("replay write: %v", err)
	}
	if second.VersionNumber != first.VersionNumber {
		t.Fatalf("replay changed version_number: %d vs %d", second.VersionNumber, first.VersionNumber)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("replay changed created_at: %v vs %v", second.CreatedAt, first.CreatedAt)
	}
	if second.CommitMessage != nil {
		t.Fatalf("replay overwrote commit_message")
	}

	var count int64
	if err := gdb.Model(&types.ProgramUnit{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored row, got %d", count)
	}
}

func TestWriteUnit_MonotonicVersionsSequential(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		unit, err := svc.WriteUnit(ctx, unitInput(fmt.Sprintf("u%d", i), "Versioned"), nil)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if unit.VersionNumber != i {
			t.Fatalf("write %d got version %d", i, unit.VersionNumber)
		}
	}
}

func TestWriteUnit_MonotonicVersionsConcurrent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Bootstrap the name so every concurrent writer derives from an
	// existing, lockable max row.
	if _, err := svc.WriteUnit(ctx, unitInput("seed", "Concurrent"), nil); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.WriteUnit(ctx, unitInput(fmt.Sprintf("c%d", i), "Concurrent"), nil)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent write %d: %v", i, err)
		}
	}

	units, err := svc.ListUnitVersions(ctx, "Concurrent")
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	var got []int
	for _, u := range units {
		got = append(got, u.VersionNumber)
	}
	sort.Ints(got)
	if len(got) != n+1 {
		t.Fatalf("expected %d versions, got %d", n+1, len(got))
	}
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("expected versions {1..%d}, got %v", n+1, got)
		}
	}
}

func TestWriteUnit_DerivesIDFromContentKey(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	ctx := context.Background()

	input := unitInput("", "Keyed")
	input.ConfigParams = []byte(`{"param1":"value1"}`)
	first, err := svc.WriteUnit(ctx, input, nil)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if len(first.ID) != 64 {
		t.Fatalf("expected derived hex id, got %q", first.ID)
	}

	second, err := svc.WriteUnit(ctx, input, nil)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("identical definitions got different ids: %q vs %q", first.ID, second.ID)
	}
	var count int64
	if err := gdb.Model(&types.ProgramUnit{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("identical definitions stored twice")
	}
}

func TestWriteUnit_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	missingName := unitInput("v1", "")
	if _, err := svc.WriteUnit(ctx, missingName, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}

	missingSource := unitInput("v2", "Test")
	missingSource.Source = ""
	if _, err := svc.WriteUnit(ctx, missingSource, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for missing source, got %v", err)
	}

	badVersion := unitInput("v3", "Test")
	zero := 0
	badVersion.VersionNumber = &zero
	if _, err := svc.WriteUnit(ctx, badVersion, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for version_number 0, got %v", err)
	}
}

func TestWriteUnit_UsesEdgesAreASet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteUnit(ctx, unitInput("u1", "Edges"), []string{"used_b", "used_a", "used_b"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	usesIDs, err := svc.GetUnitUses(ctx, "u1")
	if err != nil {
		t.Fatalf("get uses: %v", err)
	}
	if len(usesIDs) != 2 || usesIDs[0] != "used_a" || usesIDs[1] != "used_b" {
		t.Fatalf("expected deduped edge set [used_a used_b], got %v", usesIDs)
	}
}

func TestWriteUnit_TimestampFormsEquivalent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	fromString := unitInput("ts1", "Stamped")
	fromString.CreatedAt = flexTime(t, `"2024-01-01T00:00:00Z"`)
	fromNumber := unitInput("ts2", "Stamped")
	fromNumber.CreatedAt = flexTime(t, `1704067200`)

	a, err := svc.WriteUnit(ctx, fromString, nil)
	if err != nil {
		t.Fatalf("string form write: %v", err)
	}
	b, err := svc.WriteUnit(ctx, fromNumber, nil)
	if err != nil {
		t.Fatalf("number form write: %v", err)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		t.Fatalf("equivalent timestamps stored differently: %v vs %v", a.CreatedAt, b.CreatedAt)
	}

	stored, err := svc.GetUnit(ctx, "ts1")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !stored.CreatedAt.Equal(want) {
		t.Fatalf("round-trip changed created_at: %v", stored.CreatedAt)
	}
}

func TestWriteInvocation_ReferentialIntegrity(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	ctx := context.Background()

	err := svc.WriteInvocation(ctx, WriteInvocationInput{ID: "i1", UnitID: "never_written", Name: "Test"}, []ResultInput{{ID: "r1", Name: "Result"}}, []string{"other"})
	if !errors.Is(err, apperr.ErrReferentialIntegrity) {
		t.Fatalf("expected referential integrity error, got %v", err)
	}

	for _, model := range []any{&types.Invocation{}, &types.InvocationResult{}, &types.ConsumesEdge{}} {
		var count int64
		if err := gdb.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count %T: %v", model, err)
		}
		if count != 0 {
			t.Fatalf("rejected write left %d %T rows behind", count, model)
		}
	}
}

func TestWriteInvocation_AggregateCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteUnit(ctx, unitInput("u1", "Counted"), nil); err != nil {
		t.Fatalf("write unit: %v", err)
	}

	view, err := svc.GetUnit(ctx, "u1")
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	if view.NumInvocations != 0 {
		t.Fatalf("expected 0 invocations, got %d", view.NumInvocations)
	}

	const k = 3
	for i := 0; i < k; i++ {
		input := WriteInvocationInput{ID: fmt.Sprintf("i%d", i), UnitID: "u1", Name: "Run"}
		if err := svc.WriteInvocation(ctx, input, nil, nil); err != nil {
			t.Fatalf("write invocation %d: %v", i, err)
		}
	}

	view, err = svc.GetUnit(ctx, "u1")
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	if view.NumInvocations != k {
		t.Fatalf("expected %d invocations, got %d", k, view.NumInvocations)
	}
}

func TestWriteInvocation_AttachesResultsAndConsumes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteUnit(ctx, unitInput("u1", "Attached"), nil); err != nil {
		t.Fatalf("write unit: %v", err)
	}
	desc := "This is a test result"
	err := svc.WriteInvocation(ctx,
		WriteInvocationInput{ID: "i1", UnitID: "u1", Name: "Test Invocation"},
		[]ResultInput{{ID: "r1", Name: "Test Result", Description: &desc}},
		[]string{"i_b", "i_a", "i_b"},
	)
	if err != nil {
		t.Fatalf("write invocation: %v", err)
	}

	view, err := svc.GetInvocation(ctx, "i1")
	if err != nil {
		t.Fatalf("read invocation: %v", err)
	}
	if len(view.Results) != 1 || view.Results[0].ID != "r1" || view.Results[0].InvocationID != "i1" {
		t.Fatalf("unexpected results: %+v", view.Results)
	}
	if len(view.Consumes) != 2 || view.Consumes[0] != "i_a" || view.Consumes[1] != "i_b" {
		t.Fatalf("expected deduped consumes [i_a i_b], got %v", view.Consumes)
	}
}

func TestWriteInvocation_IdempotentReplay(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteUnit(ctx, unitInput("u1", "Replayed"), nil); err != nil {
		t.Fatalf("write unit: %v", err)
	}
	input := WriteInvocationInput{ID: "i1", UnitID: "u1", Name: "Run"}
	if err := svc.WriteInvocation(ctx, input, []ResultInput{{ID: "r1", Name: "R"}}, nil); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := svc.WriteInvocation(ctx, input, []ResultInput{{ID: "r2", Name: "R2"}}, nil); err != nil {
		t.Fatalf("replay write: %v", err)
	}

	var invocations, results int64
	if err := gdb.Model(&types.Invocation{}).Count(&invocations).Error; err != nil {
		t.Fatalf("count invocations: %v", err)
	}
	if err := gdb.Model(&types.InvocationResult{}).Count(&results).Error; err != nil {
		t.Fatalf("count results: %v", err)
	}
	if invocations != 1 || results != 1 {
		t.Fatalf("replay duplicated rows: %d invocations, %d results", invocations, results)
	}
}

func TestQueries_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetUnit(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetLatestUnit(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetInvocation(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetUnitUses(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetLatestUnit_HighestVersionWins(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := svc.WriteUnit(ctx, unitInput(fmt.Sprintf("u%d", i), "Latest"), nil); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	latest, err := svc.GetLatestUnit(ctx, "Latest")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.ID != "u3" || latest.VersionNumber != 3 {
		t.Fatalf("expected u3/v3, got %s/v%d", latest.ID, latest.VersionNumber)
	}
}

func TestPublisher_FiresOnceAfterCommit(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteUnit(ctx, unitInput("u1", "Published"), nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 published event, got %d", rec.count())
	}

	// Replay is a no-op and must not publish again.
	if _, err := svc.WriteUnit(ctx, unitInput("u1", "Published"), nil); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("replay published an event")
	}

	if err := svc.WriteInvocation(ctx, WriteInvocationInput{ID: "i1", UnitID: "u1", Name: "Run"}, nil, nil); err != nil {
		t.Fatalf("write invocation: %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("expected 2 published events, got %d", rec.count())
	}
	if rec.events[1].Type != realtime.EventInvocationWritten {
		t.Fatalf("unexpected event type %q", rec.events[1].Type)
	}
}

func TestPublisher_FailureDoesNotFailWrite(t *testing.T) {
	gdb, err := db.NewSQLiteMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	log := logger.NewNop()
	rec := &recordingBus{fail: true}
	svc := NewStoreService(gdb, log, repos.NewProgramUnitRepo(gdb, log), repos.NewInvocationRepo(gdb, log), rec)

	unit, err := svc.WriteUnit(context.Background(), unitInput("u1", "Unpublished"), nil)
	if err != nil {
		t.Fatalf("write must survive publisher failure, got %v", err)
	}
	if unit.ID != "u1" {
		t.Fatalf("unexpected unit %q", unit.ID)
	}
}

var _ bus.Bus = (*recordingBus)(nil)
