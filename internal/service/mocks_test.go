package service

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/remote"
	"github.com/Sihagjaat/VJ-Video-Player/internal/repository"
)

// discardLogger — логгер без вывода.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock repository ---

// mockFileRepo — мок FileRepository для unit-тестов.
type mockFileRepo struct {
	getByIDFn        func(ctx context.Context, fileID string) (*model.FileRecord, error)
	listByOwnerFn    func(ctx context.Context, userID int64, limit int) ([]*model.FileRecord, error)
	incrementViewsFn func(ctx context.Context, fileID string, amount decimal.Decimal) (int64, error)

	getByIDCalls atomic.Int32
}

func (m *mockFileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	m.getByIDCalls.Add(1)
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, fileID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) ListByOwner(ctx context.Context, userID int64, limit int) ([]*model.FileRecord, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockFileRepo) IncrementViews(ctx context.Context, fileID string, amount decimal.Decimal) (int64, error) {
	if m.incrementViewsFn != nil {
		return m.incrementViewsFn(ctx, fileID, amount)
	}
	return 0, repository.ErrNotFound
}

// memFileRepo — FileRepository в памяти с атомарным инкрементом под мьютексом.
type memFileRepo struct {
	mu    sync.Mutex
	files map[string]*model.FileRecord
}

func newMemFileRepo(records ...*model.FileRecord) *memFileRepo {
	r := &memFileRepo{files: make(map[string]*model.FileRecord)}
	for _, rec := range records {
		r.files[rec.FileID] = rec
	}
	return r
}

func (r *memFileRepo) GetByID(_ context.Context, fileID string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memFileRepo) ListByOwner(_ context.Context, userID int64, limit int) ([]*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.FileRecord
	for _, rec := range r.files {
		if rec.OwnerUserID == userID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadedAt.After(result[j].UploadedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memFileRepo) IncrementViews(_ context.Context, fileID string, amount decimal.Decimal) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[fileID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	rec.Views++
	rec.AccruedEarnings = rec.AccruedEarnings.Add(amount)
	return rec.Views, nil
}

// mockUserRepo — мок UserRepository.
type mockUserRepo struct {
	getByIDFn    func(ctx context.Context, userID int64) (*model.UserRecord, error)
	creditViewFn func(ctx context.Context, userID int64, amount decimal.Decimal) error
}

func (m *mockUserRepo) GetByID(ctx context.Context, userID int64) (*model.UserRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, userID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) CreditView(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if m.creditViewFn != nil {
		return m.creditViewFn(ctx, userID, amount)
	}
	return nil
}

// mockEarningRepo — мок EarningRepository.
type mockEarningRepo struct {
	insertFn    func(ctx context.Context, ev model.EarningEvent) (bool, error)
	sumSinceFn  func(ctx context.Context, userID int64, since time.Time) (int64, decimal.Decimal, error)
	listSinceFn func(ctx context.Context, userID int64, since time.Time, limit int) ([]model.EarningEvent, error)
}

func (m *mockEarningRepo) Insert(ctx context.Context, ev model.EarningEvent) (bool, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, ev)
	}
	return true, nil
}

func (m *mockEarningRepo) SumSince(ctx context.Context, userID int64, since time.Time) (int64, decimal.Decimal, error) {
	if m.sumSinceFn != nil {
		return m.sumSinceFn(ctx, userID, since)
	}
	return 0, decimal.Zero, nil
}

func (m *mockEarningRepo) ListSince(ctx context.Context, userID int64, since time.Time, limit int) ([]model.EarningEvent, error) {
	if m.listSinceFn != nil {
		return m.listSinceFn(ctx, userID, since, limit)
	}
	return nil, nil
}

// --- Mock ledger ---

// mockLedger — мок CreditApplier, запоминает применённые начисления.
type mockLedger struct {
	mu      sync.Mutex
	applyFn func(ctx context.Context, credit model.ViewCredit) (bool, error)
	credits []model.ViewCredit
}

func (m *mockLedger) ApplyViewCredit(ctx context.Context, credit model.ViewCredit) (bool, error) {
	if m.applyFn != nil {
		applied, err := m.applyFn(ctx, credit)
		if err == nil {
			m.record(credit)
		}
		return applied, err
	}
	m.record(credit)
	return true, nil
}

func (m *mockLedger) record(credit model.ViewCredit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits = append(m.credits, credit)
}

func (m *mockLedger) applied() []model.ViewCredit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ViewCredit(nil), m.credits...)
}

// --- Mock view recorder ---

type mockViewRecorder struct {
	mu    sync.Mutex
	files []string
}

func (m *mockViewRecorder) RecordViewAsync(_ context.Context, fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, fileID)
}

func (m *mockViewRecorder) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// --- Fake fetcher ---

// fakeFetcher — remote.Fetcher поверх байтового среза.
// Чтение частей идёт через remote.Chunks, как в tgclient.
type fakeFetcher struct {
	obj        *remote.Object
	data       []byte
	partSize   int
	resolveErr error
	// failFrom — смещение части, начиная с которой чтение падает (-1 — без сбоев)
	failFrom int64

	resolveCalls atomic.Int32
	parts        atomic.Int32
}

func newFakeFetcher(data []byte, mimeType, name string) *fakeFetcher {
	return &fakeFetcher{
		obj:      &remote.Object{MimeType: mimeType, FileName: name, Size: int64(len(data))},
		data:     data,
		partSize: 1 << 20,
		failFrom: -1,
	}
}

func (f *fakeFetcher) Resolve(_ context.Context, _ model.RemoteRef) (*remote.Object, error) {
	f.resolveCalls.Add(1)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.obj, nil
}

func (f *fakeFetcher) OpenStream(ctx context.Context, _ *remote.Object, offset, limit int64) iter.Seq2[[]byte, error] {
	read := func(_ context.Context, off int64, size int) ([]byte, error) {
		f.parts.Add(1)
		if f.failFrom >= 0 && off >= f.failFrom {
			return nil, remote.ErrUnavailable
		}
		end := off + int64(size)
		if end > int64(len(f.data)) {
			end = int64(len(f.data))
		}
		return f.data[off:end], nil
	}
	return remote.Chunks(ctx, read, f.partSize, offset, limit)
}

// patternData возвращает детерминированные данные размера n.
func patternData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
