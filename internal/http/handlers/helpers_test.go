package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/zeizeiwaii/Datastar/internal/modules/request"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}

// memoryRepo is an in-memory request.Repository.
type memoryRepo struct {
	mu   sync.Mutex
	rows map[types.ID]*request.Request
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[types.ID]*request.Request{}}
}

func (m *memoryRepo) Create(_ context.Context, r *request.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ID]; ok {
		return request.ErrConflict
	}
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id types.ID) (*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, request.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) ListPendingUnlinked(_ context.Context, limit int) ([]*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*request.Request
	for _, r := range m.rows {
		if r.Status == request.StatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, ids []types.ID, from, to request.Status, clusterID *int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		r, ok := m.rows[id]
		if !ok || r.Status != from {
			continue
		}
		r.Status = to
		r.StatusVersion++
		r.ClusterID = clusterID
		n++
	}
	return n, nil
}
