package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/shipyard/internal/storage"
)

// mockStore implements Store in memory
type mockStore struct {
	deployments map[string]*storage.Deployment
	recordErr   error
}

func newMockStore() *mockStore {
	return &mockStore{deployments: make(map[string]*storage.Deployment)}
}

func (m *mockStore) RecordDeployment(ctx context.Context, d *storage.Deployment) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	for _, existing := range m.deployments {
		if existing.Network == d.Network && existing.TxHash == d.TxHash {
			return storage.ErrDuplicate
		}
	}
	if d.ID == "" {
		d.ID = "gen-" + d.TxHash
	}
	d.CreatedAt = "2026-08-30 12:00:00"
	m.deployments[d.ID] = d
	return nil
}

func (m *mockStore) GetDeployment(ctx context.Context, id string) (*storage.Deployment, error) {
	d, ok := m.deployments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (m *mockStore) GetDeploymentByAddress(ctx context.Context, network, address string) (*storage.Deployment, error) {
	for _, d := range m.deployments {
		if d.Network == network && d.Address == address {
			return d, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error) {
	var data []storage.Deployment
	for _, d := range m.deployments {
		if filter.Network != "" && d.Network != filter.Network {
			continue
		}
		if filter.Contract != "" && d.Contract != filter.Contract {
			continue
		}
		if filter.Verified != nil && d.Verified != *filter.Verified {
			continue
		}
		data = append(data, *d)
	}
	return &storage.PaginatedResult[storage.Deployment]{Data: data}, nil
}

func (m *mockStore) UpdateVerification(ctx context.Context, id string, verified bool, guid, detail string) error {
	d, ok := m.deployments[id]
	if !ok {
		return storage.ErrNotFound
	}
	d.Verified = verified
	d.VerifyGUID = guid
	d.VerifyDetail = detail
	return nil
}

func validRecordRequest() RecordRequest {
	return RecordRequest{
		Contract:        "Token",
		Network:         "sepolia",
		ChainID:         11155111,
		Address:         "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		DeployerAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		TxHash:          "0x" + repeat64("a"),
		BlockNumber:     100,
		GasUsed:         90000,
		Status:          storage.StatusSuccess,
		CompilerVersion: "0.8.28",
	}
}

func repeat64(s string) string {
	out := ""
	for i := 0; i < 64; i++ {
		out += s
	}
	return out
}

func TestService_Record(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		svc := NewService(newMockStore())

		d, err := svc.Record(context.Background(), validRecordRequest())
		require.NoError(t, err)
		assert.NotEmpty(t, d.ID)
		assert.Equal(t, "Token", d.Contract)
		assert.Equal(t, storage.StatusSuccess, d.Status)
		assert.False(t, d.Verified)
		assert.False(t, d.CreatedAt.IsZero())
	})

	t.Run("invalid tx hash", func(t *testing.T) {
		svc := NewService(newMockStore())

		req := validRecordRequest()
		req.TxHash = "0x123"
		_, err := svc.Record(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidTxHash)
	})

	t.Run("invalid address", func(t *testing.T) {
		svc := NewService(newMockStore())

		req := validRecordRequest()
		req.Address = "not-an-address"
		_, err := svc.Record(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("reverted deployment without address", func(t *testing.T) {
		svc := NewService(newMockStore())

		req := validRecordRequest()
		req.Address = ""
		req.Status = storage.StatusReverted
		d, err := svc.Record(context.Background(), req)
		require.NoError(t, err)
		assert.Empty(t, d.Address)
		assert.Equal(t, storage.StatusReverted, d.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := NewService(newMockStore())

		req := validRecordRequest()
		req.Status = "maybe"
		_, err := svc.Record(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("duplicate", func(t *testing.T) {
		svc := NewService(newMockStore())

		_, err := svc.Record(context.Background(), validRecordRequest())
		require.NoError(t, err)
		_, err = svc.Record(context.Background(), validRecordRequest())
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestService_Get(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	created, err := svc.Record(context.Background(), validRecordRequest())
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		d, err := svc.Get(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, d.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_GetByAddress(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	created, err := svc.Record(context.Background(), validRecordRequest())
	require.NoError(t, err)

	d, err := svc.GetByAddress(context.Background(), "sepolia", created.Address)
	require.NoError(t, err)
	assert.Equal(t, created.ID, d.ID)

	_, err = svc.GetByAddress(context.Background(), "sepolia", "bogus")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = svc.GetByAddress(context.Background(), "holesky", created.Address)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_List(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	_, err := svc.Record(context.Background(), validRecordRequest())
	require.NoError(t, err)

	req := validRecordRequest()
	req.TxHash = "0x" + repeat64("b")
	req.Network = "holesky"
	_, err = svc.Record(context.Background(), req)
	require.NoError(t, err)

	result, err := svc.List(context.Background(), ListFilter{Network: "sepolia"}, PaginationParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Deployments, 1)
	assert.Equal(t, "sepolia", result.Deployments[0].Network)
}

func TestService_MarkVerified(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	created, err := svc.Record(context.Background(), validRecordRequest())
	require.NoError(t, err)

	require.NoError(t, svc.MarkVerified(context.Background(), created.ID, true, "guid-1", "Pass - Verified"))

	d, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, d.Verified)
	assert.Equal(t, "Pass - Verified", d.VerifyDetail)

	assert.ErrorIs(t, svc.MarkVerified(context.Background(), "missing", true, "", ""), ErrNotFound)
}
