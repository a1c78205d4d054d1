package cache

import (
	"context"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
)

func sampleCalculator() *entity.Calculator {
	return &entity.Calculator{
		ID:      uuid.New(),
		OwnerID: "user-1",
		Name:    "Cached",
		Fields: []*entity.Field{
			entity.NewInputField("Gross", entity.FieldTypeNumber, "100", 0),
			entity.NewCalculatedField("Net", "Gross * 0.9", 1),
		},
		Formulas: []*entity.Formula{entity.NewFormula("Cost", "Net * 10", 0)},
	}
}

func TestLocalCache_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(time.Minute)
	calc := sampleCalculator()

	_, ok, err := c.Get(ctx, calc.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, calc))
	got, ok, err := c.Get(ctx, calc.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, calc.FieldNames(), got.FieldNames())

	got.Fields[0].Name = "Changed"
	again, _, _ := c.Get(ctx, calc.ID)
	assert.Equal(t, "Gross", again.Fields[0].Name)

	require.NoError(t, c.Invalidate(ctx, calc.ID))
	_, ok, err = c.Get(ctx, calc.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLocalCache(time.Minute).(*localCache)
	c.now = func() time.Time { return now }
	calc := sampleCalculator()
	require.NoError(t, c.Set(ctx, calc))

	now = now.Add(59 * time.Second)
	_, ok, _ := c.Get(ctx, calc.ID)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.Get(ctx, calc.ID)
	assert.False(t, ok)
}

func TestSonicRoundTripKeepsFieldKinds(t *testing.T) {
	calc := sampleCalculator()

	data, err := sonic.Marshal(calc)
	require.NoError(t, err)
	var decoded entity.Calculator
	require.NoError(t, sonic.Unmarshal(data, &decoded))

	require.Len(t, decoded.Fields, 2)
	assert.Equal(t, entity.InputKind{DefaultValue: "100"}, decoded.Fields[0].Kind)
	assert.Equal(t, entity.CalculatedKind{Expression: "Gross * 0.9"}, decoded.Fields[1].Kind)
	assert.Equal(t, calc.Fields[1].ID, decoded.Fields[1].ID)
	assert.Equal(t, "Net * 10", decoded.Formulas[0].Expression)
}
