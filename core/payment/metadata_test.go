package payment

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Encode(t *testing.T) {
	m := Metadata{LearnerID: "l1", Items: []MetadataItem{{ItemID: "c1", Quantity: 1}, {ItemID: "m1", Quantity: 3}}}
	raw, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"purpose": "enrollment", "learner_id": "l1", "items": "c1:1,m1:3"}, raw)

	parsed, err := ParseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)

	tests := []struct {
		name string
		m    Metadata
	}{
		{name: "no learner", m: Metadata{Items: []MetadataItem{{ItemID: "c1", Quantity: 1}}}},
		{name: "no items", m: Metadata{LearnerID: "l1"}},
		{name: "bad quantity", m: Metadata{LearnerID: "l1", Items: []MetadataItem{{ItemID: "c1"}}}},
		{name: "bad id", m: Metadata{LearnerID: "l1", Items: []MetadataItem{{ItemID: "c:1", Quantity: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.m.Encode()
			assert.Equal(t, ErrInvalidMetadata, errors.Cause(err))
		})
	}
}

func TestMetadata_Encode_largeCart(t *testing.T) {
	m := Metadata{LearnerID: "l1"}
	for i := 0; i < 50; i++ {
		m.Items = append(m.Items, MetadataItem{ItemID: fmt.Sprintf("00000000-0000-4000-8000-%012d", i), Quantity: 100})
	}
	raw, err := m.Encode()
	require.NoError(t, err)

	assert.Greater(t, len(raw), 3, "items must spill over several keys")
	assert.Contains(t, raw, "items_1")
	for k, v := range raw {
		assert.LessOrEqual(t, len(k), 40, k)
		assert.LessOrEqual(t, len(v), 500, k)
		assert.False(t, strings.HasPrefix(v, ",") || strings.HasSuffix(v, ","), k)
	}

	parsed, err := ParseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)

	t.Run("too many items", func(t *testing.T) {
		big := Metadata{LearnerID: "l1"}
		for i := 0; i < 1000; i++ {
			big.Items = append(big.Items, MetadataItem{ItemID: fmt.Sprintf("00000000-0000-4000-8000-%012d", i), Quantity: 1})
		}
		_, err := big.Encode()
		assert.Equal(t, ErrInvalidMetadata, errors.Cause(err))
	})
}

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]string
	}{
		{name: "empty", raw: nil},
		{name: "foreign session", raw: map[string]string{"learner_id": "l1", "items": "c1:1"}},
		{name: "no learner", raw: map[string]string{"purpose": "enrollment", "items": "c1:1"}},
		{name: "no items", raw: map[string]string{"purpose": "enrollment", "learner_id": "l1"}},
		{name: "malformed item", raw: map[string]string{"purpose": "enrollment", "learner_id": "l1", "items": "c1"}},
		{name: "malformed quantity", raw: map[string]string{"purpose": "enrollment", "learner_id": "l1", "items": "c1:x"}},
		{name: "zero quantity", raw: map[string]string{"purpose": "enrollment", "learner_id": "l1", "items": "c1:0"}},
		{name: "empty spill-over", raw: map[string]string{"purpose": "enrollment", "learner_id": "l1", "items": "c1:1", "items_1": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata(tt.raw)
			assert.Equal(t, ErrInvalidMetadata, errors.Cause(err))
		})
	}
}
