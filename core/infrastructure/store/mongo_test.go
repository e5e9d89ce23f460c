package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx := context.Background()

	s, err := OpenMongoStore(ctx, uri, "widgetquery_test", "widgets_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer func() {
		_ = s.collection.Drop(ctx)
		_ = s.Close()
	}()

	require.NoError(t, s.PutWidgetDefinition(ctx, ticketWidget("b")))
	require.NoError(t, s.PutWidgetDefinition(ctx, ticketWidget("a")))

	w, err := s.GetWidgetDefinition(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "jira/main", w.GateKey())

	all, err := s.ListWidgetDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	_, err = s.GetWidgetDefinition(ctx, "ghost")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}
