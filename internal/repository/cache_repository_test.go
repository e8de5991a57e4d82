package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "notices", nil)
	ctx := context.Background()

	var out []string
	assert.ErrorIs(t, repo.Get(ctx, "feed", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "feed", []string{"a"}, time.Minute))
	assert.NoError(t, repo.Purge(ctx))
	assert.NoError(t, repo.Close())
	assert.Equal(t, "notices:feed", repo.key("feed"))
}
