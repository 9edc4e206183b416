package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/matlog/internal/config"
	"github.com/kittclouds/matlog/internal/kvstore"
	"github.com/kittclouds/matlog/internal/legacy"
	"github.com/kittclouds/matlog/internal/logger"
	"github.com/kittclouds/matlog/internal/profile"
	"github.com/kittclouds/matlog/internal/store"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *kvstore.Memory) {
	t.Helper()
	kv := kvstore.NewMemory()
	svc := New(config.InMemory(), kv, logger.Nop(), opts...)
	t.Cleanup(func() { svc.Close() })
	return svc, kv
}

func TestConcurrentInitRunsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	assert.Equal(t, Uninitialized, svc.State())

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := svc.GetTechniques(ctx)
				errs <- err
				return
			}
			_, err := svc.SaveTechnique(ctx, &store.Technique{Name: "Armbar", Category: store.CategorySubmission})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), svc.inits.Load())
	assert.Equal(t, Ready, svc.State())

	techniques, err := svc.GetTechniques(ctx)
	require.NoError(t, err)
	assert.Len(t, techniques, callers/2, "no lost writes")
}

func TestInitFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	svc, _ := newTestService(t, WithOpener(func(ctx context.Context) (store.Storer, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("disk unavailable")
		}
		return store.Open(":memory:", logger.Nop())
	}))

	_, err := svc.GetTechniques(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize storage")
	assert.Contains(t, err.Error(), "disk unavailable")
	assert.Equal(t, Uninitialized, svc.State())

	techniques, err := svc.GetTechniques(ctx)
	require.NoError(t, err)
	assert.Empty(t, techniques)
	assert.Equal(t, Ready, svc.State())
	assert.Equal(t, int32(2), svc.inits.Load())
}

func TestInitSeedsTags(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, len(store.PredefinedTags))
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	technique, err := svc.SaveTechnique(ctx, &store.Technique{
		Name:     "Armbar",
		Category: store.CategorySubmission,
		Tags:     []string{"Mount", "Gi"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, technique.ID)

	techniques, err := svc.GetTechniques(ctx)
	require.NoError(t, err)
	require.Len(t, techniques, 1)
	assert.Equal(t, "Armbar", techniques[0].Name)
	assert.ElementsMatch(t, []string{"Mount", "Gi"}, techniques[0].Tags)

	tags, err := svc.SearchTags(ctx, "Mount", 5)
	require.NoError(t, err)
	require.NotEmpty(t, tags)
	assert.Equal(t, "Mount", tags[0].Name)
	assert.Equal(t, 1, tags[0].UsageCount)

	session, err := svc.SaveSession(ctx, &store.TrainingSession{
		Date:             time.Now(),
		Type:             store.SessionGi,
		Satisfaction:     4,
		Submissions:      []string{"Armbar"},
		SubmissionCounts: map[string]int{"Armbar": 2},
		TechniqueIDs:     []string{technique.ID},
	})
	require.NoError(t, err)

	sessions, err := svc.GetSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].SubmissionCounts["Armbar"])
	assert.Contains(t, sessions[0].TechniqueIDs, technique.ID)

	require.NoError(t, svc.DeleteTechnique(ctx, technique.ID))
	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TechniqueIDs)

	require.NoError(t, svc.DeleteSession(ctx, session.ID))
	sessions, err = svc.GetSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestWriteErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.SaveTechnique(ctx, &store.Technique{Category: store.CategorySweep})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidTechnique)
	assert.Contains(t, err.Error(), "failed to save technique")

	err = svc.DeleteSession(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "failed to delete session")

	_, err = svc.SaveSession(ctx, &store.TrainingSession{Date: time.Now().Add(24 * time.Hour), Type: store.SessionGi, Satisfaction: 3})
	assert.ErrorIs(t, err, store.ErrInvalidSession)
}

func TestLegacyImportOnInit(t *testing.T) {
	ctx := context.Background()
	svc, kv := newTestService(t)
	require.NoError(t, kv.Set(ctx, legacy.KeyTechniques,
		`[{"id":"t1","name":"Kimura","category":"Submission","tags":["Side Control"],"timestamp":"2023-01-05T12:00:00Z"}]`))

	techniques, err := svc.GetTechniques(ctx)
	require.NoError(t, err)
	require.Len(t, techniques, 1)
	assert.Equal(t, "t1", techniques[0].ID)

	require.NoError(t, svc.ClearLegacyData(ctx))
	_, ok, err := kv.Get(ctx, legacy.KeyTechniques)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.ResetMigration(ctx))
	_, ok, err = kv.Get(ctx, legacy.KeyComplete)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuggestFromNotes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	kimura, err := svc.SaveTechnique(ctx, &store.Technique{Name: "Kimura", Category: store.CategorySubmission})
	require.NoError(t, err)
	_, err = svc.SaveTechnique(ctx, &store.Technique{Name: "Scissor Sweep", Category: store.CategorySweep})
	require.NoError(t, err)

	got, err := svc.SuggestFromNotes(ctx, "Hit a KIMURA from half guard. Underhooks, underhooks, underhooks.")
	require.NoError(t, err)

	require.Len(t, got.Techniques, 1)
	assert.Equal(t, kimura.ID, got.Techniques[0].ID)
	require.Len(t, got.Mentions, 1)
	assert.Equal(t, "KIMURA", got.Mentions[0].Text)

	require.NotEmpty(t, got.Keywords)
	assert.Equal(t, "underhooks", got.Keywords[0].Word)
	assert.Equal(t, 3, got.Keywords[0].Count)
	for _, kw := range got.Keywords {
		assert.NotEqual(t, "half", kw.Word, "words of existing tags are not suggested")
		assert.NotEqual(t, "kimura", kw.Word)
	}
}

func TestRelatedTechniquesUnknownIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	related, err := svc.RelatedTechniques(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	p, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, profile.White, p.Belt)

	require.NoError(t, svc.SaveProfile(ctx, &profile.Profile{Name: "Alex", Belt: profile.Blue, Stripes: 3}))
	p, err = svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, profile.Blue, p.Belt)
	assert.Equal(t, 3, p.Stripes)

	err = svc.SaveProfile(ctx, &profile.Profile{Belt: profile.Blue, Stripes: 7})
	assert.ErrorIs(t, err, profile.ErrInvalidProfile)
}

func TestCloseReinitializes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.Close())
	assert.Equal(t, Uninitialized, svc.State())

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(store.PredefinedTags), counts.Tags)
	assert.Equal(t, int32(2), svc.inits.Load())
}
