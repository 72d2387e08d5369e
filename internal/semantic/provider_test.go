// Package semantic adapts externally computed similarity scores into
// role probability vectors.
package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/kitforge/pkg/models"
)

// providerFunc adapts a closure into a Provider for tests.
type providerFunc func(ctx context.Context, ref SampleRef) (PromptScores, error)

func (f providerFunc) Similarity(ctx context.Context, ref SampleRef) (PromptScores, error) {
	return f(ctx, ref)
}

func TestStaticProvider_KnownSample(t *testing.T) {
	want := PromptScores{}
	want[models.RoleCore] = []float64{0.8, 0.7}
	want[models.RoleMotion] = []float64{0.2}

	p := NewStaticProvider(map[string]PromptScores{"kick_01": want})

	got, err := p.Similarity(context.Background(), SampleRef{SampleID: "kick_01"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStaticProvider_UnknownSampleUnavailable(t *testing.T) {
	p := NewStaticProvider(nil)

	_, err := p.Similarity(context.Background(), SampleRef{SampleID: "ghost"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable), "missing entries must map to ErrUnavailable")
}

func TestStaticProvider_HonorsCancellation(t *testing.T) {
	p := NewStaticProvider(map[string]PromptScores{"kick_01": {}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Similarity(ctx, SampleRef{SampleID: "kick_01"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeoutProvider_SlowCallBecomesUnavailable(t *testing.T) {
	slow := providerFunc(func(ctx context.Context, ref SampleRef) (PromptScores, error) {
		select {
		case <-ctx.Done():
			return PromptScores{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return PromptScores{}, nil
		}
	})

	p := NewTimeoutProvider(slow, 10*time.Millisecond)

	_, err := p.Similarity(context.Background(), SampleRef{SampleID: "pad_03"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable), "per-call timeout is a degraded sample, got %v", err)
}

func TestTimeoutProvider_BatchCancellationPropagates(t *testing.T) {
	blocked := providerFunc(func(ctx context.Context, ref SampleRef) (PromptScores, error) {
		<-ctx.Done()
		return PromptScores{}, ctx.Err()
	})

	p := NewTimeoutProvider(blocked, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Similarity(ctx, SampleRef{SampleID: "pad_03"})
	assert.ErrorIs(t, err, context.Canceled, "cancellation is not a degraded sample")
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestTimeoutProvider_InnerErrorsPassThrough(t *testing.T) {
	sentinel := errors.New("model returned garbage")
	failing := providerFunc(func(ctx context.Context, ref SampleRef) (PromptScores, error) {
		return PromptScores{}, sentinel
	})

	p := NewTimeoutProvider(failing, time.Second)

	_, err := p.Similarity(context.Background(), SampleRef{})
	assert.ErrorIs(t, err, sentinel)
}

func TestTimeoutProvider_ZeroTimeoutUnbounded(t *testing.T) {
	fast := providerFunc(func(ctx context.Context, ref SampleRef) (PromptScores, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout must not set a deadline")
		}
		return PromptScores{}, nil
	})

	p := NewTimeoutProvider(fast, 0)
	_, err := p.Similarity(context.Background(), SampleRef{})
	assert.NoError(t, err)
}

func TestPromptScoresTotal(t *testing.T) {
	var scores PromptScores
	assert.Equal(t, 0, scores.Total())

	scores[models.RoleCore] = []float64{0.1, 0.2}
	scores[models.RoleTexture] = []float64{0.3}
	assert.Equal(t, 3, scores.Total())
}
