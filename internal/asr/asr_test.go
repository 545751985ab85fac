package asr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mkvmatch/internal/model"
)

type countingProvider struct {
	loadCalls int
	loadErr   error
}

func (p *countingProvider) Load(context.Context) error {
	p.loadCalls++
	return p.loadErr
}

func (p *countingProvider) Transcribe(context.Context, string) model.Transcript {
	return model.Transcript{}
}

func (p *countingProvider) Score(transcript, reference string) float64 {
	return Score(transcript, reference)
}

func TestRegistryLoadsOnceAcrossRepeatedGets(t *testing.T) {
	reg := NewRegistry()
	key := Key{Backend: "whisper", Model: "base", Device: "cpu"}
	provider := &countingProvider{}

	for i := 0; i < 5; i++ {
		got, err := reg.GetOrLoad(context.Background(), key, func() Provider { return provider })
		require.NoError(t, err)
		require.Same(t, provider, got)
	}
	require.Equal(t, 1, provider.loadCalls)
}

func TestRegistryKeysAreIndependent(t *testing.T) {
	reg := NewRegistry()
	first := &countingProvider{}
	second := &countingProvider{}

	_, err := reg.GetOrLoad(context.Background(), Key{Backend: "whisper", Model: "base", Device: "cpu"}, func() Provider { return first })
	require.NoError(t, err)
	_, err = reg.GetOrLoad(context.Background(), Key{Backend: "whisper", Model: "large", Device: "cpu"}, func() Provider { return second })
	require.NoError(t, err)

	require.Equal(t, 1, first.loadCalls)
	require.Equal(t, 1, second.loadCalls)
}

func TestRegistryPropagatesLoadError(t *testing.T) {
	reg := NewRegistry()
	failing := &countingProvider{loadErr: context.DeadlineExceeded}

	_, err := reg.GetOrLoad(context.Background(), Key{Backend: "whisper", Model: "base", Device: "cpu"}, func() Provider { return failing })
	require.Error(t, err)
}
