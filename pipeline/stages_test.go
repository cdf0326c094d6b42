package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/retrieve"
)

func TestStages_MissingSessionMeta(t *testing.T) {
	h := newHarness(t)
	sessions := newTestSessions(t)
	stages := h.stages(sessions)

	_, err := stages.runEnrich(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrStageDataMissing)
}

func TestStages_OutOfOrderRunFailsFast(t *testing.T) {
	h := newHarness(t)
	seedKTChunks(t, h.repo)
	sessions := newTestSessions(t)
	stages := h.stages(sessions)
	sessionID := createSession(t, sessions, "quais kts temos da dexco?")

	_, err := stages.runClassify(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrStageDataMissing)

	_, err = stages.runSelect(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrStageDataMissing)
}

func TestStages_FullChainWritesEveryKey(t *testing.T) {
	h := newHarness(t)
	seedKTChunks(t, h.repo)
	sessions := newTestSessions(t)
	stages := h.stages(sessions)
	ctx := context.Background()
	sessionID := createSession(t, sessions, "quais problemas foram encontrados no kt de ewm da dexco?")

	handlers := stages.Handlers()
	for _, stage := range StageOrder() {
		_, err := handlers[stage](ctx, sessionID)
		require.NoError(t, err, "stage %s", stage)

		_, err = sessions.GetStage(ctx, sessionID, stage)
		require.NoError(t, err, "stage %s wrote no output", stage)
	}

	final := loadFinal(t, sessions, sessionID)
	assert.True(t, final.Success)
	assert.NotEmpty(t, final.Answer)
	assert.NotEmpty(t, final.Contexts)
	assert.Contains(t, final.Stats.ClientsInvolved, "Dexco")
}

func TestStages_RetrieveWritesFinalOnEarlyExit(t *testing.T) {
	h := newHarness(t)
	seedKTChunks(t, h.repo)
	sessions := newTestSessions(t)
	stages := h.stages(sessions)
	ctx := context.Background()
	sessionID := createSession(t, sessions, "o que temos do cliente Acme?")

	_, err := stages.runEnrich(ctx, sessionID)
	require.NoError(t, err)
	_, err = stages.runClassify(ctx, sessionID)
	require.NoError(t, err)

	data, err := stages.runRetrieve(ctx, sessionID)
	require.NoError(t, err)

	var payload StagePayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.True(t, payload.EarlyExit)

	var result retrieve.Result
	require.NoError(t, stages.readStage(ctx, sessionID, StageRetrieve, &result))
	assert.True(t, result.EarlyExit)

	final := loadFinal(t, sessions, sessionID)
	assert.True(t, final.Success)
	assert.Equal(t, core.ResponseTypeEarlyExit, final.QueryType)
	assert.Contains(t, final.Answer, "Dexco")
}

func TestStages_DiscoverSelfSkipsForSemanticQueries(t *testing.T) {
	h := newHarness(t)
	seedKTChunks(t, h.repo)
	sessions := newTestSessions(t)
	stages := h.stages(sessions)
	ctx := context.Background()
	sessionID := createSession(t, sessions, "como funciona o processo de faturamento?")

	_, err := stages.runEnrich(ctx, sessionID)
	require.NoError(t, err)
	_, err = stages.runClassify(ctx, sessionID)
	require.NoError(t, err)

	data, err := stages.runDiscover(ctx, sessionID)
	require.NoError(t, err)

	var payload StagePayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.True(t, payload.Skipped)

	var out discoverOutput
	require.NoError(t, stages.readStage(ctx, sessionID, StageDiscover, &out))
	assert.True(t, out.Skipped)
	assert.Empty(t, out.Entities)
}

func TestStages_LowConfidenceEnrichmentFailsStage(t *testing.T) {
	h := newHarness(t)
	sessions := newTestSessions(t)
	stages := h.stages(sessions)
	sessionID := createSession(t, sessions, "@@@ %%% ###")

	_, err := stages.runEnrich(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrLowEnrichmentConfidence)
}

func TestStages_EnrichIsIdempotent(t *testing.T) {
	h := newHarness(t)
	seedKTChunks(t, h.repo)
	sessions := newTestSessions(t)
	stages := h.stages(sessions)
	ctx := context.Background()
	sessionID := createSession(t, sessions, "quais kts temos da dexco?")

	_, err := stages.runEnrich(ctx, sessionID)
	require.NoError(t, err)
	var first core.EnrichmentResult
	require.NoError(t, stages.readStage(ctx, sessionID, StageEnrich, &first))

	// Redelivered job: same input, overwrite-in-place, same output.
	_, err = stages.runEnrich(ctx, sessionID)
	require.NoError(t, err)
	var second core.EnrichmentResult
	require.NoError(t, stages.readStage(ctx, sessionID, StageEnrich, &second))

	first.ProcessingTime = 0
	second.ProcessingTime = 0
	assert.Equal(t, first, second)
}
