package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/ai/mock"
	"github.com/poiesic/ktsearch/classify"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
	"github.com/poiesic/ktsearch/enrich"
	"github.com/poiesic/ktsearch/insight"
	"github.com/poiesic/ktsearch/retrieve"
	"github.com/poiesic/ktsearch/selection"
	"github.com/poiesic/ktsearch/storage"
	badgerstore "github.com/poiesic/ktsearch/storage/badger"
	redisstore "github.com/poiesic/ktsearch/storage/redis"
)

// harness wires real stage components over an in-memory chunk store with
// mocked AI endpoints.
type harness struct {
	repo      storage.ChunkRepository
	discovery *discover.Discovery
	embedder  *mock.MockEmbedder
	completer *mock.MockCompleter

	enricher    *enrich.Enricher
	classifier  *classify.Classifier
	executor    *retrieve.Executor
	selector    *selection.Selector
	synthesizer *insight.Synthesizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo, backend, err := badgerstore.NewMemoryChunkRepository()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	h := &harness{
		repo:      repo,
		discovery: discover.NewDiscovery(repo, discover.WithMinChunks(1)),
		embedder:  mock.NewMockEmbedder(),
		completer: mock.NewMockCompleter(),
	}
	h.enricher = enrich.NewEnricher()
	h.classifier = classify.NewClassifier()
	h.executor = retrieve.NewExecutor(repo, h.embedder, h.discovery)
	h.selector = selection.NewSelector()
	h.synthesizer = insight.NewSynthesizer(h.completer)
	return h
}

func (h *harness) orchestrator(opts ...OrchestratorOption) *Orchestrator {
	return NewOrchestrator(h.enricher, h.classifier, h.executor, h.discovery, h.selector, h.synthesizer, opts...)
}

func (h *harness) stages(sessions storage.SessionRepository) *Stages {
	return NewStages(sessions, h.enricher, h.classifier, h.executor, h.discovery, h.selector, h.synthesizer)
}

func seedKTChunks(t *testing.T, repo storage.ChunkRepository) {
	t.Helper()

	chunks := []*core.Chunk{
		{
			ID:   "kt-ewm-dexco_segments_0",
			Text: "No KT de EWM da Dexco foram discutidos os problemas de faturamento do armazém central e a configuração incompleta da transação ZEWM0001 que causava as falhas.",
			Metadata: map[string]string{
				core.MetaClientName:     "Dexco",
				core.MetaVideoName:      "KT EWM Dexco",
				core.MetaSpeaker:        "Sebas",
				core.MetaMeetingDate:    "2024-09-10",
				core.MetaSearchableTags: "ewm,faturamento,armazém",
				core.MetaContentType:    "rich",
			},
		},
		{
			ID:   "kt-ewm-dexco_segments_1",
			Text: "A equipe da Dexco decidiu replicar a correção da ordem de transporte no ambiente de qualidade antes do go-live, com validação completa do time funcional de EWM.",
			Metadata: map[string]string{
				core.MetaClientName:  "Dexco",
				core.MetaVideoName:   "KT EWM Dexco",
				core.MetaSpeaker:     "Thiago",
				core.MetaMeetingDate: "2024-09-10",
			},
		},
		{
			ID:   "kt-sd-vissimo_segments_0",
			Text: "O KT de SD da Víssimo cobriu o processo completo de vendas, a emissão de notas fiscais e as condições de preço usadas no faturamento mensal.",
			Metadata: map[string]string{
				core.MetaClientName:  "Víssimo",
				core.MetaVideoName:   "KT SD Víssimo",
				core.MetaSpeaker:     "Bernard",
				core.MetaMeetingDate: "2024-08-01",
			},
		},
	}
	_, err := repo.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)
}

func newTestSessions(t *testing.T) *redisstore.SessionRepository {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	sessions, err := redisstore.NewSessionRepository(redisstore.NewConfig(
		redisstore.WithAddr(mr.Addr()),
		redisstore.WithSessionTTL(time.Hour),
	))
	require.NoError(t, err)

	t.Cleanup(func() {
		sessions.Close()
		mr.Close()
	})
	return sessions
}

func createSession(t *testing.T, sessions storage.SessionRepository, query string) string {
	t.Helper()

	sessionID := uuid.NewString()
	meta := &SessionMeta{
		Query:     query,
		CreatedAt: time.Now().UTC(),
		State:     StateCreated,
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, sessions.PutMeta(context.Background(), sessionID, data))
	return sessionID
}

func loadMeta(t *testing.T, sessions storage.SessionRepository, sessionID string) *SessionMeta {
	t.Helper()

	data, err := sessions.GetMeta(context.Background(), sessionID)
	require.NoError(t, err)

	var meta SessionMeta
	require.NoError(t, json.Unmarshal(data, &meta))
	return &meta
}

func loadFinal(t *testing.T, sessions storage.SessionRepository, sessionID string) *core.SearchResponse {
	t.Helper()

	data, err := sessions.GetFinal(context.Background(), sessionID)
	require.NoError(t, err)

	var response core.SearchResponse
	require.NoError(t, json.Unmarshal(data, &response))
	return &response
}
