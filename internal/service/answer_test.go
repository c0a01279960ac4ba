package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage-ai/docsage/internal/domain"
)

type fakeEmbedder struct {
	embedding []float32
	err       error
	texts     []string
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string, _ string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.embedding, f.err
}

type fakeConfigResolver struct {
	cfg *domain.AgentConfig
	err error
}

func (f *fakeConfigResolver) Resolve(_ context.Context, _ string) (*domain.AgentConfig, error) {
	return f.cfg, f.err
}

// recordingEmitter captures everything sent to the client in order.
type recordingEmitter struct {
	steps   []string
	tokens  []string
	result  *AnswerResult
	errMsgs []string
	done    bool
}

func (r *recordingEmitter) Step(label string) error { r.steps = append(r.steps, label); return nil }
func (r *recordingEmitter) Token(text string) error { r.tokens = append(r.tokens, text); return nil }
func (r *recordingEmitter) Sources(res *AnswerResult) error {
	r.result = res
	return nil
}
func (r *recordingEmitter) Error(msg string) error { r.errMsgs = append(r.errMsgs, msg); return nil }
func (r *recordingEmitter) Done() error            { r.done = true; return nil }

func (r *recordingEmitter) answer() string { return strings.Join(r.tokens, "") }

type answerFixture struct {
	svc       *AnswerService
	embedder  *fakeEmbedder
	memory    *fakeMemoryRepo
	retrieval *fakeRetrievalRepo
	cacheRepo *fakeCacheRepo
	provider  *fakeProvider
	chat      *fakeChatClient
	fullDoc   *fakeFullDocStreamer
	convRepo  *fakeConversationRepo
	cfg       *domain.AgentConfig
}

func newAnswerFixture(withFullDoc bool) *answerFixture {
	cfg := domain.DefaultAgentConfig()
	f := &answerFixture{
		embedder:  &fakeEmbedder{embedding: []float32{0.1, 0.2}},
		memory:    &fakeMemoryRepo{},
		retrieval: &fakeRetrievalRepo{},
		cacheRepo: &fakeCacheRepo{},
		provider:  &fakeProvider{},
		chat:      &fakeChatClient{answer: "chunk answer"},
		fullDoc:   &fakeFullDocStreamer{answer: "full document answer"},
		convRepo:  &fakeConversationRepo{},
		cfg:       &cfg,
	}

	var fc *FileCacheManager
	if withFullDoc {
		fc = NewFileCacheManager(f.cacheRepo, &fakeDocStore{}, f.provider)
	}
	store := NewConversationStore(f.convRepo)
	store.ids = &seqIDs{}

	f.svc = NewAnswerService(AnswerServiceDeps{
		Embeddings: f.embedder,
		Configs:    &fakeConfigResolver{cfg: f.cfg},
		Memory:     NewMemoryMatcher(f.memory),
		Retrieval:  NewRetrievalService(f.retrieval),
		FileCache:  fc,
		Streamer:   NewGenerationStreamer(f.chat, f.fullDoc),
		Sources:    NewSourceBuilder(nil),
		Store:      store,
	})
	return f
}

func askReq() *AskRequest {
	return &AskRequest{Query: "how many vacation days carry over?", UserID: "u1", OrgID: "o1"}
}

func TestAnswerService_Answer(t *testing.T) {
	ctx := context.Background()

	t.Run("validation failure emits an error event", func(t *testing.T) {
		f := newAnswerFixture(true)
		emit := &recordingEmitter{}
		err := f.svc.Answer(ctx, &AskRequest{UserID: "u1"}, emit)
		assert.ErrorIs(t, err, domain.ErrMissingQuery)
		assert.NotEmpty(t, emit.errMsgs)
		assert.False(t, emit.done)
	})

	t.Run("full document path streams and attributes all candidates", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.retrieval.rows = []*RetrievalRow{
			docRow("c1", "f1", "handbook.pdf", 0.9),
			docRow("c2", "f2", "policy.pdf", 0.7),
		}
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		assert.True(t, emit.done)
		assert.Equal(t, "full document answer", emit.answer())

		require.NotNil(t, emit.result)
		assert.Equal(t, domain.ModeGemini, emit.result.Mode)
		assert.Empty(t, emit.result.OverrideReason)
		assert.Len(t, emit.result.Sources, 2)
		assert.Equal(t, 2, emit.result.FileCount)
		assert.Equal(t, 1, f.provider.caches)

		// user turn before the answer, assistant turn after
		require.Len(t, f.convRepo.appended, 2)
		assert.Equal(t, domain.RoleUser, f.convRepo.appended[0].Role)
		assert.Equal(t, domain.RoleAssistant, f.convRepo.appended[1].Role)
		assert.Equal(t, domain.ModeGemini, f.convRepo.appended[1].Mode)
	})

	t.Run("no candidates short-circuits to chunk mode", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.retrieval.rows = nil
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		require.NotNil(t, emit.result)
		assert.Equal(t, domain.ModeChunks, emit.result.Mode)
		assert.Contains(t, emit.result.OverrideReason, "no candidate files")
		assert.Zero(t, f.provider.caches)
		assert.Empty(t, f.provider.uploads)
	})

	t.Run("page ceiling reason names both numbers", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.cfg.PageLimit = 10
		big := docRow("c1", "f1", "archive.pdf", 0.9)
		big.PageCount = 50
		f.retrieval.rows = []*RetrievalRow{big}
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeChunks, emit.result.Mode)
		assert.Contains(t, emit.result.OverrideReason, "50 > 10")
	})

	t.Run("missing full document provider forces chunk mode", func(t *testing.T) {
		f := newAnswerFixture(false)
		f.retrieval.rows = []*RetrievalRow{docRow("c1", "f1", "handbook.pdf", 0.9)}
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeChunks, emit.result.Mode)
		assert.Contains(t, emit.result.OverrideReason, "unavailable")
		assert.Equal(t, "chunk answer", emit.answer())
	})

	t.Run("cache assembly failure degrades to chunk mode", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.provider.cacheErr = errors.New("quota exceeded")
		f.retrieval.rows = []*RetrievalRow{docRow("c1", "f1", "handbook.pdf", 0.9)}
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeChunks, emit.result.Mode)
		assert.Contains(t, emit.result.OverrideReason, "cache creation failed")
		assert.Equal(t, "chunk answer", emit.answer())
		assert.True(t, emit.done)
	})

	t.Run("full document generation failure degrades to chunk mode", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.fullDoc.err = errors.New("model overloaded")
		f.retrieval.rows = []*RetrievalRow{docRow("c1", "f1", "handbook.pdf", 0.9)}
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeChunks, emit.result.Mode)
		assert.Contains(t, emit.result.OverrideReason, "generation failed")
	})

	t.Run("explicit chunk request never touches the provider", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.retrieval.rows = []*RetrievalRow{docRow("c1", "f1", "handbook.pdf", 0.9)}
		req := askReq()
		req.Mode = domain.ModeChunks
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, req, emit)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeChunks, emit.result.Mode)
		assert.Empty(t, emit.result.OverrideReason)
		assert.Zero(t, f.provider.caches)
	})

	t.Run("memory hit replays the stored answer", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.memory.entry = &domain.QAMemoryEntry{ID: "m1", Answer: "ten days carry over", TrustScore: 5}
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		assert.Equal(t, "ten days carry over", emit.answer())
		assert.Equal(t, domain.ModeMemory, emit.result.Mode)
		assert.Equal(t, []string{"m1"}, f.memory.incremented)
		assert.True(t, emit.done)

		// no retrieval, no generation
		assert.Empty(t, f.retrieval.params.QueryText)
		require.Len(t, f.convRepo.appended, 2)
		assert.Equal(t, domain.ModeMemory, f.convRepo.appended[1].Mode)
	})

	t.Run("untrusted memory proceeds to retrieval", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.memory.entry = &domain.QAMemoryEntry{ID: "m1", Answer: "stale", TrustScore: 1}
		f.retrieval.rows = []*RetrievalRow{docRow("c1", "f1", "handbook.pdf", 0.9)}
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.NoError(t, err)
		assert.NotEqual(t, domain.ModeMemory, emit.result.Mode)
		assert.Empty(t, f.memory.incremented)
	})

	t.Run("embedding failure is fatal", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.embedder.err = errors.New("quota")
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, askReq(), emit)
		require.Error(t, err)
		var derr *domain.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, domain.ErrCodeUnavailable, derr.Code)
		assert.NotEmpty(t, emit.errMsgs)
		assert.False(t, emit.done)

		// the question was still persisted
		require.Len(t, f.convRepo.appended, 1)
		assert.Equal(t, domain.RoleUser, f.convRepo.appended[0].Role)
	})

	t.Run("rewritten query drives embedding but original is persisted", func(t *testing.T) {
		f := newAnswerFixture(true)
		f.retrieval.rows = []*RetrievalRow{docRow("c1", "f1", "handbook.pdf", 0.9)}
		req := askReq()
		req.RewrittenQuery = "vacation day carryover policy"
		emit := &recordingEmitter{}

		err := f.svc.Answer(ctx, req, emit)
		require.NoError(t, err)
		assert.Equal(t, []string{"vacation day carryover policy"}, f.embedder.texts)
		assert.Equal(t, req.Query, f.convRepo.appended[0].Content)
	})

	t.Run("layer flags default to all layers", func(t *testing.T) {
		f := newAnswerFixture(true)
		emit := &recordingEmitter{}
		_ = f.svc.Answer(ctx, askReq(), emit)
		assert.True(t, f.retrieval.params.IncludeApp)
		assert.True(t, f.retrieval.params.IncludeUser)
	})
}
