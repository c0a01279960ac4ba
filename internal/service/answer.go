package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/telemetry"
)

// EmbeddingClientInterface defines the interface for embedding generation
type EmbeddingClientInterface interface {
	GenerateEmbedding(ctx context.Context, text string, model string) ([]float32, error)
}

// AgentConfigResolverInterface resolves effective agent configuration for a tenant.
type AgentConfigResolverInterface interface {
	Resolve(ctx context.Context, orgID string) (*domain.AgentConfig, error)
}

// AnswerService orchestrates the full question pipeline: conversation
// resolution, memory short-circuit, retrieval, mode resolution, document
// context assembly, streaming generation and source attribution.
type AnswerService struct {
	embeddings EmbeddingClientInterface
	configs    AgentConfigResolverInterface
	memory     *MemoryMatcher
	retrieval  *RetrievalService
	filecache  *FileCacheManager
	streamer   *GenerationStreamer
	sources    *SourceBuilder
	store      *ConversationStore
	now        func() time.Time
}

// AnswerServiceDeps collects the collaborators of an AnswerService.
// FileCache may be nil when no full-document provider is configured; the
// pipeline then always answers from retrieved passages.
type AnswerServiceDeps struct {
	Embeddings EmbeddingClientInterface
	Configs    AgentConfigResolverInterface
	Memory     *MemoryMatcher
	Retrieval  *RetrievalService
	FileCache  *FileCacheManager
	Streamer   *GenerationStreamer
	Sources    *SourceBuilder
	Store      *ConversationStore
}

// NewAnswerService creates a new AnswerService instance
func NewAnswerService(deps AnswerServiceDeps) *AnswerService {
	return &AnswerService{
		embeddings: deps.Embeddings,
		configs:    deps.Configs,
		memory:     deps.Memory,
		retrieval:  deps.Retrieval,
		filecache:  deps.FileCache,
		streamer:   deps.Streamer,
		sources:    deps.Sources,
		store:      deps.Store,
		now:        time.Now,
	}
}

// Answer runs the pipeline for one question, emitting progress, tokens and
// the final result on the emitter. The returned error reports fatal
// failures only; degradations inside the pipeline fall back to chunk mode
// and surface through the result's override reason.
func (s *AnswerService) Answer(ctx context.Context, req *AskRequest, emit StreamEmitter) error {
	started := s.now()

	if err := req.Validate(); err != nil {
		emitError(emit, err.Error())
		return err
	}
	normalizeRequest(req)

	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Answer", telemetry.SpanAttributes{
		OrgID:     req.OrgID,
		ProjectID: req.ProjectID,
		Operation: "ask",
	})
	defer span.End()

	emitStep(emit, "loading context")
	conv, cfg, err := s.loadContext(ctx, req)
	if err != nil {
		emitError(emit, "request context could not be loaded")
		span.SetError(err)
		return err
	}

	// The question is durable from here on, whatever happens downstream.
	s.store.AppendUserTurn(ctx, conv.ID, req.Query)

	emitStep(emit, "embedding query")
	embedding, err := s.embeddings.GenerateEmbedding(ctx, req.EffectiveQuery(), cfg.EmbeddingModel)
	if err != nil {
		emitError(emit, "query embedding failed")
		span.SetError(err)
		return domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "query embedding failed", err)
	}

	emitStep(emit, "checking memory")
	if entry := s.memory.Match(ctx, embedding, req.OrgID, req.ProjectID, cfg); entry != nil {
		return s.answerFromMemory(ctx, conv, entry, emit, started)
	}

	emitStep(emit, "retrieving sources")
	retrieved, err := s.retrieval.Retrieve(ctx, req, embedding, cfg)
	if err != nil {
		emitError(emit, "source retrieval failed")
		span.SetError(err)
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "source retrieval failed", err)
	}

	decision := ResolveMode(req.Mode, retrieved.Files, cfg, s.filecache != nil)
	systemPrompt := BuildSystemPrompt(PromptInput{
		Config:    cfg,
		ProjectID: req.ProjectID,
		Intent:    req.Intent,
		Files:     retrieved.Files,
	})
	history := BuildHistory(conv, s.store.History(ctx, conv.ID, req.Query, cfg.RecentTurnLimit), cfg.RecentTurnLimit)

	result := &AnswerResult{
		ConversationID: conv.ID,
		ChunkCount:     len(retrieved.Chunks) + len(retrieved.Transcripts),
		FileCount:      len(retrieved.Files),
	}

	var answer string
	if decision.Mode == domain.ModeGemini {
		answer, decision = s.answerFullDoc(ctx, conv, cfg, decision, retrieved, systemPrompt, history, req, emit, result)
	}
	if decision.Mode == domain.ModeChunks {
		emitStep(emit, "generating from passages")
		chunkContext := FormatChunkContext(retrieved.AllChunks(), cfg.MaxContextChars)
		answer, err = s.streamer.StreamChunkMode(ctx, cfg, systemPrompt, history, chunkContext, req.EffectiveQuery(), emit.Token)
		if err != nil {
			emitError(emit, "answer generation failed")
			span.SetError(err)
			return domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "answer generation failed", err)
		}
		result.Sources = s.sources.ChunkSources(ctx, answer, retrieved.AllChunks())
	}

	result.Mode = decision.Mode
	result.OverrideReason = decision.OverrideReason
	result.DurationMS = s.now().Sub(started).Milliseconds()

	s.store.AppendAssistantTurn(ctx, conv.ID, answer, result.Sources, result.Mode, s.now().Sub(started))

	if err := emit.Sources(result); err != nil {
		return err
	}
	return emit.Done()
}

// answerFullDoc attempts full-document generation. Any failure flips the
// decision to chunk mode with a reason and lets the caller proceed; by the
// time an error can surface here no tokens have reached the client.
func (s *AnswerService) answerFullDoc(ctx context.Context, conv *domain.Conversation, cfg *domain.AgentConfig, decision ModeDecision, retrieved *RetrievalResult, systemPrompt string, history []PromptMessage, req *AskRequest, emit StreamEmitter, result *AnswerResult) (string, ModeDecision) {
	emitStep(emit, "preparing documents")
	cc, fb := s.filecache.Ensure(ctx, conv.ID, retrieved.Files, systemPrompt, cfg.FullDocModel, cfg)
	if fb != nil {
		log.Printf("full-document context fallback for conversation %s: %s: %v", conv.ID, fb.Reason, fb.Err)
		return "", ModeDecision{Mode: domain.ModeChunks, OverrideReason: fb.Reason}
	}
	result.CacheReused = cc.Reused

	emitStep(emit, "generating from documents")
	answer, err := s.streamer.StreamFullDoc(ctx, cfg, cc, systemPrompt, history, req.EffectiveQuery(), emit.Token)
	if err != nil {
		log.Printf("full-document generation fallback for conversation %s: %v", conv.ID, err)
		return "", ModeDecision{Mode: domain.ModeChunks, OverrideReason: "full-document generation failed"}
	}

	result.Sources = s.sources.FullDocSources(ctx, retrieved.Files, retrieved.Transcripts)
	return answer, decision
}

// answerFromMemory replays a trusted stored answer as a token stream.
func (s *AnswerService) answerFromMemory(ctx context.Context, conv *domain.Conversation, entry *domain.QAMemoryEntry, emit StreamEmitter, started time.Time) error {
	for _, tok := range ReplayTokens(entry.Answer) {
		if err := emit.Token(tok); err != nil {
			return err
		}
	}
	s.memory.RecordUse(ctx, entry.ID)

	duration := s.now().Sub(started)
	s.store.AppendAssistantTurn(ctx, conv.ID, entry.Answer, nil, domain.ModeMemory, duration)

	result := &AnswerResult{
		ConversationID: conv.ID,
		Mode:           domain.ModeMemory,
		DurationMS:     duration.Milliseconds(),
	}
	if err := emit.Sources(result); err != nil {
		return err
	}
	return emit.Done()
}

// loadContext resolves the conversation and the effective agent
// configuration concurrently.
func (s *AnswerService) loadContext(ctx context.Context, req *AskRequest) (*domain.Conversation, *domain.AgentConfig, error) {
	var (
		wg      sync.WaitGroup
		cfg     *domain.AgentConfig
		cfgErr  error
		conv    *domain.Conversation
		convErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		cfg, cfgErr = s.configs.Resolve(ctx, req.OrgID)
	}()

	// Conversation resolution needs the idle window from config, so run it
	// with the default window and accept the rare mismatch when a tenant
	// overrides it. Both lookups still overlap on the common path.
	wg.Add(1)
	go func() {
		defer wg.Done()
		conv, _, convErr = s.store.Resolve(ctx, req, domain.DefaultAgentConfig().ConversationIdle)
	}()

	wg.Wait()
	if cfgErr != nil {
		return nil, nil, cfgErr
	}
	if convErr != nil {
		return nil, nil, convErr
	}
	return conv, cfg, nil
}

// normalizeRequest applies request defaults: unset mode means auto, and no
// layer flags means all layers.
func normalizeRequest(req *AskRequest) {
	if req.Mode == "" {
		req.Mode = domain.ModeAuto
	}
	if !req.IncludeApp && !req.IncludeOrg && !req.IncludeProject && !req.IncludeUser {
		req.IncludeApp = true
		req.IncludeOrg = true
		req.IncludeProject = true
		req.IncludeUser = true
	}
}

func emitStep(emit StreamEmitter, label string) {
	if err := emit.Step(label); err != nil {
		log.Printf("step emit failed: %v", err)
	}
}

func emitError(emit StreamEmitter, message string) {
	if err := emit.Error(message); err != nil {
		log.Printf("error emit failed: %v", err)
	}
}
