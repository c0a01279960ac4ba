package service

import (
	"context"
	"sort"

	"github.com/docsage-ai/docsage/internal/domain"
)

// RetrievalParams parameterizes one ranked-retrieval call.
type RetrievalParams struct {
	Embedding       []float32
	QueryText       string
	OrgID           string
	ProjectID       string
	UserID          string
	IncludeApp      bool
	IncludeOrg      bool
	IncludeProject  bool
	IncludeUser     bool
	MatchCount      int
	SimilarityFloor float32
	ExpandConcepts  bool
	BoostFileIDs    []string
	BoostFactor     float32
}

// RetrievalRow is one raw result row from the ranked-retrieval function.
// Conversion into domain types happens here at the service boundary.
type RetrievalRow struct {
	ChunkID    string
	Content    string
	Similarity float32
	RankScore  float32
	Layer      string
	FileID     *string
	FileName   *string
	StorageKey *string
	MimeType   *string
	PageCount  int
	ChunkCount int
	SourceType string
	Concepts   []string
	Boosted    bool
}

// RetrievalRepositoryInterface defines the repository interface for ranked retrieval.
type RetrievalRepositoryInterface interface {
	Search(ctx context.Context, p RetrievalParams) ([]*RetrievalRow, error)
}

// RetrievalResult holds the normalized output of one retrieval pass.
// Chunks are file-backed document passages; Transcripts are meeting-style
// sources without a backing file. Files is the deduplicated candidate set
// for full-document mode, carrying the best similarity seen per file.
type RetrievalResult struct {
	Chunks      []*domain.Chunk
	Transcripts []*domain.Chunk
	Files       []*domain.FileInfo
}

// AllChunks returns every retrieved chunk in rank order, documents and
// transcripts interleaved as the ranking produced them.
func (r *RetrievalResult) AllChunks() []*domain.Chunk {
	all := make([]*domain.Chunk, 0, len(r.Chunks)+len(r.Transcripts))
	all = append(all, r.Chunks...)
	all = append(all, r.Transcripts...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].RankScore > all[j].RankScore })
	return all
}

// RetrievalService runs ranked retrieval and normalizes rows into domain types.
type RetrievalService struct {
	repo RetrievalRepositoryInterface
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(repo RetrievalRepositoryInterface) *RetrievalService {
	return &RetrievalService{repo: repo}
}

// Retrieve runs one ranked-retrieval call for the request and splits the
// results into file-backed chunks, transcripts and candidate files.
func (s *RetrievalService) Retrieve(ctx context.Context, req *AskRequest, embedding []float32, cfg *domain.AgentConfig) (*RetrievalResult, error) {
	rows, err := s.repo.Search(ctx, RetrievalParams{
		Embedding:       embedding,
		QueryText:       req.EffectiveQuery(),
		OrgID:           req.OrgID,
		ProjectID:       req.ProjectID,
		UserID:          req.UserID,
		IncludeApp:      req.IncludeApp,
		IncludeOrg:      req.IncludeOrg,
		IncludeProject:  req.IncludeProject,
		IncludeUser:     req.IncludeUser,
		MatchCount:      cfg.MatchCount,
		SimilarityFloor: cfg.SimilarityFloor,
		ExpandConcepts:  true,
		BoostFileIDs:    req.BoostFileIDs,
		BoostFactor:     cfg.BoostFactor,
	})
	if err != nil {
		return nil, err
	}

	typeFilter := sourceTypeSet(req.SourceTypes)

	result := &RetrievalResult{}
	seen := make(map[string]*domain.FileInfo)
	for _, row := range rows {
		chunk := normalizeRow(row)
		if chunk.Content == "" {
			continue
		}
		if typeFilter != nil && !typeFilter[chunk.SourceType] {
			continue
		}

		if !chunk.FileBacked() {
			result.Transcripts = append(result.Transcripts, chunk)
			continue
		}
		result.Chunks = append(result.Chunks, chunk)

		info, ok := seen[chunk.FileID]
		if !ok {
			info = &domain.FileInfo{
				ID:             chunk.FileID,
				Name:           chunk.FileName,
				StorageKey:     chunk.StorageKey,
				MimeType:       chunk.MimeType,
				PageCount:      chunk.PageCount,
				ChunkCount:     chunk.ChunkCount,
				BestSimilarity: chunk.Similarity,
				Layer:          chunk.Layer,
			}
			seen[chunk.FileID] = info
			result.Files = append(result.Files, info)
			continue
		}
		if chunk.Similarity > info.BestSimilarity {
			info.BestSimilarity = chunk.Similarity
		}
	}
	return result, nil
}

func normalizeRow(row *RetrievalRow) *domain.Chunk {
	chunk := &domain.Chunk{
		ID:         row.ChunkID,
		Content:    row.Content,
		Similarity: row.Similarity,
		RankScore:  row.RankScore,
		Layer:      domain.Layer(row.Layer),
		PageCount:  row.PageCount,
		ChunkCount: row.ChunkCount,
		SourceType: row.SourceType,
		Concepts:   row.Concepts,
		Boosted:    row.Boosted,
	}
	if !chunk.Layer.Valid() {
		chunk.Layer = domain.LayerApp
	}
	if chunk.SourceType == "" {
		chunk.SourceType = domain.SourceTypeDocument
	}
	if row.FileID != nil {
		chunk.FileID = *row.FileID
	}
	if row.FileName != nil {
		chunk.FileName = *row.FileName
	}
	if row.StorageKey != nil {
		chunk.StorageKey = *row.StorageKey
	}
	if row.MimeType != nil {
		chunk.MimeType = *row.MimeType
	}
	return chunk
}

func sourceTypeSet(types []string) map[string]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		if t != "" {
			set[t] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
