package service

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
)

// SourceLinkerInterface generates client-facing download links for stored documents.
type SourceLinkerInterface interface {
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

var citePattern = regexp.MustCompile(`<cite\s+doc="([^"]+)"`)

// CitedDocIDs extracts the document ids referenced by inline cite tags.
func CitedDocIDs(answer string) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range citePattern.FindAllStringSubmatch(answer, -1) {
		ids[m[1]] = true
	}
	return ids
}

// SourceBuilder assembles the source attributions sent after an answer.
type SourceBuilder struct {
	linker SourceLinkerInterface
}

// NewSourceBuilder creates a new SourceBuilder instance. The linker may be
// nil, in which case sources carry no download links.
func NewSourceBuilder(linker SourceLinkerInterface) *SourceBuilder {
	return &SourceBuilder{linker: linker}
}

// FullDocSources attributes a full-document answer: every candidate file
// went into the context, so every candidate is a source, plus any
// transcript passages that were retrieved alongside them.
func (b *SourceBuilder) FullDocSources(ctx context.Context, files []*domain.FileInfo, transcripts []*domain.Chunk) []domain.SourceRef {
	refs := make([]domain.SourceRef, 0, len(files)+len(transcripts))
	for _, f := range files {
		refs = append(refs, domain.SourceRef{
			FileID:      f.ID,
			Name:        f.Name,
			Layer:       f.Layer,
			Pages:       f.PageCount,
			Similarity:  f.BestSimilarity,
			SourceType:  domain.SourceTypeDocument,
			DownloadURL: b.link(ctx, f.StorageKey),
		})
	}
	refs = append(refs, transcriptRefs(transcripts)...)
	return refs
}

// ChunkSources attributes a chunk-grounded answer. Only documents the model
// actually referenced count: either through an inline cite tag or by
// mentioning the document name verbatim. When the model cited nothing, the
// single best-ranked chunk stands in so an answer never arrives sourceless.
func (b *SourceBuilder) ChunkSources(ctx context.Context, answer string, chunks []*domain.Chunk) []domain.SourceRef {
	cited := CitedDocIDs(answer)

	var refs []domain.SourceRef
	seen := make(map[string]bool)
	for _, c := range chunks {
		if !c.FileBacked() || seen[c.FileID] {
			continue
		}
		if !cited[c.FileID] && !nameMentioned(answer, c.FileName) {
			continue
		}
		seen[c.FileID] = true
		refs = append(refs, b.chunkRef(ctx, c))
	}

	if len(refs) == 0 && len(chunks) > 0 {
		best := chunks[0]
		for _, c := range chunks[1:] {
			if c.RankScore > best.RankScore {
				best = c
			}
		}
		refs = append(refs, b.chunkRef(ctx, best))
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Similarity > refs[j].Similarity })
	return refs
}

func (b *SourceBuilder) chunkRef(ctx context.Context, c *domain.Chunk) domain.SourceRef {
	ref := domain.SourceRef{
		FileID:     c.FileID,
		Name:       c.FileName,
		Layer:      c.Layer,
		Pages:      c.PageCount,
		Similarity: c.Similarity,
		SourceType: c.SourceType,
	}
	if c.FileBacked() {
		ref.DownloadURL = b.link(ctx, c.StorageKey)
	}
	return ref
}

func (b *SourceBuilder) link(ctx context.Context, storageKey string) string {
	if b.linker == nil || storageKey == "" {
		return ""
	}
	url, err := b.linker.GenerateDownloadURL(ctx, storageKey)
	if err != nil {
		log.Printf("download link generation failed for %s: %v", storageKey, err)
		return ""
	}
	return url
}

func transcriptRefs(transcripts []*domain.Chunk) []domain.SourceRef {
	refs := make([]domain.SourceRef, 0, len(transcripts))
	for _, c := range transcripts {
		refs = append(refs, domain.SourceRef{
			Name:       c.FileName,
			Layer:      c.Layer,
			Similarity: c.Similarity,
			SourceType: c.SourceType,
		})
	}
	return refs
}

func nameMentioned(answer, name string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(answer), strings.ToLower(name))
}
