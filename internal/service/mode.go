package service

import (
	"fmt"

	"github.com/docsage-ai/docsage/internal/domain"
)

// ModeDecision is the outcome of generation mode resolution. OverrideReason
// is set only when the request was steered away from full-document mode.
type ModeDecision struct {
	Mode           domain.GenerationMode
	OverrideReason string
}

// ResolveMode picks the generation mode for a request. An explicit chunk
// request always wins. Otherwise full-document mode requires candidate
// files, an available provider and a total page count within the limit;
// any failed condition degrades to chunk mode with a reason.
func ResolveMode(requested domain.GenerationMode, files []*domain.FileInfo, cfg *domain.AgentConfig, fullDocAvailable bool) ModeDecision {
	if requested == domain.ModeChunks {
		return ModeDecision{Mode: domain.ModeChunks}
	}

	if len(files) == 0 {
		return ModeDecision{
			Mode:           domain.ModeChunks,
			OverrideReason: "no candidate files retrieved",
		}
	}

	if !fullDocAvailable {
		return ModeDecision{
			Mode:           domain.ModeChunks,
			OverrideReason: "full-document provider unavailable",
		}
	}

	if total := domain.TotalPages(files); cfg.PageLimit > 0 && total > cfg.PageLimit {
		return ModeDecision{
			Mode:           domain.ModeChunks,
			OverrideReason: fmt.Sprintf("total pages exceed limit: %d > %d", total, cfg.PageLimit),
		}
	}

	return ModeDecision{Mode: domain.ModeGemini}
}
