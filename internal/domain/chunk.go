package domain

// Layer is the tenant-scoping tier a document belongs to.
type Layer string

const (
	LayerApp     Layer = "app"
	LayerOrg     Layer = "org"
	LayerProject Layer = "project"
	LayerUser    Layer = "user"
)

// LayerPriority is the fixed ordering used when assembling chunk context.
var LayerPriority = []Layer{LayerApp, LayerOrg, LayerProject, LayerUser}

// Valid reports whether the layer is one of the known tiers.
func (l Layer) Valid() bool {
	switch l {
	case LayerApp, LayerOrg, LayerProject, LayerUser:
		return true
	}
	return false
}

// Source types attached to retrieved chunks. Anything other than a document
// (meeting transcripts, for now) is never a candidate for full-document mode.
const (
	SourceTypeDocument   = "document"
	SourceTypeTranscript = "transcript"
)

// Chunk is a scored passage returned by ranked retrieval. Ephemeral,
// produced per request.
type Chunk struct {
	ID         string
	Content    string
	Similarity float32
	RankScore  float32
	Layer      Layer
	FileID     string
	FileName   string
	StorageKey string
	MimeType   string
	PageCount  int
	ChunkCount int
	SourceType string
	Concepts   []string
	Boosted    bool
}

// FileBacked reports whether the chunk can contribute a full-document candidate.
func (c *Chunk) FileBacked() bool {
	return c.FileID != "" && c.SourceType == SourceTypeDocument
}

// FileInfo is a retrieval-deduplicated source document, derived by grouping
// file-backed chunks by file id.
type FileInfo struct {
	ID             string
	Name           string
	StorageKey     string
	MimeType       string
	PageCount      int
	ChunkCount     int
	BestSimilarity float32
	Layer          Layer
}

// TotalPages sums the page counts of a candidate file set.
func TotalPages(files []*FileInfo) int {
	total := 0
	for _, f := range files {
		total += f.PageCount
	}
	return total
}
