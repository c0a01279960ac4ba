package domain

// QAMemoryEntry is a previously answered question held in the semantic
// QA memory. Matching is done by embedding similarity upstream; this type
// only carries the row and its usability gate.
type QAMemoryEntry struct {
	ID          string
	Question    string
	Answer      string
	Similarity  float32
	TrustScore  int
	IsExpertFAQ bool
	FileIDs     []string
}

// Usable reports whether a matched entry may be served. Expert-curated
// entries always pass; everything else needs the configured trust floor.
func (e *QAMemoryEntry) Usable(trustFloor int) bool {
	if e == nil {
		return false
	}
	return e.IsExpertFAQ || e.TrustScore >= trustFloor
}
