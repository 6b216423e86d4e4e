package domain

// SimilarEntry is one near-duplicate member of a cluster.
type SimilarEntry struct {
	Proposition Proposition `json:"proposition"`
	Score       float32     `json:"score"`
}

// ClusterResult groups an anchor proposition with its near-duplicates found
// by a batch similarity sweep. Each unordered near-duplicate pair appears in
// exactly one cluster, anchored at the smaller id.
type ClusterResult struct {
	Anchor  Proposition    `json:"anchor"`
	Similar []SimilarEntry `json:"similar"`
}
