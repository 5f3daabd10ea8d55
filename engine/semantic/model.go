package semantic

// Point is a stored point as read back from Qdrant.
type Point struct {
	ID      uint64
	Score   float32 // set by Search only
	Payload map[string]any
}

// VectorRecord is a single point to write into Qdrant.
type VectorRecord struct {
	ID        uint64
	Embedding []float32
	Payload   map[string]any // isim, toplam_mesai, tarih_araligi, gunluk_mesai
}
