package proto

import "testing"

func TestStatusStringFallsBackToUnknown(t *testing.T) {
	if got := Status(999).String(); got != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN, got %s", got)
	}
	if got := StatusSuccess.String(); got != "SUCCESS" {
		t.Fatalf("expected SUCCESS, got %s", got)
	}
}

func TestChunkIdInfoCopyset(t *testing.T) {
	id := ChunkIdInfo{LogicalPoolID: 1, CopysetID: 2, ChunkID: 3}
	key := id.Copyset()
	if key.LogicalPoolID != 1 || key.CopysetID != 2 {
		t.Fatalf("unexpected copyset key: %+v", key)
	}
}
