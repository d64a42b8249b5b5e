package redis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/store"
)

func expectRegistered(c *mock.Client, member string) {
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SISMEMBER" && cmd[2] == member
		})).
		Return(mock.Result(mock.RedisInt64(1)))
}

// docReply builds one [key, fields] pair of an FT.SEARCH RESP2 reply.
func docReply(id, distance, content string, vector []float32, meta ...string) []rueidis.RedisMessage {
	fields := []rueidis.RedisMessage{
		mock.RedisString(scoreField), mock.RedisString(distance),
		mock.RedisString(fieldContent), mock.RedisString(content),
		mock.RedisString(fieldVector), mock.RedisString(vectorToBytes(vector)),
	}
	for i := 0; i+1 < len(meta); i += 2 {
		fields = append(fields, mock.RedisString(meta[i]), mock.RedisString(meta[i+1]))
	}
	return []rueidis.RedisMessage{
		mock.RedisString(DefaultKeyPrefix + "notes:" + id),
		mock.RedisArray(fields...),
	}
}

func TestQuery_ParsesKNNReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	expectRegistered(c, "notes")

	// The reply delivers the farther document first; the store must order
	// hits by distance regardless.
	reply := []rueidis.RedisMessage{mock.RedisInt64(2)}
	reply = append(reply, docReply("far", "0.4", "volcano eruptions", []float32{0, 1}, "subject", "geology")...)
	reply = append(reply, docReply("near", "0.1", "mitosis basics", []float32{1, 0}, "subject", "biology")...)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" &&
				strings.Contains(cmd[2], "KNN 10 @"+fieldVector) &&
				strings.Contains(cmd[2], "AS "+scoreField)
		})).
		Return(mock.Result(mock.RedisArray(reply...)))

	s := NewStoreForTest(c)
	hits, err := s.Query(context.Background(), "notes", []float32{1, 0}, 10, query.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "near" || hits[1].ID != "far" {
		t.Fatalf("hits not ordered by distance: %s, %s", hits[0].ID, hits[1].ID)
	}
	if hits[0].Distance != 0.1 || hits[1].Distance != 0.4 {
		t.Errorf("distances = %g, %g", hits[0].Distance, hits[1].Distance)
	}
	if hits[0].Content != "mitosis basics" {
		t.Errorf("content = %q", hits[0].Content)
	}
	if len(hits[0].Vector) != 2 || hits[0].Vector[0] != 1 {
		t.Errorf("vector = %v", hits[0].Vector)
	}
	if v, ok := hits[0].Meta.Get("subject"); !ok || v.Str() != "biology" {
		t.Errorf("metadata subject = %v (present %v)", v, ok)
	}
	// the distance alias is a reserved field, never metadata
	if _, ok := hits[0].Meta.Get(scoreField); ok {
		t.Error("score field leaked into metadata")
	}
}

func TestQuery_FilterOverfetchesAndKeepsNearest(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	expectRegistered(c, "notes")

	reply := []rueidis.RedisMessage{mock.RedisInt64(3)}
	reply = append(reply, docReply("d1", "0.05", "a", []float32{1}, "subject", "art")...)
	reply = append(reply, docReply("d2", "0.2", "b", []float32{1}, "subject", "math")...)
	reply = append(reply, docReply("d3", "0.1", "c", []float32{1}, "subject", "math")...)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			// k=1 with a filter over-fetches 4 candidates
			return cmd[0] == "FT.SEARCH" && strings.Contains(cmd[2], "KNN 4 @")
		})).
		Return(mock.Result(mock.RedisArray(reply...)))

	s := NewStoreForTest(c)
	f := query.Filter{}.Where("subject", metadata.String("math"))
	hits, err := s.Query(context.Background(), "notes", []float32{1}, 1, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ID != "d3" {
		t.Errorf("expected nearest matching hit d3, got %s", hits[0].ID)
	}
}

func TestQuery_UnknownCollection(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SISMEMBER"
		})).
		Return(mock.Result(mock.RedisInt64(0)))

	s := NewStoreForTest(c)
	_, err := s.Query(context.Background(), "ghost", []float32{1}, 5, query.Filter{})
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestQuery_MissingIndexMeansEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	expectRegistered(c, "notes")
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisError("no such index")))

	s := NewStoreForTest(c)
	hits, err := s.Query(context.Background(), "notes", []float32{1}, 5, query.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != nil {
		t.Errorf("expected nil hits, got %v", hits)
	}
}

func TestAdd_WritesHashAndRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(3)),
			mock.Result(mock.RedisInt64(1)),
		})

	s := NewStoreForTest(c)
	err := s.Add(context.Background(), "notes", []store.Item{
		{ID: "d1", Content: "hello", Vector: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdd_IndexAlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(3)),
			mock.Result(mock.RedisInt64(1)),
		})

	s := NewStoreForTest(c)
	err := s.Add(context.Background(), "notes", []store.Item{
		{ID: "d1", Content: "hello", Vector: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", DefaultKeyPrefix+"notes:d1")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Delete(context.Background(), "notes", "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", DefaultKeyPrefix+"notes:ghost")).
		Return(mock.Result(mock.RedisInt64(0)))

	s := NewStoreForTest(c)
	err := s.Delete(context.Background(), "notes", "ghost")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestCount_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	expectRegistered(c, "notes")
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[len(cmd)-1] == "0"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	s := NewStoreForTest(c)
	count, err := s.Count(context.Background(), "notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Errorf("expected 42, got %d", count)
	}
}

func TestCollections_Sorted(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SMEMBERS"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisString("physics"),
			mock.RedisString("biology"),
		)))

	s := NewStoreForTest(c)
	names, err := s.Collections(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "biology" || names[1] != "physics" {
		t.Errorf("unexpected collections: %v", names)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
