package exec

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"split-harness-go/cache"
	"split-harness-go/exchange"
	"split-harness-go/operators/source"
	"split-harness-go/plan"
	"split-harness-go/storage"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestSplitString(t *testing.T) {
	m := NewMemorySplit()
	require.Equal(t, "memory(0 batches, 0 rows)", NewSplit(m).String())
	require.Equal(t, "memory(0 batches, 0 rows)@group2", NewGroupedSplit(m, 2).String())
	require.Equal(t, UngroupedGroupID, NewSplit(m).GroupID)
}

func TestFormatFromKey(t *testing.T) {
	require.Equal(t, FormatParquet, FormatFromKey("a/b/people.PARQUET"))
	require.Equal(t, FormatCSV, FormatFromKey("people.csv"))
}

func localStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileSplitsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := localStore(t)

	csvData := "id,name\n1,a\n2,b\n"
	require.NoError(t, store.Put(ctx, "people.csv", strings.NewReader(csvData), int64(len(csvData))))

	var buf bytes.Buffer
	b := peopleBatch(t, []int64{3, 4}, []string{"c", "d"})
	defer b.Release()
	require.NoError(t, source.WriteParquet(&buf, peopleSchema, 1024, b))
	require.NoError(t, store.Put(ctx, "people.parquet", bytes.NewReader(buf.Bytes()), int64(buf.Len())))

	provider := cache.NewProvider()
	bounded := provider.EnableBoundedCache(ctx, 1<<20)

	run := func() []int64 {
		task, err := NewTask(ctx, scanPlan(t, ""), WithCache(provider.Active()))
		require.NoError(t, err)
		defer task.Close()
		require.NoError(t, task.AddSplit("0", NewSplit(NewFileSplit(store, "people.csv"))))
		require.NoError(t, task.AddSplit("0", NewSplit(NewFileSplit(store, "people.parquet"))))
		require.NoError(t, task.NoMoreSplits("0"))
		ids, _ := drain(t, task)
		return ids
	}

	require.Equal(t, []int64{1, 2, 3, 4}, run())
	require.Equal(t, int64(2), bounded.Stats().Misses)
	require.True(t, bounded.Contains("local:people.csv"))

	// second run is served from the cache even once the files are gone
	require.NoError(t, store.Delete(ctx, "people.csv"))
	require.NoError(t, store.Delete(ctx, "people.parquet"))
	require.Equal(t, []int64{1, 2, 3, 4}, run())
	require.Equal(t, int64(2), bounded.Stats().Hits)

	t.Run("passthrough reads the store every time", func(t *testing.T) {
		provider.Disable()
		task, err := NewTask(ctx, scanPlan(t, ""), WithCache(provider.Active()))
		require.NoError(t, err)
		defer task.Close()
		require.NoError(t, task.AddSplit("0", NewSplit(NewFileSplit(store, "people.csv"))))
		require.NoError(t, task.NoMoreSplits("0"))
		_, err = task.Next(ctx)
		require.ErrorIs(t, err, storage.ErrObjectNotFound)
	})
}

func TestExchangeSplit(t *testing.T) {
	ctx := context.Background()
	lis := bufconn.Listen(1 << 20)
	server := exchange.NewServer(nil)
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := exchange.NewClient(conn)

	// producer task scanning memory splits
	producer, err := NewTask(ctx, scanPlan(t, "id <> 2"))
	require.NoError(t, err)
	defer producer.Close()
	b := peopleBatch(t, []int64{1, 2, 3}, []string{"a", "b", "c"})
	defer b.Release()
	require.NoError(t, producer.AddSplit("0", NewSplit(NewMemorySplit(b))))
	require.NoError(t, producer.NoMoreSplits("0"))
	server.Register(producer.ID(), producer)

	root, err := plan.NewBuilder(nil).Exchange(peopleSchema).Plan()
	require.NoError(t, err)
	consumer, err := NewTask(ctx, root)
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.AddSplit("0", NewSplit(NewExchangeSplit(client, producer.ID()))))
	require.NoError(t, consumer.NoMoreSplits("0"))

	ids, _ := drain(t, consumer)
	require.Equal(t, []int64{1, 3}, ids)
	require.Equal(t, 0, server.Pending())
}
