package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/repository/storetest"
	"github.com/stretchr/testify/require"
)

// Runs against the server named by MONGO_TEST_URI, one database per subtest
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	storetest.Run(t, func(t *testing.T) *domain.Store {
		ctx := context.Background()
		name := fmt.Sprintf("codemuse_test_%d", time.Now().UnixNano())

		d, err := Connect(ctx, uri, name)
		require.NoError(t, err)
		t.Cleanup(func() {
			d.db.Drop(context.Background())
			d.Close()
		})

		return NewStore(d)
	})
}
