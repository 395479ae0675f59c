package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/storage/postgres"
	"github.com/papercomputeco/threads/pkg/storage/storagetest"
	"github.com/papercomputeco/threads/pkg/stream"
)

// dsn skips the calling test unless a test database is configured.
func dsn() string {
	v := os.Getenv("THREADS_TEST_POSTGRES_DSN")
	if v == "" {
		Skip("THREADS_TEST_POSTGRES_DSN not set")
	}
	return v
}

var _ = Describe("Driver", func() {
	storagetest.DriverBehaviour(func() storage.Driver {
		ctx := context.Background()
		d, err := postgres.NewDriver(ctx, dsn())
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Truncate(ctx)).To(Succeed())
		return d
	})

	It("fails to connect to an unreachable server", func() {
		dsn()
		_, err := postgres.NewDriver(context.Background(), "host=invalid port=9999 user=bad dbname=bad sslmode=disable connect_timeout=1")
		Expect(err).To(MatchError(ContainSubstring("connecting to postgres")))
	})

	It("migrates an existing schema again without losing streams", func() {
		ctx := context.Background()
		key := stream.DefaultKey(stream.Entity{Company: "acme", ID: "alice"})

		d, err := postgres.NewDriver(ctx, dsn())
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Truncate(ctx)).To(Succeed())
		_, err = d.Append(ctx, key, stream.NewTextMessage(stream.RoleUser, "hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Close()).To(Succeed())

		d, err = postgres.NewDriver(ctx, dsn())
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		n, err := d.Length(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})
})
