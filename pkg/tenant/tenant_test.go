package tenant_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/storage/inmemory"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/tenant"
)

var _ = Describe("Payload", func() {
	It("parses user:company as a TokenV2", func() {
		p, err := tenant.ParsePayload("alice:acme")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(tenant.TokenV2{Name: "alice", Company: "acme"}))
		Expect(p.User()).To(Equal("alice"))
	})

	It("parses a bare user as a legacy TokenV1", func() {
		p, err := tenant.ParsePayload("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(tenant.TokenV1{Name: "alice"}))
	})

	It("rejects empty and half empty payloads", func() {
		for _, s := range []string{"", ":acme", "alice:"} {
			_, err := tenant.ParsePayload(s)
			Expect(err).To(HaveOccurred(), s)
		}
	})

	It("encodes back to the stored form", func() {
		Expect(tenant.EncodePayload(tenant.TokenV2{Name: "a", Company: "b"})).To(Equal("a:b"))
		Expect(tenant.EncodePayload(tenant.TokenV1{Name: "a"})).To(Equal("a"))
	})
})

var _ = Describe("Service", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
		svc   *tenant.Service
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		svc = tenant.New(store,
			tenant.WithBcryptCost(bcrypt.MinCost),
			tenant.WithClock(func() time.Time { return now }),
		)
	})

	Describe("companies", func() {
		It("registers a company with every feature enabled", func() {
			token, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(HaveLen(64))

			c, err := svc.AuthenticateCompany(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Name).To(Equal("acme"))
			Expect(c.Flags).To(Equal(storage.DefaultFlags()))
			Expect(c.PasswordHash).NotTo(Equal("pw"))
		})

		It("rejects a duplicate registration as a conflict", func() {
			_, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "other"})
			Expect(storage.IsConflict(err)).To(BeTrue())
		})

		It("rejects missing fields", func() {
			_, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme"})
			Expect(storage.IsValidation(err)).To(BeTrue())
		})

		It("revokes the previous token on login", func() {
			first, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())

			second, err := svc.LoginCompany(ctx, "acme", "pw")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).NotTo(Equal(first))

			_, err = svc.AuthenticateCompany(ctx, first)
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
			_, err = svc.AuthenticateCompany(ctx, second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a wrong password", func() {
			_, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.LoginCompany(ctx, "acme", "nope")
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
			_, err = svc.LoginCompany(ctx, "ghost", "pw")
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
		})

		It("rotates the key", func() {
			first, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())

			rotated, err := svc.RotateKey(ctx, "acme")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.AuthenticateCompany(ctx, first)
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
			c, err := svc.AuthenticateCompany(ctx, rotated)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Token).To(Equal(rotated))
		})

		It("patches flags", func() {
			_, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())

			off := false
			flags, err := svc.UpdateFlags(ctx, "acme", storage.FlagsPatch{EnableFacts: &off})
			Expect(err).NotTo(HaveOccurred())
			Expect(flags).To(Equal(storage.Flags{EnableSummary: true, EnableFacts: false, EnableCalendar: true}))

			stored, err := svc.Flags(ctx, "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal(flags))
		})

		It("treats an unknown company as fully enabled", func() {
			flags, err := svc.Flags(ctx, "ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(flags).To(Equal(storage.DefaultFlags()))
		})

		It("rejects a user token as a company token", func() {
			_, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: "acme", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())
			userToken, err := svc.RegisterUser(ctx, "alice", "pw", "acme")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.AuthenticateCompany(ctx, userToken)
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
		})
	})

	Describe("users", func() {
		BeforeEach(func() {
			for _, c := range []string{"acme", "globex"} {
				_, err := svc.RegisterCompany(ctx, tenant.CompanyRegistration{Name: c, Password: "pw"})
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("authenticates a registered user", func() {
			token, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
			Expect(err).NotTo(HaveOccurred())

			u, err := svc.Authenticate(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Entity()).To(Equal(stream.Entity{Company: "acme", ID: "alice"}))
		})

		It("requires an existing company", func() {
			_, err := svc.RegisterUser(ctx, "alice", "secret", "ghost")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("conflicts on a duplicate within a company but not across companies", func() {
			_, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.RegisterUser(ctx, "alice", "secret", "acme")
			Expect(storage.IsConflict(err)).To(BeTrue())

			_, err = svc.RegisterUser(ctx, "alice", "secret", "globex")
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps same named users of two companies apart", func() {
			acmeToken, err := svc.RegisterUser(ctx, "u1", "a", "acme")
			Expect(err).NotTo(HaveOccurred())
			globexToken, err := svc.RegisterUser(ctx, "u1", "b", "globex")
			Expect(err).NotTo(HaveOccurred())

			a, err := svc.Authenticate(ctx, acmeToken)
			Expect(err).NotTo(HaveOccurred())
			g, err := svc.Authenticate(ctx, globexToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Entity()).NotTo(Equal(g.Entity()))

			_, err = svc.LoginUser(ctx, "u1", "a", "")
			Expect(storage.IsValidation(err)).To(BeTrue())

			_, err = svc.LoginUser(ctx, "u1", "a", "globex")
			Expect(err).To(MatchError(tenant.ErrUnauthorized))

			_, err = svc.LoginUser(ctx, "u1", "a", "acme")
			Expect(err).NotTo(HaveOccurred())
		})

		It("revokes the previous token on login", func() {
			first, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
			Expect(err).NotTo(HaveOccurred())

			second, err := svc.LoginUser(ctx, "alice", "secret", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Authenticate(ctx, first)
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
			_, err = svc.Authenticate(ctx, second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("expires tokens after the ttl", func() {
			svc = tenant.New(store,
				tenant.WithBcryptCost(bcrypt.MinCost),
				tenant.WithTokenTTL(time.Hour),
				tenant.WithClock(func() time.Time { return now }),
			)
			token, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(59 * time.Minute)
			_, err = svc.Authenticate(ctx, token)
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(2 * time.Minute)
			_, err = svc.Authenticate(ctx, token)
			Expect(err).To(MatchError(tenant.ErrUnauthorized))

			_, err = store.Token(ctx, token)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("rejects unknown and empty tokens", func() {
			_, err := svc.Authenticate(ctx, "")
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
			_, err = svc.Authenticate(ctx, "nope")
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
		})

		It("rejects a token whose company no longer binds the user", func() {
			_, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
			Expect(err).NotTo(HaveOccurred())

			Expect(store.PutToken(ctx, storage.Token{
				Value:   "forged",
				Kind:    storage.TokenKindUser,
				Payload: "alice:globex",
			})).To(Succeed())

			_, err = svc.Authenticate(ctx, "forged")
			Expect(err).To(MatchError(tenant.ErrUnauthorized))
		})

		Context("legacy tokens", func() {
			BeforeEach(func() {
				Expect(store.PutToken(ctx, storage.Token{
					Value:   "legacy",
					Kind:    storage.TokenKindUser,
					Payload: "alice",
				})).To(Succeed())
			})

			It("resolves the company by lookup", func() {
				_, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
				Expect(err).NotTo(HaveOccurred())

				u, err := svc.Authenticate(ctx, "legacy")
				Expect(err).NotTo(HaveOccurred())
				Expect(u.Company).To(Equal("acme"))
			})

			It("is unauthorized when the name is ambiguous", func() {
				_, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
				Expect(err).NotTo(HaveOccurred())
				_, err = svc.RegisterUser(ctx, "alice", "secret", "globex")
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.Authenticate(ctx, "legacy")
				Expect(err).To(MatchError(tenant.ErrUnauthorized))
			})
		})

		Describe("Authorize", func() {
			It("allows the caller's own entity", func() {
				token, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
				Expect(err).NotTo(HaveOccurred())
				u, err := svc.Authenticate(ctx, token)
				Expect(err).NotTo(HaveOccurred())

				entity, err := svc.Authorize(ctx, u, "alice")
				Expect(err).NotTo(HaveOccurred())
				Expect(entity).To(Equal(stream.Entity{Company: "acme", ID: "alice"}))
			})

			It("forbids acting as another entity", func() {
				token, err := svc.RegisterUser(ctx, "alice", "secret", "acme")
				Expect(err).NotTo(HaveOccurred())
				u, err := svc.Authenticate(ctx, token)
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.Authorize(ctx, u, "bob")
				Expect(err).To(MatchError(tenant.ErrForbidden))
			})

			It("forbids an entity that is not bound to its company", func() {
				err := svc.CheckBinding(ctx, stream.Entity{Company: "globex", ID: "alice"})
				Expect(err).To(MatchError(tenant.ErrForbidden))
			})
		})
	})
})
