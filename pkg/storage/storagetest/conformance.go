// Package storagetest holds behaviour shared by every storage.Driver
// implementation, expressed as ginkgo specs that driver packages run against
// their own constructor.
package storagetest

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
)

// Factory opens a fresh, empty driver.
type Factory func() storage.Driver

// DriverBehaviour registers the shared driver specs. Call it from inside a
// Describe of the driver's test package.
func DriverBehaviour(open Factory) {
	var (
		driver storage.Driver
		ctx    context.Context
		alice  stream.Entity
		key    stream.Key
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = open()
		alice = stream.Entity{Company: "acme", ID: "alice"}
		key = stream.DefaultKey(alice)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
			driver = nil
		}
	})

	appendText := func(k stream.Key, text string) stream.EntryID {
		id, err := driver.Append(ctx, k, stream.NewTextMessage(stream.RoleUser, text))
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	Describe("streams", func() {
		It("assigns strictly increasing IDs", func() {
			var prev stream.EntryID
			for range 20 {
				id := appendText(key, "hi")
				Expect(prev.Less(id)).To(BeTrue())
				prev = id
			}

			n, err := driver.Length(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(20)))
		})

		It("keeps IDs unique under concurrent appends", func() {
			const writers, each = 8, 10

			var (
				mu  sync.Mutex
				ids = map[stream.EntryID]bool{}
				wg  sync.WaitGroup
			)
			for range writers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for range each {
						id, err := driver.Append(ctx, key, stream.NewTextMessage(stream.RoleUser, "x"))
						Expect(err).NotTo(HaveOccurred())
						mu.Lock()
						ids[id] = true
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(ids).To(HaveLen(writers * each))

			entries, err := driver.ReadRange(ctx, key, nil, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(writers * each))
			for i := 1; i < len(entries); i++ {
				Expect(entries[i-1].ID.Less(entries[i].ID)).To(BeTrue())
			}
		})

		It("round-trips message fields", func() {
			msg := stream.Message{
				Role:       stream.RoleAssistant,
				Content:    "hello there",
				Type:       stream.TypeText,
				TS:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Importance: 7,
				Extra:      map[string]any{"lang": "en"},
			}
			id, err := driver.Append(ctx, key, msg)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, key, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(id))
			Expect(got.Message.Role).To(Equal(stream.RoleAssistant))
			Expect(got.Message.Content).To(Equal("hello there"))
			Expect(got.Message.Importance).To(Equal(7))
			Expect(got.Message.TS.Equal(msg.TS)).To(BeTrue())
			Expect(got.Message.ExtraString("lang")).To(Equal("en"))
		})

		It("reads inclusive ranges and respects the limit", func() {
			ids := make([]stream.EntryID, 5)
			for i := range ids {
				ids[i] = appendText(key, "m")
			}

			entries, err := driver.ReadRange(ctx, key, &ids[1], &ids[3], 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(stream.IDs(entries)).To(Equal(ids[1:4]))

			entries, err = driver.ReadRange(ctx, key, &ids[1], nil, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(stream.IDs(entries)).To(Equal(ids[1:3]))
		})

		It("reads recent entries newest first", func() {
			a := appendText(key, "a")
			b := appendText(key, "b")
			c := appendText(key, "c")

			entries, err := driver.ReadRecent(ctx, key, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(stream.IDs(entries)).To(Equal([]stream.EntryID{c, b}))

			entries, err = driver.ReadRecent(ctx, key, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(stream.IDs(entries)).To(Equal([]stream.EntryID{c, b, a}))
		})

		It("reads an unknown stream as empty", func() {
			entries, err := driver.ReadRange(ctx, stream.ChatKey(alice, "nope"), nil, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())

			n, err := driver.Length(ctx, stream.ChatKey(alice, "nope"))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("never reuses the ID of a deleted entry", func() {
			appendText(key, "a")
			last := appendText(key, "b")

			ok, err := driver.Delete(ctx, key, last)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = driver.Delete(ctx, key, last)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			_, err = driver.Get(ctx, key, last)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			next := appendText(key, "c")
			Expect(last.Less(next)).To(BeTrue())

			n, err := driver.Length(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
		})

		It("keeps chat streams apart from the default stream", func() {
			chat := stream.ChatKey(alice, "work")
			appendText(key, "default")
			appendText(chat, "work")
			appendText(chat, "work again")

			n, err := driver.Length(ctx, chat)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))

			keys, err := driver.Streams(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ConsistOf(key, chat))
		})

		It("isolates entities sharing an ID across companies", func() {
			other := stream.DefaultKey(stream.Entity{Company: "globex", ID: "alice"})
			appendText(key, "acme secret")

			entries, err := driver.ReadRange(ctx, other, nil, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Describe("cursors", func() {
		It("starts unset", func() {
			cur, err := driver.Cursor(ctx, alice, "facts")
			Expect(err).NotTo(HaveOccurred())
			Expect(cur).To(BeNil())
		})

		It("never moves backwards", func() {
			hi := stream.EntryID{Ms: 20}
			lo := stream.EntryID{Ms: 10}

			moved, err := driver.Advance(ctx, alice, "facts", hi)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(BeTrue())

			moved, err = driver.Advance(ctx, alice, "facts", lo)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(BeFalse())

			moved, err = driver.Advance(ctx, alice, "facts", hi)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(BeFalse())

			cur, err := driver.Cursor(ctx, alice, "facts")
			Expect(err).NotTo(HaveOccurred())
			Expect(*cur).To(Equal(hi))

			other, err := driver.Cursor(ctx, alice, "tags")
			Expect(err).NotTo(HaveOccurred())
			Expect(other).To(BeNil())
		})
	})

	Describe("facts", func() {
		It("has set semantics", func() {
			n, err := driver.AddFacts(ctx, alice, "likes tea", "lives in Oslo", "likes tea")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			n, err = driver.AddFacts(ctx, alice, "likes tea")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			facts, err := driver.Facts(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(Equal([]string{"likes tea", "lives in Oslo"}))

			ok, err := driver.DeleteFact(ctx, alice, "likes tea")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = driver.DeleteFact(ctx, alice, "likes tea")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("tags", func() {
		It("clears both directions when set to nil", func() {
			a := appendText(key, "a")
			Expect(driver.SetTags(ctx, key, a, []string{"travel"})).To(Succeed())
			Expect(driver.SetTags(ctx, key, a, nil)).To(Succeed())

			ids, err := driver.TaggedIDs(ctx, key, "travel", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())

			tags, err := driver.Tags(ctx, key, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(tags).To(BeEmpty())
		})

		It("keeps both directions consistent when retagging", func() {
			a := appendText(key, "a")
			b := appendText(key, "b")

			Expect(driver.SetTags(ctx, key, a, []string{"travel", "food"})).To(Succeed())
			Expect(driver.SetTags(ctx, key, b, []string{"travel"})).To(Succeed())

			ids, err := driver.TaggedIDs(ctx, key, "travel", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]stream.EntryID{a, b}))

			Expect(driver.SetTags(ctx, key, a, []string{"work"})).To(Succeed())

			ids, err = driver.TaggedIDs(ctx, key, "travel", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]stream.EntryID{b}))

			ids, err = driver.TaggedIDs(ctx, key, "food", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())

			tags, err := driver.Tags(ctx, key, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(tags).To(ConsistOf("work"))

			tags, err = driver.Tags(ctx, key, appendText(key, "c"))
			Expect(err).NotTo(HaveOccurred())
			Expect(tags).To(BeNil())
		})
	})

	Describe("calendar", func() {
		at := func(h int) time.Time {
			return time.Date(2026, 3, 1, h, 0, 0, 0, time.UTC)
		}

		It("addresses events by position in time order", func() {
			_, err := driver.AddEvent(ctx, storage.CalendarEvent{Entity: alice, At: at(12), Text: "lunch", TZ: "UTC"})
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.AddEvent(ctx, storage.CalendarEvent{Entity: alice, At: at(9), Text: "standup", TZ: "UTC"})
			Expect(err).NotTo(HaveOccurred())

			events, err := driver.Events(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].Text).To(Equal("standup"))
			Expect(events[1].Text).To(Equal("lunch"))

			text := "late lunch"
			later := at(14)
			updated, err := driver.UpdateEvent(ctx, alice, 1, storage.EventPatch{Text: &text, At: &later})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Text).To(Equal("late lunch"))

			Expect(driver.DeleteEvent(ctx, alice, 0)).To(Succeed())

			events, err = driver.Events(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Text).To(Equal("late lunch"))
			Expect(events[0].At.Equal(later)).To(BeTrue())
		})

		It("reports out of range positions as not found", func() {
			err := driver.DeleteEvent(ctx, alice, 3)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			_, err = driver.UpdateEvent(ctx, alice, -1, storage.EventPatch{})
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns due events until they are delivered", func() {
			ev, err := driver.AddEvent(ctx, storage.CalendarEvent{Entity: alice, At: at(8), Text: "wake up"})
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.AddEvent(ctx, storage.CalendarEvent{Entity: alice, At: at(20), Text: "sleep"})
			Expect(err).NotTo(HaveOccurred())

			due, err := driver.DueEvents(ctx, at(10), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(due).To(HaveLen(1))
			Expect(due[0].ID).To(Equal(ev.ID))
			Expect(due[0].Entity).To(Equal(alice))

			Expect(driver.MarkNotified(ctx, ev.ID)).To(Succeed())

			due, err = driver.DueEvents(ctx, at(10), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(due).To(BeEmpty())
		})
	})

	Describe("usage", func() {
		It("accumulates company and entity counters", func() {
			Expect(driver.IncrementUsage(ctx, "acme", "alice", 1, 5)).To(Succeed())
			Expect(driver.IncrementUsage(ctx, "acme", "bob", 2, 3)).To(Succeed())

			total, err := driver.Usage(ctx, "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(storage.Usage{Messages: 3, Tokens: 8}))

			one, err := driver.EntityUsage(ctx, "acme", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(one).To(Equal(storage.Usage{Messages: 1, Tokens: 5}))
		})

		It("counts stats per dimension", func() {
			Expect(driver.IncrementStat(ctx, alice, storage.StatRole, "user")).To(Succeed())
			Expect(driver.IncrementStat(ctx, alice, storage.StatRole, "user")).To(Succeed())
			Expect(driver.IncrementStat(ctx, alice, storage.StatType, "text")).To(Succeed())

			stats, err := driver.Stats(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats[storage.StatRole]["user"]).To(Equal(int64(2)))
			Expect(stats[storage.StatType]["text"]).To(Equal(int64(1)))
		})
	})

	Describe("summaries", func() {
		It("overwrites the previous summary", func() {
			_, ok, err := driver.Summary(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			Expect(driver.PutSummary(ctx, alice, "first")).To(Succeed())
			Expect(driver.PutSummary(ctx, alice, "second")).To(Succeed())

			s, ok, err := driver.Summary(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(s).To(Equal("second"))
		})
	})

	Describe("tenants", func() {
		It("rejects duplicate companies and users", func() {
			Expect(driver.CreateCompany(ctx, storage.Company{Name: "acme", Flags: storage.DefaultFlags()})).To(Succeed())
			Expect(storage.IsConflict(driver.CreateCompany(ctx, storage.Company{Name: "acme"}))).To(BeTrue())

			Expect(driver.CreateUser(ctx, storage.User{Name: "alice", Company: "acme"})).To(Succeed())
			Expect(storage.IsConflict(driver.CreateUser(ctx, storage.User{Name: "alice", Company: "acme"}))).To(BeTrue())
			Expect(driver.CreateUser(ctx, storage.User{Name: "alice", Company: "globex"})).To(Succeed())

			named, err := driver.UsersNamed(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(named).To(HaveLen(2))
		})

		It("round-trips company settings", func() {
			c := storage.Company{
				Name:        "acme",
				IdleTimeout: 5 * time.Minute,
				Flags:       storage.Flags{EnableSummary: true},
				Pricing:     storage.Pricing{CostPerMessage: 0.5},
			}
			Expect(driver.CreateCompany(ctx, c)).To(Succeed())

			c.Token = "tok"
			Expect(driver.UpdateCompany(ctx, c)).To(Succeed())

			got, err := driver.Company(ctx, "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(c))

			_, err = driver.Company(ctx, "nope")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("stores and revokes tokens", func() {
			tok := storage.Token{Value: "abc", Kind: storage.TokenKindUser, Payload: "alice:acme"}
			Expect(driver.PutToken(ctx, tok)).To(Succeed())

			got, err := driver.Token(ctx, "abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Payload).To(Equal("alice:acme"))

			Expect(driver.DeleteToken(ctx, "abc")).To(Succeed())
			_, err = driver.Token(ctx, "abc")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("records last activity", func() {
			seen, err := driver.LastSeen(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen.IsZero()).To(BeTrue())

			now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
			Expect(driver.Touch(ctx, alice, now)).To(Succeed())

			seen, err = driver.LastSeen(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen.Equal(now)).To(BeTrue())
		})
	})
}
