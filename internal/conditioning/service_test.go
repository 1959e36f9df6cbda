package conditioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pulsetrack/conditioning/internal/cachestore"
	"github.com/pulsetrack/conditioning/internal/timeseries"
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/query"
	"github.com/pulsetrack/conditioning/pkg/store/mocks"
)

var _ = Describe("Service", func() {
	var (
		ctrl    *gomock.Controller
		logRepo *mocks.MockLogRepository
		usrRepo *mocks.MockUserRepository
		cache   *cachestore.Store
		svc     *Service
		ctx     context.Context

		alice structs.Caller
		bob   structs.Caller
		admin structs.Caller
	)

	startAt := func(day int) *time.Time {
		t := time.Date(2026, 5, day, 8, 0, 0, 0, time.UTC)
		return &t
	}

	overview := func(id string, day int) *structs.ConditioningLog {
		return &structs.ConditioningLog{
			ID:         id,
			StartedAt:  startAt(day),
			Duration:   structs.Quantity{Value: 60, Unit: "min"},
			IsOverview: true,
		}
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		logRepo = mocks.NewMockLogRepository(ctrl)
		usrRepo = mocks.NewMockUserRepository(ctrl)
		cache = cachestore.New()
		svc = NewService(logRepo, usrRepo, cache, CompensationPolicy{Attempts: 3, Delay: time.Millisecond})
		ctx = context.Background()

		alice = structs.Caller{UserID: "alice"}
		bob = structs.Caller{UserID: "bob"}
		admin = structs.Caller{UserID: "root", Roles: []string{"admin"}}
	})

	AfterEach(func() {
		ctrl.Finish()
	})

	populateExpectations := func(logs []*structs.ConditioningLog, users []*structs.User) {
		logRepo.EXPECT().FetchAll(gomock.Any()).Return(logs, nil).Times(1)
		usrRepo.EXPECT().FetchAll(gomock.Any()).Return(users, nil).Times(1)
	}

	Describe("EnsureReady", func() {
		It("populates the cache exactly once for concurrent callers", func() {
			populateExpectations(
				[]*structs.ConditioningLog{overview("l1", 1)},
				[]*structs.User{{ID: "alice", LogIDs: []string{"l1"}}},
			)

			var wg sync.WaitGroup
			errs := make([]error, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = svc.EnsureReady(ctx)
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(cache.Ready()).To(BeTrue())

			entry, ok := cache.EntryByUser("alice")
			Expect(ok).To(BeTrue())
			Expect(entry.Logs).To(HaveLen(1))
		})

		It("leaves the cache empty when population fails so a retry can succeed", func() {
			logRepo.EXPECT().FetchAll(gomock.Any()).Return(nil, errors.New("down")).Times(1)

			Expect(svc.EnsureReady(ctx)).To(HaveOccurred())
			Expect(cache.Ready()).To(BeFalse())

			populateExpectations(
				[]*structs.ConditioningLog{overview("l1", 1)},
				[]*structs.User{{ID: "alice", LogIDs: []string{"l1"}}},
			)
			Expect(svc.EnsureReady(ctx)).To(Succeed())
		})
	})

	Describe("CreateLog", func() {
		It("creates the log and attaches the id to the user", func() {
			usrRepo.EXPECT().FetchByID(ctx, "alice").
				Return(&structs.User{ID: "alice", LogIDs: []string{"l1"}}, nil)
			logRepo.EXPECT().Create(ctx, gomock.Any()).
				Return(&structs.ConditioningLog{ID: "l2"}, nil)
			usrRepo.EXPECT().Update(ctx, gomock.Any()).
				DoAndReturn(func(_ context.Context, u *structs.User) error {
					Expect(u.LogIDs).To(Equal([]string{"l1", "l2"}))
					return nil
				})

			id, err := svc.CreateLog(ctx, alice, "alice", &structs.ConditioningLog{ActivityType: "running"})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("l2"))
		})

		It("rejects a caller creating for someone else", func() {
			_, err := svc.CreateLog(ctx, bob, "alice", &structs.ConditioningLog{})
			Expect(apperrors.IsUnauthorized(err)).To(BeTrue())
		})

		It("deletes the orphaned log when attaching fails", func() {
			usrRepo.EXPECT().FetchByID(ctx, "alice").
				Return(&structs.User{ID: "alice"}, nil)
			logRepo.EXPECT().Create(ctx, gomock.Any()).
				Return(&structs.ConditioningLog{ID: "l2"}, nil)
			attachErr := apperrors.Persistencef("user write failed")
			usrRepo.EXPECT().Update(ctx, gomock.Any()).Return(attachErr)
			logRepo.EXPECT().Delete(ctx, "l2", false).Return(nil)

			_, err := svc.CreateLog(ctx, alice, "alice", &structs.ConditioningLog{})
			Expect(err).To(MatchError(attachErr))
		})

		It("returns the original error even when orphan cleanup exhausts", func() {
			usrRepo.EXPECT().FetchByID(ctx, "alice").
				Return(&structs.User{ID: "alice"}, nil)
			logRepo.EXPECT().Create(ctx, gomock.Any()).
				Return(&structs.ConditioningLog{ID: "l2"}, nil)
			attachErr := apperrors.Persistencef("user write failed")
			usrRepo.EXPECT().Update(ctx, gomock.Any()).Return(attachErr)
			logRepo.EXPECT().Delete(ctx, "l2", false).
				Return(errors.New("still down")).Times(3)

			_, err := svc.CreateLog(ctx, alice, "alice", &structs.ConditioningLog{})
			Expect(err).To(MatchError(attachErr))
		})
	})

	Describe("FetchLog", func() {
		BeforeEach(func() {
			populateExpectations(
				[]*structs.ConditioningLog{overview("l1", 1)},
				[]*structs.User{{ID: "alice", LogIDs: []string{"l1"}}},
			)
		})

		It("promotes an overview log to detail exactly once", func() {
			detailed := &structs.ConditioningLog{
				ID:        "l1",
				StartedAt: startAt(1),
				Laps:      []structs.Lap{{}},
			}
			logRepo.EXPECT().FetchByID(gomock.Any(), "l1").Return(detailed, nil).Times(1)

			first, err := svc.FetchLog(ctx, alice, "alice", "l1")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.IsOverview).To(BeFalse())
			Expect(first.Laps).To(HaveLen(1))

			second, err := svc.FetchLog(ctx, alice, "alice", "l1")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("refuses to serve a log owned by a different user", func() {
			_, err := svc.FetchLog(ctx, bob, "bob", "l1")
			Expect(apperrors.IsUnauthorized(err)).To(BeTrue())
		})

		It("reports not found for an unknown log id", func() {
			_, err := svc.FetchLog(ctx, alice, "alice", "nope")
			Expect(apperrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("UpdateLog", func() {
		It("writes through the repository without touching the cache", func() {
			patch := &structs.ConditioningLogPatch{ID: "l1"}
			logRepo.EXPECT().FetchByID(ctx, "l1").Return(overview("l1", 1), nil)
			logRepo.EXPECT().Update(ctx, patch).Return(nil)

			Expect(svc.UpdateLog(ctx, alice, "alice", patch)).To(Succeed())
			Expect(cache.Ready()).To(BeFalse())
		})

		It("fails not found for a missing log", func() {
			logRepo.EXPECT().FetchByID(ctx, "l1").
				Return(nil, apperrors.NotFoundf("log l1"))

			err := svc.UpdateLog(ctx, alice, "alice", &structs.ConditioningLogPatch{ID: "l1"})
			Expect(apperrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("DeleteLog", func() {
		It("detaches the id from the user before soft-deleting the log", func() {
			logRepo.EXPECT().FetchByID(ctx, "l1").Return(overview("l1", 1), nil)
			usrRepo.EXPECT().FetchByID(ctx, "alice").
				Return(&structs.User{ID: "alice", LogIDs: []string{"l1", "l2"}}, nil)

			gomock.InOrder(
				usrRepo.EXPECT().Update(ctx, gomock.Any()).
					DoAndReturn(func(_ context.Context, u *structs.User) error {
						Expect(u.LogIDs).To(Equal([]string{"l2"}))
						return nil
					}),
				logRepo.EXPECT().Delete(ctx, "l1", true).Return(nil),
			)

			Expect(svc.DeleteLog(ctx, alice, "alice", "l1")).To(Succeed())
		})

		It("rolls back the user list when the log delete fails, still reporting success", func() {
			logRepo.EXPECT().FetchByID(ctx, "l1").Return(overview("l1", 1), nil)
			usrRepo.EXPECT().FetchByID(ctx, "alice").
				Return(&structs.User{ID: "alice", LogIDs: []string{"l1"}}, nil)
			usrRepo.EXPECT().Update(ctx, gomock.Any()).Return(nil)
			logRepo.EXPECT().Delete(ctx, "l1", true).Return(errors.New("down"))
			usrRepo.EXPECT().Update(ctx, gomock.Any()).
				DoAndReturn(func(_ context.Context, u *structs.User) error {
					Expect(u.LogIDs).To(Equal([]string{"l1"}))
					return nil
				})

			Expect(svc.DeleteLog(ctx, alice, "alice", "l1")).To(Succeed())
		})
	})

	Describe("UndeleteLog", func() {
		It("delegates to the repository", func() {
			logRepo.EXPECT().Undelete(ctx, "l1").Return(nil)
			Expect(svc.UndeleteLog(ctx, alice, "alice", "l1")).To(Succeed())
		})
	})

	Describe("ListLogs", func() {
		BeforeEach(func() {
			populateExpectations(
				[]*structs.ConditioningLog{overview("a1", 2), overview("a2", 1), overview("b1", 3)},
				[]*structs.User{
					{ID: "alice", LogIDs: []string{"a1", "a2"}},
					{ID: "bob", LogIDs: []string{"b1"}},
				},
			)
		})

		It("scopes a non-admin caller to their own entry", func() {
			logs, err := svc.ListLogs(ctx, alice, "alice", query.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(HaveLen(2))
			// Default sort is ascending by start time.
			Expect(logs[0].ID).To(Equal("a2"))
			Expect(logs[1].ID).To(Equal("a1"))
		})

		It("rejects a non-admin query naming another user", func() {
			_, err := svc.ListLogs(ctx, alice, "alice", query.Query{UserID: "bob"})
			Expect(apperrors.IsUnauthorized(err)).To(BeTrue())
		})

		It("gives an admin without a target every cached log", func() {
			logs, err := svc.ListLogs(ctx, admin, "", query.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(HaveLen(3))
		})

		It("gives an admin with a target only that entry", func() {
			logs, err := svc.ListLogs(ctx, admin, "bob", query.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].ID).To(Equal("b1"))
		})
	})

	Describe("Aggregate", func() {
		It("sums durations per day, skipping logs without a start time", func() {
			noStart := &structs.ConditioningLog{ID: "a3", Duration: structs.Quantity{Value: 10, Unit: "min"}}
			sameDay := overview("a2", 2)
			populateExpectations(
				[]*structs.ConditioningLog{overview("a1", 2), sameDay, noStart},
				[]*structs.User{{ID: "alice", LogIDs: []string{"a1", "a2", "a3"}}},
			)
			sameDay.Duration = structs.Quantity{Value: 45, Unit: "min"}

			out, err := svc.Aggregate(ctx, alice, "alice",
				timeseries.AggregationSpec{Operation: timeseries.OpSum, SampleRate: timeseries.RateDay},
				"min", query.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Value).To(Equal(105.0))
		})
	})
})
