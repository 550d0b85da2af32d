package trinity_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/trinity/internal/trinity"
)

type sinkCall struct {
	kind string
	seq  uint64
	err  error
}

type recordingSink struct {
	calls   []sinkCall
	current *trinity.Result
	lastErr error
}

func (s *recordingSink) ShowLoading(req trinity.Request) {
	s.calls = append(s.calls, sinkCall{kind: "loading", seq: req.Seq})
}

func (s *recordingSink) ShowResult(res *trinity.Result) {
	s.calls = append(s.calls, sinkCall{kind: "result", seq: res.Seq})
	s.current, s.lastErr = res, nil
}

func (s *recordingSink) ShowError(err error) {
	var terr *trinity.TransportError
	seq := uint64(0)
	if errors.As(err, &terr) {
		seq = terr.Seq
	}
	s.calls = append(s.calls, sinkCall{kind: "error", seq: seq, err: err})
	s.lastErr = err
}

func (s *recordingSink) count(kind string) int {
	n := 0
	for _, c := range s.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

// echoFetcher renders the snapshot into the diagnostic text, or fails for
// the sequence numbers listed in fail.
type echoFetcher struct {
	fail map[uint64]error
	seen []trinity.Request
}

func (f *echoFetcher) Fetch(_ context.Context, req trinity.Request) (*trinity.Result, error) {
	f.seen = append(f.seen, req)
	if err, ok := f.fail[req.Seq]; ok {
		return nil, err
	}
	return &trinity.Result{Status: "IGNITED", DiagnosticText: req.Snapshot.String()}, nil
}

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

var _ = Describe("Controller", func() {
	var (
		sink    *recordingSink
		fetcher *echoFetcher
		ctrl    *trinity.Controller
	)

	BeforeEach(func() {
		sink = &recordingSink{}
		fetcher = &echoFetcher{fail: map[uint64]error{}}
		ctrl = trinity.NewController(trinity.NewDispatcher(fetcher, sink))
	})

	It("renders a preset selection (scenario A)", func() {
		flight, err := ctrl.SelectPreset(trinity.Stable)
		Expect(err).NotTo(HaveOccurred())
		Expect(flight.Request.Seq).To(Equal(uint64(1)))
		Expect(flight.Request.Snapshot.Preset()).To(Equal(trinity.Stable))
		_, hasDamping := flight.Request.Snapshot.Damping()
		Expect(hasDamping).To(BeFalse())

		Expect(ctrl.Complete(flight.Run())).To(Equal(trinity.OutcomeRendered))
		Expect(sink.count("result")).To(Equal(1))
		Expect(sink.current.Seq).To(Equal(uint64(1)))
		Expect(sink.current.DiagnosticText).To(Equal("Stable"))
		Expect(ctrl.Dispatcher().HighestRendered()).To(Equal(uint64(1)))
	})

	It("ignores an out-of-range custom value (scenario B)", func() {
		flight, err := ctrl.SelectPreset(trinity.Custom)
		Expect(err).NotTo(HaveOccurred())
		Expect(flight).To(BeNil())

		flight, err = ctrl.SetCustomValue("0.05")
		Expect(err).To(MatchError(trinity.ErrInvalidDamping))
		Expect(flight).To(BeNil())
		Expect(sink.calls).To(BeEmpty())
		Expect(ctrl.Dispatcher().HighestDispatched()).To(BeZero())
	})

	It("discards a slow response overtaken by a newer selection (scenario C)", func() {
		Expect(ctrl.SelectPreset(trinity.Custom)).To(BeNil())
		first, err := ctrl.SetCustomValue("0.5")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Request.Seq).To(Equal(uint64(1)))
		d, ok := first.Request.Snapshot.Damping()
		Expect(ok).To(BeTrue())
		Expect(d).To(Equal(0.5))

		second, err := ctrl.SelectPreset(trinity.Amplified)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Request.Seq).To(Equal(uint64(2)))
		Expect(ctrl.Dispatcher().InFlight()).To(Equal(2))

		Expect(ctrl.Complete(second.Run())).To(Equal(trinity.OutcomeRendered))
		Expect(ctrl.Complete(first.Run())).To(Equal(trinity.OutcomeSuperseded))

		Expect(sink.count("result")).To(Equal(1))
		Expect(sink.current.DiagnosticText).To(Equal("Amplified"))
		Expect(ctrl.Dispatcher().InFlight()).To(BeZero())
	})

	It("reports a transport failure when nothing newer is pending (scenario D)", func() {
		fetcher.fail[1] = errors.New("connection refused")
		flight, err := ctrl.SelectPreset(trinity.Responsive)
		Expect(err).NotTo(HaveOccurred())

		Expect(ctrl.Complete(flight.Run())).To(Equal(trinity.OutcomeErrored))
		Expect(sink.count("error")).To(Equal(1))
		Expect(sink.lastErr).To(MatchError(ContainSubstring("connection refused")))

		var terr *trinity.TransportError
		Expect(errors.As(sink.lastErr, &terr)).To(BeTrue())
		Expect(terr.Seq).To(Equal(uint64(1)))
	})

	It("discards a stale failure like a stale success", func() {
		fetcher.fail[1] = errors.New("timeout")
		first, _ := ctrl.SelectPreset(trinity.Stable)
		second, _ := ctrl.SelectPreset(trinity.Balanced)

		Expect(ctrl.Complete(first.Run())).To(Equal(trinity.OutcomeSuperseded))
		Expect(ctrl.Complete(second.Run())).To(Equal(trinity.OutcomeRendered))
		Expect(sink.count("error")).To(BeZero())
	})

	It("dispatches again when the active preset is re-selected", func() {
		first, _ := ctrl.SelectPreset(trinity.Balanced)
		second, _ := ctrl.SelectPreset(trinity.Balanced)
		Expect(first.Request.Seq).To(Equal(uint64(1)))
		Expect(second.Request.Seq).To(Equal(uint64(2)))
		Expect(second.Request.Snapshot).To(Equal(first.Request.Snapshot))
	})

	It("stays interactive after an error", func() {
		fetcher.fail[1] = errors.New("503")
		flight, _ := ctrl.SelectPreset(trinity.Stable)
		ctrl.Complete(flight.Run())

		flight, err := ctrl.SelectPreset(trinity.Stable)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctrl.Complete(flight.Run())).To(Equal(trinity.OutcomeRendered))
		Expect(sink.lastErr).NotTo(HaveOccurred())
	})

	It("shows loading once per dispatch", func() {
		ctrl.SelectPreset(trinity.Stable)
		ctrl.SetCustomValue("0.3")
		ctrl.SetCustomValue("bogus")
		Expect(sink.count("loading")).To(Equal(2))
	})

	It("rejects duplicate completions", func() {
		flight, _ := ctrl.SelectPreset(trinity.Stable)
		c := flight.Run()
		Expect(ctrl.Complete(c)).To(Equal(trinity.OutcomeRendered))
		Expect(ctrl.Complete(c)).To(Equal(trinity.OutcomeUnknown))
		Expect(sink.count("result")).To(Equal(1))
	})

	It("treats a nil result without error as a failure", func() {
		d := trinity.NewDispatcher(trinity.FetcherFunc(func(context.Context, trinity.Request) (*trinity.Result, error) {
			return nil, nil
		}), sink)
		snap, _ := trinity.PresetSnapshot(trinity.Stable)
		flight, err := d.Dispatch(snap)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Complete(flight.Run())).To(Equal(trinity.OutcomeErrored))
		Expect(sink.lastErr).To(MatchError(trinity.ErrEmptyResult))
	})

	Describe("Close", func() {
		It("abandons pending requests and cancels their context", func() {
			var seenCtx context.Context
			d := trinity.NewDispatcher(trinity.FetcherFunc(func(ctx context.Context, _ trinity.Request) (*trinity.Result, error) {
				seenCtx = ctx
				return &trinity.Result{}, nil
			}), sink)
			c := trinity.NewController(d)
			flight, _ := c.SelectPreset(trinity.Stable)
			c.Close()

			comp := flight.Run()
			Expect(seenCtx.Err()).To(MatchError(context.Canceled))
			Expect(c.Complete(comp)).To(Equal(trinity.OutcomeAbandoned))
			Expect(sink.count("result")).To(BeZero())

			_, err := c.SelectPreset(trinity.Balanced)
			Expect(err).To(MatchError(trinity.ErrClosed))
		})
	})

	DescribeTable("custom input dispatches iff it parses into range",
		func(raw string, dispatches bool) {
			flight, err := ctrl.SetCustomValue(raw)
			if dispatches {
				Expect(err).NotTo(HaveOccurred())
				Expect(flight).NotTo(BeNil())
				Expect(flight.Request.Snapshot.Preset()).To(Equal(trinity.Custom))
			} else {
				Expect(err).To(MatchError(trinity.ErrInvalidDamping))
				Expect(flight).To(BeNil())
				Expect(ctrl.Dispatcher().HighestDispatched()).To(BeZero())
			}
		},
		Entry("lower bound", "0.1", true),
		Entry("upper bound", "1.0", true),
		Entry("middle", "0.42", true),
		Entry("below range", "0.05", false),
		Entry("above range", "1.01", false),
		Entry("negative", "-1", false),
		Entry("empty", "", false),
		Entry("text", "soft", false),
	)

	Describe("arrival order", func() {
		for n := 1; n <= 5; n++ {
			n := n
			It(fmt.Sprintf("shows only the newest of %d overlapping requests in every arrival order", n), func() {
				for _, order := range permutations(n) {
					sink = &recordingSink{}
					fetcher = &echoFetcher{fail: map[uint64]error{}}
					c := trinity.NewController(trinity.NewDispatcher(fetcher, sink))

					flights := make([]*trinity.Flight, n)
					for i := range flights {
						f, err := c.SelectPreset(trinity.Presets[i%4])
						Expect(err).NotTo(HaveOccurred())
						flights[i] = f
					}
					for _, i := range order {
						c.Complete(flights[i].Run())
					}

					Expect(sink.count("result")).To(Equal(1), "order %v", order)
					Expect(sink.current.Seq).To(Equal(uint64(n)), "order %v", order)
					Expect(c.Dispatcher().InFlight()).To(BeZero())
				}
			})
		}
	})
})
