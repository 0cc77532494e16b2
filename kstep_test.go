package kstep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/hupe1980/kstep/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func nan() float64 { return math.NaN() }

func toPoints(m [][]float64) []Point {
	out := make([]Point, len(m))
	for i, p := range m {
		out[i] = p
	}
	return out
}

func blobRequest(seed int64) Request {
	rng := testutil.NewRNG(seed)
	pts := rng.Blobs([][]float64{{0, 0}, {20, 0}, {10, 15}}, 40, 1.5)
	rng.Shuffle(pts)
	return Request{Points: toPoints(pts), NClusters: 3, InitMethod: InitRandom, Seed: &seed}
}

func assertResultInvariants(t *testing.T, req Request, res *Result) {
	t.Helper()

	require.NotEmpty(t, res.Steps)
	last := res.Steps[len(res.Steps)-1]
	assert.Equal(t, last.Centroids, res.Centroids)
	assert.Equal(t, last.Labels, res.Labels)

	for i, s := range res.Steps {
		require.Len(t, s.Centroids, req.NClusters, "step %d", i)
		require.Len(t, s.Labels, len(req.Points), "step %d", i)
		for _, c := range s.Centroids {
			assert.Len(t, c, req.Dimension(), "step %d", i)
		}
		for _, l := range s.Labels {
			assert.GreaterOrEqual(t, l, 0)
			assert.Less(t, l, req.NClusters)
		}
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("TwoTightPairs", func(t *testing.T) {
		req := Request{
			Points:           []Point{{0, 0}, {0, 1}, {10, 0}, {10, 1}},
			NClusters:        2,
			InitMethod:       InitManual,
			InitialCentroids: []Point{{0, 0}, {10, 0}},
		}

		res, err := New().Run(ctx, req)
		require.NoError(t, err)

		assertResultInvariants(t, req, res)
		assert.Len(t, res.Steps, 1)
		assert.Equal(t, []Point{{0, 0.5}, {10, 0.5}}, res.Centroids)
		assert.Equal(t, []int{0, 0, 1, 1}, res.Labels)
		assert.True(t, res.Converged)
		assert.InDelta(t, 1.0, res.Inertia, 1e-12)
		assert.Equal(t, []int{2, 2}, res.Sizes())
	})

	t.Run("SinglePoint", func(t *testing.T) {
		req := Request{Points: []Point{{3, 4}}, NClusters: 1, InitMethod: InitRandom}

		res, err := New().Run(ctx, req)
		require.NoError(t, err)

		assertResultInvariants(t, req, res)
		require.Len(t, res.Steps, 1)
		assert.Equal(t, []Point{{3, 4}}, res.Centroids)
		assert.Equal(t, []int{0}, res.Labels)
		assert.Zero(t, res.Inertia)
	})

	t.Run("InvariantsAcrossMethods", func(t *testing.T) {
		for _, m := range []InitMethod{InitRandom, InitFarthest, InitKMeansPlusPlus} {
			t.Run(string(m), func(t *testing.T) {
				req := blobRequest(7)
				req.InitMethod = m

				res, err := New().Run(ctx, req)
				require.NoError(t, err)
				assertResultInvariants(t, req, res)
				assert.True(t, res.Converged)
				assert.Equal(t, int64(7), res.Seed)
			})
		}
	})

	t.Run("ThreeDimensions", func(t *testing.T) {
		req := Request{
			Points:           []Point{{0, 0, 0}, {0, 0, 2}, {9, 9, 9}, {9, 9, 11}},
			NClusters:        2,
			InitMethod:       InitManual,
			InitialCentroids: []Point{{0, 0, 0}, {9, 9, 9}},
		}

		res, err := New().Run(ctx, req)
		require.NoError(t, err)
		assertResultInvariants(t, req, res)
		assert.Equal(t, []Point{{0, 0, 1}, {9, 9, 10}}, res.Centroids)
	})
}

func TestRunDeterminism(t *testing.T) {
	ctx := context.Background()

	t.Run("ManualIsByteIdentical", func(t *testing.T) {
		req := blobRequest(3)
		req.InitMethod = InitManual
		req.Seed = nil
		req.InitialCentroids = []Point{req.Points[0].Clone(), req.Points[1].Clone(), req.Points[2].Clone()}

		engine := New()
		a, err := engine.Run(ctx, req)
		require.NoError(t, err)
		b, err := engine.Run(ctx, req)
		require.NoError(t, err)

		ja, err := json.Marshal(a)
		require.NoError(t, err)
		jb, err := json.Marshal(b)
		require.NoError(t, err)
		assert.Equal(t, ja, jb)
		assert.Equal(t, a, b)
	})

	t.Run("FixedSeedReproducesSteps", func(t *testing.T) {
		req := blobRequest(11)
		req.Seed = nil
		req.InitMethod = InitFarthest

		engine := New(WithSeed(99))
		a, err := engine.Run(ctx, req)
		require.NoError(t, err)
		b, err := engine.Run(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, a.Steps[0], b.Steps[0])
		assert.Equal(t, a.Steps, b.Steps)
		assert.Equal(t, int64(99), a.Seed)
	})

	t.Run("RequestSeedWins", func(t *testing.T) {
		req := blobRequest(5)
		req.InitMethod = InitKMeansPlusPlus

		res, err := New(WithSeed(1)).Run(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, int64(5), res.Seed)

		replay, err := New(WithSeed(2)).Run(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, res.Steps, replay.Steps)
	})
}

func TestRunFixedPoint(t *testing.T) {
	ctx := context.Background()
	engine := New()

	for _, m := range []InitMethod{InitRandom, InitFarthest, InitKMeansPlusPlus} {
		t.Run(string(m), func(t *testing.T) {
			req := blobRequest(21)
			req.InitMethod = m

			first, err := engine.Run(ctx, req)
			require.NoError(t, err)
			require.True(t, first.Converged)

			again, err := engine.Run(ctx, Request{
				Points:           req.Points,
				NClusters:        req.NClusters,
				InitMethod:       InitManual,
				InitialCentroids: first.Centroids,
			})
			require.NoError(t, err)

			assert.Equal(t, first.Steps[len(first.Steps)-1], again.Steps[0])
			assert.Len(t, again.Steps, 1)
		})
	}
}

func TestRunSnapshotsAreIndependent(t *testing.T) {
	req := Request{
		Points:           []Point{{0}, {1}, {2}, {10}, {11}},
		NClusters:        2,
		InitMethod:       InitManual,
		InitialCentroids: []Point{{0}, {2}},
	}

	res, err := New().Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)

	first := res.Steps[0].Clone()
	res.Steps[1].Centroids[0][0] = 999
	res.Steps[1].Labels[0] = 1
	assert.Equal(t, first, res.Steps[0])

	// The final result does not alias the last step.
	assert.NotEqual(t, res.Steps[1].Centroids, res.Centroids)

	// Input is never mutated.
	assert.Equal(t, []Point{{0}, {2}}, req.InitialCentroids)
	assert.Equal(t, []Point{{0}, {1}, {2}, {10}, {11}}, req.Points)
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()
	pts := []Point{{0, 0}, {1, 1}, {2, 2}}

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"NoPoints", Request{NClusters: 1, InitMethod: InitRandom}, "data"},
		{"ZeroDimension", Request{Points: []Point{{}, {}}, NClusters: 1, InitMethod: InitRandom}, "data"},
		{"NonFinite", Request{Points: []Point{{0, 0}, {nan(), 1}}, NClusters: 1, InitMethod: InitRandom}, "data"},
		{"ZeroClusters", Request{Points: pts, NClusters: 0, InitMethod: InitRandom}, "n_clusters"},
		{"TooManyClusters", Request{Points: pts, NClusters: 4, InitMethod: InitRandom}, "n_clusters"},
		{"UnknownMethod", Request{Points: pts, NClusters: 2, InitMethod: "median"}, "init_method"},
		{"ManualWithoutCentroids", Request{Points: pts, NClusters: 2, InitMethod: InitManual}, "initial_centroids"},
		{"ManualWrongLength", Request{Points: pts, NClusters: 2, InitMethod: InitManual, InitialCentroids: []Point{{0, 0}}}, "initial_centroids"},
		{"CentroidsForRandom", Request{Points: pts, NClusters: 1, InitMethod: InitRandom, InitialCentroids: []Point{{0, 0}}}, "initial_centroids"},
		{"NotEnoughDistinctRandom", Request{Points: []Point{{1, 1}, {1, 1}, {2, 2}}, NClusters: 3, InitMethod: InitRandom}, "n_clusters"},
		{"NotEnoughDistinctFarthest", Request{Points: []Point{{1, 1}, {1, 1}}, NClusters: 2, InitMethod: InitFarthest}, "n_clusters"},
	}

	metrics := &BasicMetricsCollector{}
	engine := New(WithMetricsCollector(metrics))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Run(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.Equal(t, int64(len(tests)), metrics.GetStats().Rejected)
	assert.Zero(t, metrics.GetStats().RunCount)

	t.Run("DimensionMismatch", func(t *testing.T) {
		cases := []Request{
			{Points: []Point{{0, 0}, {1, 1, 1}}, NClusters: 1, InitMethod: InitRandom},
			{Points: pts, NClusters: 2, InitMethod: InitManual, InitialCentroids: []Point{{0, 0}, {1}}},
		}
		for _, req := range cases {
			_, err := engine.Run(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)

			var dm *ErrDimensionMismatch
			require.ErrorAs(t, err, &dm)
			assert.Equal(t, 2, dm.Expected)
			assert.Equal(t, 1, dm.Index)
		}
	})

	t.Run("UnknownMethodWraps", func(t *testing.T) {
		_, err := engine.Run(ctx, Request{Points: pts, NClusters: 1, InitMethod: "bogus"})
		assert.ErrorIs(t, err, ErrUnknownInitMethod)
	})

	t.Run("ManualDuplicatesAllowed", func(t *testing.T) {
		res, err := engine.Run(ctx, Request{
			Points:           []Point{{1, 1}, {1, 1}},
			NClusters:        2,
			InitMethod:       InitManual,
			InitialCentroids: []Point{{1, 1}, {1, 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0}, res.Labels)
	})
}

func TestRunIterationCap(t *testing.T) {
	req := Request{
		Points:           []Point{{0}, {1}, {2}, {10}, {11}},
		NClusters:        2,
		InitMethod:       InitManual,
		InitialCentroids: []Point{{0}, {2}},
	}

	res, err := New(WithMaxIterations(1)).Run(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations())
	assertResultInvariants(t, req, res)
}

func TestRunTolerance(t *testing.T) {
	req := Request{
		Points:           []Point{{0}, {1}, {2}, {10}, {11}},
		NClusters:        2,
		InitMethod:       InitManual,
		InitialCentroids: []Point{{0}, {2}},
	}

	res, err := New(WithTolerance(100)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations())
}

func TestRunEmptyClusterPolicy(t *testing.T) {
	req := Request{
		Points:           []Point{{0}, {1}, {5}},
		NClusters:        2,
		InitMethod:       InitManual,
		InitialCentroids: []Point{{0}, {100}},
	}

	t.Run("Keep", func(t *testing.T) {
		res, err := New().Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, Point{100}, res.Centroids[1])
		assert.Equal(t, []int{0, 0, 0}, res.Labels)
	})

	t.Run("Farthest", func(t *testing.T) {
		res, err := New(WithEmptyClusterPolicy(EmptyFarthest)).Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, Point{5}, res.Steps[0].Centroids[1])
		assert.Equal(t, []int{0, 0, 1}, res.Labels)
	})
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	metrics := &BasicMetricsCollector{}
	res, err := New(WithMetricsCollector(metrics)).Run(ctx, blobRequest(1))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, int64(1), metrics.GetStats().RunErrors)
}

func TestResultTrace(t *testing.T) {
	req := Request{
		Points:           []Point{{0}, {1}, {2}, {10}, {11}},
		NClusters:        2,
		InitMethod:       InitManual,
		InitialCentroids: []Point{{0}, {2}},
	}

	res, err := New().Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, []int{0, 0, 1, 1, 1}, res.Steps[0].Labels)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, res.Steps[1].Labels)

	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, res.Changed(0).ToArray())
	assert.Equal(t, []uint32{2}, res.Changed(1).ToArray())
	assert.True(t, res.Changed(2).IsEmpty())

	assert.Equal(t, []uint32{0, 1}, res.Members(0, 0).ToArray())
	assert.Equal(t, []uint32{0, 1, 2}, res.Members(1, 0).ToArray())
	assert.Equal(t, []uint32{3, 4}, res.Members(1, 1).ToArray())
	assert.True(t, res.Members(-1, 0).IsEmpty())
	assert.True(t, res.Members(1, 7).IsEmpty())
}

func TestRunLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := New(WithLogger(logger)).Run(context.Background(), Request{
		Points:     []Point{{3, 4}},
		NClusters:  1,
		InitMethod: InitRandom,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"iteration recorded"`)
	assert.Contains(t, out, `"msg":"clustering run completed"`)
	assert.Contains(t, out, `"init_method":"random"`)
	assert.Contains(t, out, `"k":1`)

	buf.Reset()
	_, err = New(WithLogger(logger)).Run(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"msg":"clustering request rejected"`)
}

func TestNewFormatLogger(t *testing.T) {
	var buf bytes.Buffer

	l, err := NewFormatLogger("text", &buf, slog.LevelWarn)
	require.NoError(t, err)
	l.Info("hidden")
	l.WithRequestID("r1").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "request_id=r1")

	_, err = NewFormatLogger("xml", &buf, slog.LevelInfo)
	assert.Error(t, err)
}

func TestParseInitMethod(t *testing.T) {
	for _, name := range []string{"random", " Manual ", "FARTHEST", "kmeans++"} {
		m, err := ParseInitMethod(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, m)
	}

	_, err := ParseInitMethod("k-medoids")
	assert.ErrorIs(t, err, ErrUnknownInitMethod)

	assert.True(t, InitFarthest.Seeded())
	assert.False(t, InitManual.Seeded())
}

func TestRequestJSON(t *testing.T) {
	body := `{"data":[[0.1,0.2],[1e-300,3]],"init_method":"manual","n_clusters":1,"initial_centroids":[[0.30000000000000004,1]]}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, InitManual, req.InitMethod)
	assert.Equal(t, 1, req.NClusters)
	assert.Equal(t, Point{1e-300, 3}, req.Points[1])
	assert.Equal(t, Point{0.30000000000000004, 1}, req.InitialCentroids[0])
	assert.Nil(t, req.Seed)
}

func TestBasicMetricsCollector(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	engine := New(WithMetricsCollector(metrics))

	_, err := engine.Run(context.Background(), Request{Points: []Point{{1}}, NClusters: 1, InitMethod: InitRandom})
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.RunCount)
	assert.Equal(t, int64(1), stats.Converged)
	assert.Equal(t, int64(1), stats.IterationsTotal)
	assert.InDelta(t, 1.0, stats.AvgIterations, 1e-12)
	assert.Zero(t, stats.CapReached)
}

func TestParseEmptyClusterPolicy(t *testing.T) {
	p, err := ParseEmptyClusterPolicy("Farthest")
	require.NoError(t, err)
	assert.Equal(t, EmptyFarthest, p)
	assert.Equal(t, "farthest", p.String())

	p, err = ParseEmptyClusterPolicy("")
	require.NoError(t, err)
	assert.Equal(t, EmptyKeep, p)

	_, err = ParseEmptyClusterPolicy("drop")
	assert.Error(t, err)
}

func TestRunUnderflowingDistinctPoints(t *testing.T) {
	seed := int64(1)
	for _, m := range []InitMethod{InitFarthest, InitKMeansPlusPlus} {
		t.Run(string(m), func(t *testing.T) {
			req := Request{Points: []Point{{0, 0}, {1e-200, 0}}, NClusters: 2, InitMethod: m, Seed: &seed}

			var res *Result
			var err error
			require.NotPanics(t, func() { res, err = New().Run(context.Background(), req) })
			require.NoError(t, err)

			assertResultInvariants(t, req, res)
			assert.ElementsMatch(t, req.Points, res.Steps[0].Centroids)
		})
	}
}

func TestRunConcurrent(t *testing.T) {
	const workers = 16

	reqs := make([]Request, workers)
	for i := range reqs {
		rng := testutil.NewRNG(int64(i))
		off := float64(i) * 100
		raw := rng.Blobs([][]float64{{off, 0}, {off + 20, 0}, {off + 10, 15}}, 30, 2)
		rng.Shuffle(raw)
		pts := toPoints(raw)
		reqs[i] = Request{
			Points:           pts,
			NClusters:        3,
			InitMethod:       InitManual,
			InitialCentroids: []Point{pts[0].Clone(), pts[1].Clone(), pts[2].Clone()},
		}
	}

	engine := New(WithMetricsCollector(&BasicMetricsCollector{}))

	want := make([]*Result, workers)
	for i, req := range reqs {
		res, err := engine.Run(context.Background(), req)
		require.NoError(t, err)
		want[i] = res
	}

	got := make([]*Result, workers)
	g, ctx := errgroup.WithContext(context.Background())
	for i := range reqs {
		g.Go(func() error {
			res, err := engine.Run(ctx, reqs[i])
			got[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := range reqs {
		assert.Equal(t, want[i], got[i], "request %d", i)
	}
}

func TestRequestValidate(t *testing.T) {
	req := Request{Points: []Point{{0, 0}, {1, 1}}, NClusters: 2, InitMethod: InitRandom}
	require.NoError(t, req.Validate())

	req.NClusters = 0
	err := req.Validate()
	require.ErrorIs(t, err, ErrValidation)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "n_clusters", ve.Field)
}
