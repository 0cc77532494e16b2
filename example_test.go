package kstep_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/kstep"
)

// Example_manual clusters two tight pairs from caller-chosen centroids.
func Example_manual() {
	engine := kstep.New()

	res, err := engine.Run(context.Background(), kstep.Request{
		Points:           []kstep.Point{{0, 0}, {0, 1}, {10, 0}, {10, 1}},
		NClusters:        2,
		InitMethod:       kstep.InitManual,
		InitialCentroids: []kstep.Point{{0, 0}, {10, 0}},
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(res.Centroids)
	fmt.Println(res.Labels)
	fmt.Println(len(res.Steps), res.Converged)
	// Output:
	// [[0 0.5] [10 0.5]]
	// [0 0 1 1]
	// 1 true
}

// Example_stepThrough replays a run one iteration at a time.
func Example_stepThrough() {
	engine := kstep.New()

	res, err := engine.Run(context.Background(), kstep.Request{
		Points:           []kstep.Point{{0}, {1}, {2}, {10}, {11}},
		NClusters:        2,
		InitMethod:       kstep.InitManual,
		InitialCentroids: []kstep.Point{{0}, {2}},
	})
	if err != nil {
		log.Fatal(err)
	}

	for i, step := range res.Steps {
		fmt.Printf("step %d: labels=%v moved=%v\n", i, step.Labels, res.Changed(i).ToArray())
	}
	// Output:
	// step 0: labels=[0 0 1 1 1] moved=[0 1 2 3 4]
	// step 1: labels=[0 0 0 1 1] moved=[2]
}
